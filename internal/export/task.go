package export

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/forest-guardian/index-composite/internal/expr"
	"github.com/forest-guardian/index-composite/internal/geometry"
)

var ErrInvalidTask = errors.New("invalid export task")

type FileFormat string

const (
	FormatGeoTIFF   FileFormat = "GEO_TIFF"
	FormatShapefile FileFormat = "SHP"
)

// ImageTask asks the platform to render an image expression to storage.
type ImageTask struct {
	Image          expr.Image   `json:"image"`
	Description    string       `json:"description"`
	Folder         string       `json:"folder"`
	FilePrefix     string       `json:"filePrefix"`
	Region         geometry.ROI `json:"region"`
	Scale          float64      `json:"scale"`
	Format         FileFormat   `json:"format"`
	CloudOptimized bool         `json:"cloudOptimized"`
}

func (t ImageTask) Validate() error {
	if t.Image.IsZero() {
		return fmt.Errorf("%w: no image", ErrInvalidTask)
	}
	if t.Scale <= 0 {
		return fmt.Errorf("%w: scale must be positive, got %v", ErrInvalidTask, t.Scale)
	}
	if t.Format != FormatGeoTIFF {
		return fmt.Errorf("%w: unsupported image format %q", ErrInvalidTask, t.Format)
	}
	return validateDestination(t.Folder, t.FilePrefix)
}

// TableTask asks the platform to write a feature collection to storage.
type TableTask struct {
	Collection  geometry.ROI `json:"collection"`
	Description string       `json:"description"`
	Folder      string       `json:"folder"`
	FilePrefix  string       `json:"filePrefix"`
	Format      FileFormat   `json:"format"`
}

func (t TableTask) Validate() error {
	if t.Collection.IsZero() {
		return fmt.Errorf("%w: empty feature collection", ErrInvalidTask)
	}
	if t.Format != FormatShapefile {
		return fmt.Errorf("%w: unsupported table format %q", ErrInvalidTask, t.Format)
	}
	return validateDestination(t.Folder, t.FilePrefix)
}

func validateDestination(folder, prefix string) error {
	if prefix == "" {
		return fmt.Errorf("%w: empty file prefix", ErrInvalidTask)
	}
	for _, part := range []string{folder, prefix} {
		if strings.Contains(part, "..") || strings.ContainsAny(part, `/\`) {
			return fmt.Errorf("%w: %q is not a plain name", ErrInvalidTask, part)
		}
	}
	return nil
}

// Destination is the path of the exported file below root.
func Destination(root, folder, prefix string, format FileFormat) string {
	ext := ".tif"
	if format == FormatShapefile {
		ext = ".shp"
	}
	return filepath.Join(root, folder, prefix+ext)
}
