package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/forest-guardian/index-composite/internal/geometry"
)

// JobFile lists the regions a run produces composites for.
type JobFile struct {
	Dataset string   `yaml:"dataset"`
	Regions []Region `yaml:"regions"`

	dir string
}

type Region struct {
	Name    string   `yaml:"name"`
	ROI     string   `yaml:"roi"`
	Start   string   `yaml:"start"`
	End     string   `yaml:"end"`
	BufferM *float64 `yaml:"buffer_m,omitempty"`
}

func LoadJobFile(path string) (*JobFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job file: %w", err)
	}
	var jf JobFile
	if err := yaml.Unmarshal(data, &jf); err != nil {
		return nil, fmt.Errorf("failed to parse job file: %w", err)
	}
	jf.dir = filepath.Dir(path)
	if err := jf.Validate(); err != nil {
		return nil, err
	}
	return &jf, nil
}

func (jf *JobFile) Validate() error {
	if len(jf.Regions) == 0 {
		return fmt.Errorf("job file lists no regions")
	}
	seen := make(map[string]bool)
	for i, r := range jf.Regions {
		if r.Name == "" {
			return fmt.Errorf("region %d has no name", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("duplicate region %q", r.Name)
		}
		seen[r.Name] = true
		if r.ROI == "" {
			return fmt.Errorf("region %q has no roi", r.Name)
		}
		start, end, err := r.Dates()
		if err != nil {
			return err
		}
		if !start.Before(end) {
			return fmt.Errorf("region %q: start %s is not before end %s", r.Name, r.Start, r.End)
		}
		if _, err := r.Buffer(); err != nil {
			return fmt.Errorf("region %q: %w", r.Name, err)
		}
	}
	return nil
}

// ROIPath resolves the region's GeoJSON path relative to the job file.
func (jf *JobFile) ROIPath(r Region) string {
	if filepath.IsAbs(r.ROI) {
		return r.ROI
	}
	return filepath.Join(jf.dir, r.ROI)
}

func (r Region) Dates() (time.Time, time.Time, error) {
	start, err := time.Parse(time.DateOnly, r.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("region %q: invalid start date: %w", r.Name, err)
	}
	end, err := time.Parse(time.DateOnly, r.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("region %q: invalid end date: %w", r.Name, err)
	}
	return start, end, nil
}

// Buffer is NoBuffer when buffer_m is absent.
func (r Region) Buffer() (geometry.Buffer, error) {
	if r.BufferM == nil {
		return geometry.NoBuffer(), nil
	}
	return geometry.BufferBy(*r.BufferM)
}
