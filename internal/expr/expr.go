// Package expr builds lazy image-algebra expression graphs. Nothing is
// computed when a graph is built; a platform evaluates it later, locally or
// remotely.
package expr

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/forest-guardian/index-composite/internal/geometry"
)

type Op string

const (
	OpLoad                 Op = "ImageCollection.load"
	OpFilterDate           Op = "ImageCollection.filterDate"
	OpFilterBounds         Op = "ImageCollection.filterBounds"
	OpNormalizedDifference Op = "ImageCollection.normalizedDifference"
	OpSelect               Op = "ImageCollection.select"
	OpMean                 Op = "ImageCollection.mean"
	OpClip                 Op = "Image.clip"
	OpCat                  Op = "Image.cat"
)

const (
	ArgDataset = "dataset"
	ArgStart   = "start"
	ArgEnd     = "end"
	ArgRegion  = "region"
	ArgBandA   = "bandA"
	ArgBandB   = "bandB"
	ArgName    = "name"
	ArgBand    = "band"
)

// Node is one operation of the graph.
type Node struct {
	Op     Op             `json:"op"`
	Inputs []*Node        `json:"inputs,omitempty"`
	Args   map[string]any `json:"args,omitempty"`
}

func (n *Node) Input(i int) (*Node, error) {
	if i >= len(n.Inputs) || n.Inputs[i] == nil {
		return nil, fmt.Errorf("%s: missing input %d", n.Op, i)
	}
	return n.Inputs[i], nil
}

func (n *Node) String(key string) (string, error) {
	v, ok := n.Args[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%s: missing argument %q", n.Op, key)
	}
	return v, nil
}

func (n *Node) Time(key string) (time.Time, error) {
	s, err := n.String(key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: invalid time argument %q: %w", n.Op, key, err)
	}
	return t, nil
}

// ROI decodes a region argument. Graphs built in-process hold a
// geometry.ROI, decoded graphs hold its GeoJSON object.
func (n *Node) ROI(key string) (geometry.ROI, error) {
	switch v := n.Args[key].(type) {
	case geometry.ROI:
		return v, nil
	case nil:
		return geometry.ROI{}, fmt.Errorf("%s: missing argument %q", n.Op, key)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return geometry.ROI{}, fmt.Errorf("%s: invalid region argument: %w", n.Op, err)
		}
		return geometry.ParseROI(raw)
	}
}

// Digest is a stable hash of the graph. The JSON is normalised first so a
// decoded graph hashes like the one it was encoded from.
func (n *Node) Digest() string {
	data, err := json.Marshal(n)
	if err != nil {
		return ""
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return ""
	}
	if data, err = json.Marshal(generic); err != nil {
		return ""
	}
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

// Collection is a lazy handle on an ordered set of scenes.
type Collection struct {
	node *Node
}

// Image is a lazy handle on a single multi-band raster.
type Image struct {
	node *Node
}

func NewCollection(dataset string) Collection {
	return Collection{node: &Node{Op: OpLoad, Args: map[string]any{ArgDataset: dataset}}}
}

func CollectionFromNode(n *Node) Collection {
	return Collection{node: n}
}

func ImageFromNode(n *Node) Image {
	return Image{node: n}
}

func (c Collection) Node() *Node {
	return c.node
}

func (c Collection) derive(op Op, args map[string]any) Collection {
	return Collection{node: &Node{Op: op, Inputs: []*Node{c.node}, Args: args}}
}

// FilterDate keeps scenes acquired in [start, end).
func (c Collection) FilterDate(start, end time.Time) Collection {
	return c.derive(OpFilterDate, map[string]any{
		ArgStart: start.UTC().Format(time.RFC3339),
		ArgEnd:   end.UTC().Format(time.RFC3339),
	})
}

// FilterBounds keeps scenes whose footprint intersects the region.
func (c Collection) FilterBounds(roi geometry.ROI) Collection {
	return c.derive(OpFilterBounds, map[string]any{ArgRegion: roi})
}

// NormalizedDifference adds to every scene a band called name holding
// (a-b)/(a+b).
func (c Collection) NormalizedDifference(a, b, name string) Collection {
	return c.derive(OpNormalizedDifference, map[string]any{ArgBandA: a, ArgBandB: b, ArgName: name})
}

func (c Collection) Select(band string) Collection {
	return c.derive(OpSelect, map[string]any{ArgBand: band})
}

// Mean reduces the collection to the per-pixel arithmetic mean of each band.
func (c Collection) Mean() Image {
	return Image{node: &Node{Op: OpMean, Inputs: []*Node{c.node}}}
}

// BandNames infers the band names of the scenes. ok is false when the graph
// does not pin them down, e.g. a freshly loaded collection.
func (c Collection) BandNames() ([]string, bool) {
	return bandNames(c.node)
}

func (i Image) Node() *Node {
	return i.node
}

func (i Image) Clip(roi geometry.ROI) Image {
	return Image{node: &Node{Op: OpClip, Inputs: []*Node{i.node}, Args: map[string]any{ArgRegion: roi}}}
}

func (i Image) BandNames() ([]string, bool) {
	return bandNames(i.node)
}

func (i Image) IsZero() bool {
	return i.node == nil
}

// Cat concatenates the bands of the images in order.
func Cat(images ...Image) Image {
	inputs := make([]*Node, 0, len(images))
	for _, im := range images {
		inputs = append(inputs, im.node)
	}
	return Image{node: &Node{Op: OpCat, Inputs: inputs}}
}

func bandNames(n *Node) ([]string, bool) {
	if n == nil {
		return nil, false
	}
	switch n.Op {
	case OpNormalizedDifference:
		name, err := n.String(ArgName)
		if err != nil {
			return nil, false
		}
		upstream, ok := bandNames(first(n.Inputs))
		if !ok {
			return nil, false
		}
		return append(append([]string{}, upstream...), name), true
	case OpSelect:
		band, err := n.String(ArgBand)
		if err != nil {
			return nil, false
		}
		return []string{band}, true
	case OpCat:
		var names []string
		for _, in := range n.Inputs {
			inNames, ok := bandNames(in)
			if !ok {
				return nil, false
			}
			names = append(names, inNames...)
		}
		return names, true
	case OpLoad:
		return nil, false
	default:
		return bandNames(first(n.Inputs))
	}
}

func first(nodes []*Node) *Node {
	if len(nodes) == 0 {
		return nil
	}
	return nodes[0]
}

func (i Image) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.node)
}

func (i *Image) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		i.node = nil
		return nil
	}
	var n Node
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	i.node = &n
	return nil
}
