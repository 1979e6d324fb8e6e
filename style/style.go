// Package style holds the read-only view of a map style that the tile parsers consume:
// an ordered list of layer descriptors.
//
// A Snapshot never changes after construction. Style edits produce a new Snapshot, so a
// parse job can keep using the one it started with.
package style

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
)

type LayerType uint8

const (
	LayerBackground LayerType = iota
	LayerFill
	LayerLine
	LayerCircle
	LayerSymbol
	LayerRaster
)

var layerTypeNames = map[LayerType]string{
	LayerBackground: "background",
	LayerFill:       "fill",
	LayerLine:       "line",
	LayerCircle:     "circle",
	LayerSymbol:     "symbol",
	LayerRaster:     "raster",
}

func (t LayerType) String() string {
	if name, ok := layerTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseLayerType maps a style type name to its LayerType.
func ParseLayerType(name string) (LayerType, error) {
	for t, n := range layerTypeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownLayerType, name)
}

// HasBucket reports whether layers of this type build a per-tile bucket.
func (t LayerType) HasBucket() bool {
	return t != LayerBackground
}

// Layout holds the layout properties the parsers care about.
type Layout struct {
	TextField        string // e.g. "{name}"
	TextFont         string // font stack, e.g. "Open Sans Regular"
	TextSize         float64
	TextPadding      float64
	TextAllowOverlap bool
	IconImage        string
}

type Layer struct {
	ID          string
	Type        LayerType
	Source      string
	SourceLayer string
	MinZoom     float64
	MaxZoom     float64 // zero means unbounded
	Hidden      bool
	Filter      Filter
	Layout      Layout
	Paint       map[string]any
}

// InZoom reports whether the layer is rendered at zoom z.
func (l *Layer) InZoom(z float64) bool {
	if z < l.MinZoom {
		return false
	}
	return l.MaxZoom == 0 || z < l.MaxZoom
}

var tokenPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// Text resolves TextField tokens against feature properties. Tokens without a value
// resolve to the empty string.
func (l *Layer) Text(properties map[string]any) string {
	return tokenPattern.ReplaceAllStringFunc(l.Layout.TextField, func(token string) string {
		value, ok := properties[token[1:len(token)-1]]
		if !ok || value == nil {
			return ""
		}
		return fmt.Sprint(value)
	})
}

// Snapshot is an immutable ordered list of layers.
type Snapshot struct {
	layers []*Layer
	byID   map[string]*Layer
}

// New builds a snapshot from copies of layers. Layer IDs must be unique.
func New(layers ...Layer) (*Snapshot, error) {
	s := &Snapshot{
		layers: make([]*Layer, 0, len(layers)),
		byID:   make(map[string]*Layer, len(layers)),
	}
	for _, layer := range layers {
		if layer.ID == "" {
			return nil, ErrEmptyLayerID
		}
		if _, exists := s.byID[layer.ID]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateLayer, layer.ID)
		}
		l := layer
		l.Filter = slices.Clone(layer.Filter)
		l.Paint = maps.Clone(layer.Paint)
		s.layers = append(s.layers, &l)
		s.byID[l.ID] = &l
	}
	return s, nil
}

// Layers returns the layers in render order. The result must not be modified.
func (s *Snapshot) Layers() []*Layer {
	if s == nil {
		return nil
	}
	return s.layers
}

// Layer returns the layer with the given ID or nil.
func (s *Snapshot) Layer(id string) *Layer {
	if s == nil {
		return nil
	}
	return s.byID[id]
}

// Len returns the number of layers.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.layers)
}
