// Package glyph tracks which glyph ranges of each font stack are available for label
// layout, loads missing ranges asynchronously, and measures label text.
package glyph

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/eak1mov/go-tileflow/fetch"
	"github.com/eak1mov/go-tileflow/runloop"
	"github.com/eak1mov/go-tileflow/tile"
)

var ErrLoadFailed = errors.New("tileflow: glyph range load failed")

const rangeSize = 256

// Range is a block of 256 code points.
type Range struct {
	Start rune
	End   rune
}

func RangeOf(r rune) Range {
	start := r / rangeSize * rangeSize
	return Range{Start: start, End: start + rangeSize - 1}
}

func (r Range) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// Ranges returns the sorted distinct ranges needed to render text.
func Ranges(text string) []Range {
	var ranges []Range
	for _, r := range text {
		gr := RangeOf(r)
		if !slices.Contains(ranges, gr) {
			ranges = append(ranges, gr)
		}
	}
	slices.SortFunc(ranges, func(a, b Range) int { return cmp.Compare(a.Start, b.Start) })
	return ranges
}

// Loader loads one glyph range. done must be called exactly once, on the loop.
type Loader interface {
	Load(fontStack string, r Range, done func(error))
}

// FetchLoader loads glyph ranges through a fetch service. The URL template uses the
// {fontstack} and {range} placeholders, e.g. "https://fonts.example.com/{fontstack}/{range}.pbf".
type FetchLoader struct {
	service  fetch.Service
	template string
}

func NewFetchLoader(service fetch.Service, template string) *FetchLoader {
	return &FetchLoader{service: service, template: template}
}

func (l *FetchLoader) Load(fontStack string, r Range, done func(error)) {
	url := strings.ReplaceAll(l.template, "{fontstack}", fontStack)
	url = strings.ReplaceAll(url, "{range}", r.String())
	l.service.Fetch(fetch.Resource{Kind: tile.KindGlyphs, URL: url}, func(res fetch.Response) {
		if res.Status != fetch.StatusSuccessful {
			done(fmt.Errorf("%w: [%s]: %s", ErrLoadFailed, url, res.Message))
			return
		}
		done(nil)
	})
}

// LocalLoader serves every range from the built-in font; loads complete on the next
// loop iteration.
type LocalLoader struct {
	loop *runloop.Loop
}

func NewLocalLoader(loop *runloop.Loop) *LocalLoader {
	return &LocalLoader{loop: loop}
}

func (l *LocalLoader) Load(_ string, _ Range, done func(error)) {
	l.loop.Invoke(func() { done(nil) })
}

type rangeKey struct {
	fontStack string
	r         Range
}

type rangeState struct {
	loaded bool
	err    error
}

// Store records glyph range availability. Missing and Request are safe to call from
// worker goroutines; observers run on the loop.
type Store struct {
	loader  Loader
	metrics *Metrics
	logger  *slog.Logger

	mu        sync.Mutex
	ranges    map[rangeKey]*rangeState
	observers map[int]func()
	nextID    int
}

type storeConfig struct {
	Metrics *Metrics
	Logger  *slog.Logger
}

type Option func(*storeConfig)

// WithMetrics replaces the built-in label metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(c *storeConfig) { c.Metrics = metrics }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *storeConfig) { c.Logger = logger }
}

func NewStore(loader Loader, opts ...Option) (*Store, error) {
	config := storeConfig{
		Logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Metrics == nil {
		metrics, err := NewDefaultMetrics()
		if err != nil {
			return nil, err
		}
		config.Metrics = metrics
	}

	return &Store{
		loader:    loader,
		metrics:   config.Metrics,
		logger:    config.Logger,
		ranges:    make(map[rangeKey]*rangeState),
		observers: make(map[int]func()),
	}, nil
}

func (s *Store) Metrics() *Metrics {
	return s.metrics
}

// Missing returns the ranges needed by text that are not loaded yet. It returns an error
// if one of them failed to load.
func (s *Store) Missing(fontStack, text string) ([]Range, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var missing []Range
	for _, r := range Ranges(text) {
		st := s.ranges[rangeKey{fontStack, r}]
		switch {
		case st == nil:
			missing = append(missing, r)
		case st.err != nil:
			return nil, st.err
		case !st.loaded:
			missing = append(missing, r)
		}
	}
	return missing, nil
}

// Settled reports whether every range has finished loading, successfully or not.
func (s *Store) Settled(fontStack string, ranges []Range) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range ranges {
		st := s.ranges[rangeKey{fontStack, r}]
		if st == nil || (!st.loaded && st.err == nil) {
			return false
		}
	}
	return true
}

// Request starts loading the given ranges unless they are loaded or already loading.
func (s *Store) Request(fontStack string, ranges []Range) {
	var start []Range

	s.mu.Lock()
	for _, r := range ranges {
		key := rangeKey{fontStack, r}
		if _, exists := s.ranges[key]; exists {
			continue
		}
		s.ranges[key] = &rangeState{}
		start = append(start, r)
	}
	s.mu.Unlock()

	for _, r := range start {
		s.logger.Debug("tileflow: loading glyphs", "fontstack", fontStack, "range", r.String())
		s.loader.Load(fontStack, r, func(err error) {
			s.finish(rangeKey{fontStack, r}, err)
		})
	}
}

func (s *Store) finish(key rangeKey, err error) {
	s.mu.Lock()
	st := s.ranges[key]
	if err != nil && !errors.Is(err, ErrLoadFailed) {
		err = fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	st.loaded = err == nil
	st.err = err
	observers := make([]func(), 0, len(s.observers))
	ids := make([]int, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		observers = append(observers, s.observers[id])
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("tileflow: glyph range failed", "fontstack", key.fontStack, "range", key.r.String(), "error", err)
	}
	for _, fn := range observers {
		fn()
	}
}

// Observe registers fn to run on the loop whenever a range finishes loading.
// The returned function removes the observer.
func (s *Store) Observe(fn func()) (remove func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}
