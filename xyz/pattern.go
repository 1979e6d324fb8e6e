// Package xyz handles tile addresses of the form "/z/x/y.ext": URL templates used to fetch
// tiles, and tilesets stored as individual files in such a directory layout.
package xyz

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/eak1mov/go-tileflow/tile"
)

var ErrInvalidPattern = errors.New("tileflow: invalid tile pattern")

// Template is a tile address pattern with {z}, {x} and {y} placeholders.
// The optional {prefix} placeholder expands to the hex digits of x%16 and y%16, and
// {ratio} expands to "@2x" style suffixes for high density displays.
type Template struct {
	pattern string
	re      *regexp.Regexp
}

func validatePattern(pattern string) error {
	for _, p := range []string{"{x}", "{y}", "{z}"} {
		if !strings.Contains(pattern, p) {
			return fmt.Errorf("%w: placeholder %v not found", ErrInvalidPattern, p)
		}
	}
	return nil
}

// ParseTemplate validates pattern (e.g. "https://tiles.example.com/{z}/{x}/{y}{ratio}.png").
func ParseTemplate(pattern string) (*Template, error) {
	if err := validatePattern(pattern); err != nil {
		return nil, err
	}

	regexPattern := regexp.QuoteMeta(pattern)
	regexPattern = strings.ReplaceAll(regexPattern, `\{x\}`, `(?P<x>\d+)`)
	regexPattern = strings.ReplaceAll(regexPattern, `\{y\}`, `(?P<y>\d+)`)
	regexPattern = strings.ReplaceAll(regexPattern, `\{z\}`, `(?P<z>\d+)`)
	regexPattern = strings.ReplaceAll(regexPattern, `\{prefix\}`, `[0-9a-f]{2}`)
	regexPattern = strings.ReplaceAll(regexPattern, `\{ratio\}`, `(?:@\d+x)?`)
	re, err := regexp.Compile("^" + regexPattern + "$")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPattern, err)
	}

	return &Template{pattern: pattern, re: re}, nil
}

func (t *Template) String() string {
	return t.pattern
}

// TileURL expands the template for the data tile of tileID.
func (t *Template) TileURL(tileID tile.ID, pixelRatio float64) string {
	ratio := ""
	if pixelRatio > 1 {
		ratio = fmt.Sprintf("@%dx", int(pixelRatio+0.5))
	}
	prefix := strconv.FormatUint(uint64(tileID.X%16), 16) + strconv.FormatUint(uint64(tileID.Y%16), 16)

	result := t.pattern
	result = strings.ReplaceAll(result, "{x}", fmt.Sprintf("%d", tileID.X))
	result = strings.ReplaceAll(result, "{y}", fmt.Sprintf("%d", tileID.Y))
	result = strings.ReplaceAll(result, "{z}", fmt.Sprintf("%d", tileID.Z))
	result = strings.ReplaceAll(result, "{prefix}", prefix)
	result = strings.ReplaceAll(result, "{ratio}", ratio)
	return result
}

// Match parses an address produced by TileURL back into a tile ID.
func (t *Template) Match(address string) (tile.ID, bool) {
	matches := t.re.FindStringSubmatch(address)
	if matches == nil {
		return tile.ID{}, false
	}

	x, errX := strconv.ParseUint(matches[t.re.SubexpIndex("x")], 10, 32)
	y, errY := strconv.ParseUint(matches[t.re.SubexpIndex("y")], 10, 32)
	z, errZ := strconv.ParseUint(matches[t.re.SubexpIndex("z")], 10, 32)
	if errX != nil || errY != nil || errZ != nil {
		return tile.ID{}, false
	}

	tileID := tile.ID{X: uint32(x), Y: uint32(y), Z: uint32(z)}
	return tileID, tileID.Valid()
}
