// Package pagesource supplies host page snapshots to the engine.
package pagesource

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dbehnke/mcdu429/internal/config"
	"github.com/dbehnke/mcdu429/internal/display"
)

var (
	// ErrMalformed marks a page document that could not be decoded. The
	// snapshot returned alongside it is blank.
	ErrMalformed = errors.New("pagesource: malformed page")
	// ErrNoPage means the source currently has nothing to show.
	ErrNoPage = errors.New("pagesource: no page available")
	// ErrUnknownKind is returned by FromConfig for an unsupported kind.
	ErrUnknownKind = errors.New("pagesource: unknown source kind")
)

// Source yields the current page of one host feed.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (display.Snapshot, error)
}

type prosimDocument struct {
	Title      string   `xml:"title"`
	TitlePage  string   `xml:"titlePage"`
	Scratchpad string   `xml:"scratchpad"`
	Lines      []string `xml:"line"`
}

// ParseProSimXML decodes a ProSim CDU document. Missing lines are blank
// and lines past the twelfth are ignored. On a decode error the blank
// snapshot is returned with an error wrapping ErrMalformed.
func ParseProSimXML(data []byte) (display.Snapshot, error) {
	var doc prosimDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return display.Snapshot{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	snap := display.Snapshot{
		Title:      strings.TrimSpace(doc.Title),
		PageID:     strings.TrimSpace(doc.TitlePage),
		Scratchpad: strings.TrimSpace(doc.Scratchpad),
	}
	for i := 0; i < len(doc.Lines) && i < display.ContentLines; i++ {
		snap.Lines[i] = doc.Lines[i]
	}
	return snap, nil
}

// ProSimFile reads a ProSim XML export from disk on every fetch.
type ProSimFile struct {
	name string
	path string
}

func NewProSimFile(name, path string) *ProSimFile {
	return &ProSimFile{name: name, path: path}
}

func (s *ProSimFile) Name() string { return s.name }

func (s *ProSimFile) Fetch(ctx context.Context) (display.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return display.Snapshot{}, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return display.Snapshot{}, fmt.Errorf("read %s: %w", s.path, err)
	}
	return ParseProSimXML(data)
}

// FromConfig builds the source described by one [[source]] table.
func FromConfig(src config.Source) (Source, error) {
	switch src.Kind {
	case config.SourceProSim:
		return NewProSimFile(src.Name, src.Path), nil
	case config.SourceYAML:
		return NewYAMLFile(src.Name, src.Path), nil
	case config.SourceRedis:
		return NewRedisSource(src.Name, src.RedisAddr, src.RedisKey), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, src.Kind)
	}
}
