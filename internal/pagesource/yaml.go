package pagesource

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dbehnke/mcdu429/internal/display"
	"gopkg.in/yaml.v3"
)

// yamlPage is the on-disk layout of a hand-written page:
//
//	title: INIT REF
//	page: 1/3
//	scratchpad: ""
//	lines:
//	  - "¨[m]POS INIT[/m]"
type yamlPage struct {
	Title      string   `yaml:"title"`
	Page       string   `yaml:"page"`
	Scratchpad string   `yaml:"scratchpad"`
	Lines      []string `yaml:"lines"`
}

// ParseYAMLPage decodes a YAML page document.
func ParseYAMLPage(data []byte) (display.Snapshot, error) {
	var p yamlPage
	if err := yaml.Unmarshal(data, &p); err != nil {
		return display.Snapshot{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	snap := display.Snapshot{
		Title:      strings.TrimSpace(p.Title),
		PageID:     strings.TrimSpace(p.Page),
		Scratchpad: strings.TrimSpace(p.Scratchpad),
	}
	for i := 0; i < len(p.Lines) && i < display.ContentLines; i++ {
		snap.Lines[i] = p.Lines[i]
	}
	return snap, nil
}

// YAMLFile serves a page kept in a YAML file.
type YAMLFile struct {
	name string
	path string
}

func NewYAMLFile(name, path string) *YAMLFile {
	return &YAMLFile{name: name, path: path}
}

func (s *YAMLFile) Name() string { return s.name }

func (s *YAMLFile) Fetch(ctx context.Context) (display.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return display.Snapshot{}, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return display.Snapshot{}, fmt.Errorf("read %s: %w", s.path, err)
	}
	return ParseYAMLPage(data)
}
