// Package registry loads the list of municipal sites to scrape.
package registry

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/vacancy-crawler/internal/vacancy"
)

//go:embed sites.yaml
var defaultSites []byte

type siteEntry struct {
	ID         int64    `yaml:"id"`
	Name       string   `yaml:"name"`
	Latitude   *float64 `yaml:"latitude"`
	Longitude  *float64 `yaml:"longitude"`
	Website    string   `yaml:"website"`
	VacancyURL string   `yaml:"vacancy_url"`
	Enabled    *bool    `yaml:"enabled"`
}

type document struct {
	Sites []siteEntry `yaml:"sites"`
}

// Parse decodes a YAML site table. Entries without an explicit enabled flag
// are enabled.
func Parse(data []byte) ([]vacancy.Site, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode site registry: %w", err)
	}
	seen := make(map[int64]struct{}, len(doc.Sites))
	sites := make([]vacancy.Site, 0, len(doc.Sites))
	for i, entry := range doc.Sites {
		if entry.ID <= 0 {
			return nil, fmt.Errorf("site entry %d: id must be positive", i)
		}
		if entry.Name == "" {
			return nil, fmt.Errorf("site %d: name is required", entry.ID)
		}
		if _, dup := seen[entry.ID]; dup {
			return nil, fmt.Errorf("site %d: duplicate id", entry.ID)
		}
		seen[entry.ID] = struct{}{}
		enabled := true
		if entry.Enabled != nil {
			enabled = *entry.Enabled
		}
		sites = append(sites, vacancy.Site{
			ID:         entry.ID,
			Name:       entry.Name,
			Latitude:   entry.Latitude,
			Longitude:  entry.Longitude,
			HomeURL:    entry.Website,
			VacancyURL: entry.VacancyURL,
			Enabled:    enabled,
		})
	}
	return sites, nil
}

// Static serves a fixed site list.
type Static struct {
	sites []vacancy.Site
}

// NewStatic copies sites into a Static registry.
func NewStatic(sites []vacancy.Site) *Static {
	return &Static{sites: append([]vacancy.Site(nil), sites...)}
}

// Default returns the built-in municipality table.
func Default() (*Static, error) {
	sites, err := Parse(defaultSites)
	if err != nil {
		return nil, err
	}
	return NewStatic(sites), nil
}

// Sites returns a copy of the configured sites.
func (s *Static) Sites(ctx context.Context) ([]vacancy.Site, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]vacancy.Site(nil), s.sites...), nil
}

// File reads the site table from disk on every call so edits apply to the
// next run.
type File struct {
	path string
}

// NewFile returns a registry backed by the YAML file at path.
func NewFile(path string) (*File, error) {
	if path == "" {
		return nil, errors.New("registry path is required")
	}
	return &File{path: path}, nil
}

// Sites loads and parses the registry file.
func (f *File) Sites(ctx context.Context) ([]vacancy.Site, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read site registry %s: %w", f.path, err)
	}
	return Parse(data)
}

// Open picks the file registry when path is set and the built-in table otherwise.
func Open(path string) (vacancy.Registry, error) {
	if path == "" {
		return Default()
	}
	return NewFile(path)
}
