package featnum

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Project is a manifest of named layers and the geodatabase files backing
// them. It replaces the host application's ambient "current project": the
// caller loads a manifest and resolves layer names through it explicitly.
type Project struct {
	Name   string         `yaml:"name"`
	Layers []ProjectLayer `yaml:"layers"`

	dir string // manifest directory, base for relative sources
}

// ProjectLayer is one layer entry of a project manifest.
type ProjectLayer struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source"`          // geodatabase file path
	Layer  string `yaml:"layer,omitempty"` // table name within the source, if any
}

// DataSource is a resolved layer reference: the absolute path of the
// containing geodatabase and the layer name within it.
type DataSource struct {
	Path  string
	Layer string
}

// LoadProject reads a project manifest from path.
func LoadProject(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("featnum: read project: %w", err)
	}

	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("featnum: parse project: %w", err)
	}

	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("featnum: resolve project dir: %w", err)
	}
	p.dir = dir

	return &p, nil
}

// Resolve returns the data source backing the named layer. The source path
// is made absolute relative to the manifest's directory. Returns
// ErrLayerNotFound when the project has no such layer and ErrNoDataSource
// when the entry carries no source path.
func (p *Project) Resolve(layerName string) (DataSource, error) {
	for _, l := range p.Layers {
		if l.Name != layerName {
			continue
		}
		if l.Source == "" {
			return DataSource{}, fmt.Errorf("%w: %q", ErrNoDataSource, layerName)
		}
		src := l.Source
		if !filepath.IsAbs(src) {
			src = filepath.Join(p.dir, src)
		}
		return DataSource{Path: src, Layer: l.Layer}, nil
	}
	return DataSource{}, fmt.Errorf("%w: %q", ErrLayerNotFound, layerName)
}
