package compreface

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FacesConfig is the known-faces file: every face is a subject tag with one
// or more reference images under the faces folder.
//
//	faces:
//	  - tag: alice
//	    images:
//	      - name: alice/1.jpg
type FacesConfig struct {
	Faces []Face `yaml:"faces"`
}

// Face is one subject.
type Face struct {
	Tag    string      `yaml:"tag"`
	Images []FaceImage `yaml:"images"`
}

// FaceImage names a reference image relative to the faces folder.
type FaceImage struct {
	Name string `yaml:"name"`
}

// LoadFacesConfig reads and parses the faces file.
func LoadFacesConfig(path string) (*FacesConfig, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- operator supplied config path
	if err != nil {
		return nil, fmt.Errorf("read faces config: %w", err)
	}
	var cfg FacesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse faces config %s: %w", path, err)
	}
	for i, f := range cfg.Faces {
		if f.Tag == "" {
			return nil, fmt.Errorf("faces config %s: face %d has no tag", path, i)
		}
	}
	return &cfg, nil
}

// imagePaths resolves every reference image against folder.
func (c *FacesConfig) imagePaths(folder string) []subjectImage {
	var out []subjectImage
	for _, f := range c.Faces {
		for _, img := range f.Images {
			out = append(out, subjectImage{
				subject: f.Tag,
				path:    filepath.Clean(filepath.Join(folder, img.Name)),
			})
		}
	}
	return out
}

type subjectImage struct {
	subject string
	path    string
}
