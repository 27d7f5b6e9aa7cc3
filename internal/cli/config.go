package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the YAML run configuration consumed by the fetch command.
//
//	catalog: catalog.cue        # optional; embedded default otherwise
//	chunk_size: 500             # optional
//	databases:
//	  - url: sqlite:///data/a.sqlite
//	    item_types: [object, parameter_value]
//	    only_descendants: false
//	    include_ancestors: true
//	  - url: data/b.sqlite      # nil item_types fetches everything
type Config struct {
	Catalog   string           `yaml:"catalog"`
	ChunkSize int              `yaml:"chunk_size"`
	Databases []DatabaseConfig `yaml:"databases"`
}

// DatabaseConfig selects what to fetch from one database.
type DatabaseConfig struct {
	URL              string   `yaml:"url"`
	ItemTypes        []string `yaml:"item_types"`
	OnlyDescendants  bool     `yaml:"only_descendants"`
	IncludeAncestors bool     `yaml:"include_ancestors"`
}

// LoadConfig reads and validates a run configuration file.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if len(cfg.Databases) == 0 {
		return nil, fmt.Errorf("config %s: no databases listed", path)
	}
	for i, db := range cfg.Databases {
		if db.URL == "" {
			return nil, fmt.Errorf("config %s: databases[%d]: missing url", path, i)
		}
	}
	if cfg.ChunkSize < 0 {
		return nil, fmt.Errorf("config %s: chunk_size must be positive", path)
	}
	return &cfg, nil
}
