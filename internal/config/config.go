// Package config loads tracker and builder settings from a YAML file and
// converts them into functional options. Unset fields keep the package
// defaults, which is why numeric and boolean fields are pointers.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	builder "github.com/hanpama/cascade/internal/builder"
	tracker "github.com/hanpama/cascade/internal/tracker"
)

type Config struct {
	Tracker TrackerConfig `yaml:"tracker"`
	Builder BuilderConfig `yaml:"builder"`
	Otel    OtelConfig    `yaml:"otel"`
}

type TrackerConfig struct {
	MaxDepth             *int     `yaml:"max_depth"`
	MaxEntities          *int     `yaml:"max_entities"`
	MaxRelatedPerEntity  *int     `yaml:"max_related_per_entity"`
	ExcludeTypes         []string `yaml:"exclude_types"`
	RelationshipTracking *bool    `yaml:"relationship_tracking"`
}

type BuilderConfig struct {
	MaxResponseSizeMB  *float64 `yaml:"max_response_size_mb"`
	MaxUpdatedEntities *int     `yaml:"max_updated_entities"`
	MaxDeletedEntities *int     `yaml:"max_deleted_entities"`
	MaxInvalidations   *int     `yaml:"max_invalidations"`
	TimingMetadata     *bool    `yaml:"timing_metadata"`
	TransactionID      *bool    `yaml:"transaction_id"`
}

type OtelConfig struct {
	Endpoint string `yaml:"endpoint"`
	Service  string `yaml:"service"`
}

// Load reads and decodes the YAML file at path. Unknown fields are
// rejected so typos do not silently fall back to defaults.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// TrackerOptions converts the tracker section into options, emitting one
// per field that was set.
func (c *Config) TrackerOptions() []tracker.Option {
	var opts []tracker.Option
	t := c.Tracker
	if t.MaxDepth != nil {
		opts = append(opts, tracker.WithMaxDepth(*t.MaxDepth))
	}
	if t.MaxEntities != nil {
		opts = append(opts, tracker.WithMaxEntities(*t.MaxEntities))
	}
	if t.MaxRelatedPerEntity != nil {
		opts = append(opts, tracker.WithMaxRelatedPerEntity(*t.MaxRelatedPerEntity))
	}
	if len(t.ExcludeTypes) > 0 {
		opts = append(opts, tracker.WithExcludeTypes(t.ExcludeTypes...))
	}
	if t.RelationshipTracking != nil {
		opts = append(opts, tracker.WithRelationshipTracking(*t.RelationshipTracking))
	}
	return opts
}

// BuilderOptions converts the builder section into options.
func (c *Config) BuilderOptions() []builder.Option {
	var opts []builder.Option
	b := c.Builder
	if b.MaxResponseSizeMB != nil {
		opts = append(opts, builder.WithMaxResponseSizeMB(*b.MaxResponseSizeMB))
	}
	if b.MaxUpdatedEntities != nil {
		opts = append(opts, builder.WithMaxUpdatedEntities(*b.MaxUpdatedEntities))
	}
	if b.MaxDeletedEntities != nil {
		opts = append(opts, builder.WithMaxDeletedEntities(*b.MaxDeletedEntities))
	}
	if b.MaxInvalidations != nil {
		opts = append(opts, builder.WithMaxInvalidations(*b.MaxInvalidations))
	}
	if b.TimingMetadata != nil {
		opts = append(opts, builder.WithTimingMetadata(*b.TimingMetadata))
	}
	if b.TransactionID != nil {
		opts = append(opts, builder.WithTransactionID(*b.TransactionID))
	}
	return opts
}
