// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config resolves and parses the optional transform configuration
// document that carries per-backend option sets.
package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

// 🔌 Parser is the interface for config parsers
type Parser interface {
	// 📝 Parse parses the config from bytes
	Parse(ctx context.Context, data []byte) (*Config, error)

	// 🔍 CanParse checks if this parser can handle the given file
	CanParse(filename string) bool
}

var (
	// 🗺️ parsers is a list of available parsers
	parsers []Parser
)

// 📝 Register registers a parser
func Register(p Parser) {
	parsers = append(parsers, p)
}

// 🎯 GetParser returns a parser that can handle the given file
func GetParser(filename string) Parser {
	for _, p := range parsers {
		if p.CanParse(filename) {
			return p
		}
	}
	return nil
}

// 📚 Config is the transform configuration document: one free-form option
// set per backend name, plus optional source ignore globs.
type Config struct {
	Backends       map[string]map[string]any `json:"backends" yaml:"backends"`
	IgnorePatterns []string                  `json:"ignore_patterns" yaml:"ignore_patterns"`
}

// Empty reports whether the document carries nothing usable
func (cfg *Config) Empty() bool {
	return cfg == nil || (len(cfg.Backends) == 0 && len(cfg.IgnorePatterns) == 0)
}

// defaultBasenames are the document names tried in each search location
var defaultBasenames = []string{".optirc.json", ".optirc.yaml", ".optirc.yml"}

// 🔧 ResolveOptions controls document resolution
type ResolveOptions struct {
	// Disabled skips resolution entirely and yields an empty config
	Disabled bool
	// ExplicitPath is checked first when set
	ExplicitPath string
	// WorkDir is the second search location (the process cwd)
	WorkDir string
	// SourceRoot is the third search location
	SourceRoot string
}

// Resolve finds the transform configuration document. Locations are checked
// in priority order (explicit path, working directory, source root); the
// first existing, parseable, non-empty document wins. No document at all is
// not an error: the pipeline runs with zero configured backends.
func Resolve(ctx context.Context, opts ResolveOptions) (*Config, error) {
	logger := zerolog.Ctx(ctx)

	if opts.Disabled {
		logger.Debug().Msg("transform configuration disabled")
		return &Config{}, nil
	}

	var candidates []string
	if opts.ExplicitPath != "" {
		candidates = append(candidates, opts.ExplicitPath)
	}
	for _, dir := range []string{opts.WorkDir, opts.SourceRoot} {
		if dir == "" {
			continue
		}
		for _, base := range defaultBasenames {
			candidates = append(candidates, filepath.Join(dir, base))
		}
	}

	for _, path := range candidates {
		cfg, err := load(ctx, path)
		if err != nil {
			logger.Warn().Str("path", path).Err(err).Msg("skipping unusable config document")
			continue
		}
		if cfg == nil || cfg.Empty() {
			continue
		}
		logger.Debug().Str("path", path).Int("backends", len(cfg.Backends)).Msg("resolved transform configuration")
		return cfg, nil
	}

	return &Config{}, nil
}

// load reads and parses a single candidate; nil without error means the
// file does not exist.
func load(ctx context.Context, path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Errorf("reading config file: %w", err)
	}

	p := GetParser(path)
	if p == nil {
		return nil, errors.Errorf("no parser found for file: %s", path)
	}

	cfg, err := p.Parse(ctx, data)
	if err != nil {
		return nil, errors.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Merge overlays document options onto a backend's defaults without
// mutating either map.
func Merge(defaults, overrides map[string]any) map[string]any {
	merged := make(map[string]any, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// 🔧 JSONParser implements the Parser interface for JSON files
type JSONParser struct{}

func init() {
	Register(&JSONParser{})
}

func (p *JSONParser) CanParse(filename string) bool {
	return strings.HasSuffix(filename, ".json")
}

func (p *JSONParser) Parse(ctx context.Context, data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Errorf("parsing JSON: %w", err)
	}
	return &cfg, nil
}

// 🔧 YAMLParser implements the Parser interface for YAML files
type YAMLParser struct{}

func init() {
	Register(&YAMLParser{})
}

func (p *YAMLParser) CanParse(filename string) bool {
	return strings.HasSuffix(filename, ".yaml") || strings.HasSuffix(filename, ".yml")
}

func (p *YAMLParser) Parse(ctx context.Context, data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(string(data)))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, errors.Errorf("parsing YAML: %w", err)
	}
	return &cfg, nil
}
