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

// Package fingerprint persists a relative-path → content-hash map and
// answers the per-file skip-or-process question.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// DefaultMapName is the well-known fingerprint document name under the
// source root.
const DefaultMapName = ".optirc.lock"

var ErrMapRead = errors.New("reading fingerprint map")

// 🔐 Cache owns the in-memory fingerprint map. It is safe for use from
// concurrently running file pipelines; all map mutation is serialized.
type Cache struct {
	enabled bool
	squash  bool
	mapName string

	mu      sync.Mutex
	path    string
	entries map[string]string
}

// Options configures a Cache.
type Options struct {
	// Disabled turns fingerprinting off entirely: every file processes,
	// nothing is loaded or persisted.
	Disabled bool
	// Squash discards any persisted map and starts fresh.
	Squash bool
	// MapName overrides DefaultMapName.
	MapName string
}

// 🏭 New creates a cache. The map is empty until Load is called.
func New(opts Options) *Cache {
	name := opts.MapName
	if name == "" {
		name = DefaultMapName
	}
	return &Cache{
		enabled: !opts.Disabled,
		squash:  opts.Squash,
		mapName: name,
		entries: make(map[string]string),
	}
}

// Enabled reports whether fingerprinting is active for this run
func (c *Cache) Enabled() bool {
	return c.enabled
}

// Load reads the persisted map from sourceRoot. A missing document is not an
// error; a read or parse failure is returned wrapped in ErrMapRead and
// leaves the in-memory map empty, so callers can degrade to "no cache".
func (c *Cache) Load(ctx context.Context, sourceRoot string) error {
	if !c.enabled {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.path = filepath.Join(sourceRoot, c.mapName)

	if c.squash {
		zerolog.Ctx(ctx).Debug().Str("path", c.path).Msg("squashing fingerprint map")
		return nil
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Errorf("%w: %s: %w", ErrMapRead, c.path, err)
	}

	entries := make(map[string]string)
	if err := json.Unmarshal(data, &entries); err != nil {
		return errors.Errorf("%w: parsing %s: %w", ErrMapRead, c.path, err)
	}

	c.entries = entries
	zerolog.Ctx(ctx).Debug().Str("path", c.path).Int("entries", len(entries)).Msg("loaded fingerprint map")
	return nil
}

// ShouldProcess returns false only when fingerprinting is enabled and the
// stored hash for key equals newHash. In every other case it returns true
// and immediately upserts the entry: the map is optimistically updated at
// decision time, so a later write failure does not roll the entry back.
func (c *Cache) ShouldProcess(key, newHash string) bool {
	if !c.enabled {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if stored, ok := c.entries[key]; ok && stored == newHash {
		return false
	}
	c.entries[key] = newHash
	return true
}

// Len returns the number of entries currently held
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Persist serializes the in-memory map back to the path resolved at Load
// time. The write is atomic (temp file + rename) and guarded by a sidecar
// flock so concurrent runs over the same source tree do not interleave.
func (c *Cache) Persist(ctx context.Context) error {
	if !c.enabled {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.path == "" {
		return nil
	}

	lock := flock.New(c.path + ".flock")
	if err := lock.Lock(); err != nil {
		return errors.Errorf("locking fingerprint map: %w", err)
	}
	defer lock.Unlock()

	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return errors.Errorf("encoding fingerprint map: %w", err)
	}

	tempPath := c.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return errors.Errorf("writing temp fingerprint map: %w", err)
	}
	if err := os.Rename(tempPath, c.path); err != nil {
		os.Remove(tempPath)
		return errors.Errorf("renaming fingerprint map: %w", err)
	}

	zerolog.Ctx(ctx).Debug().Str("path", c.path).Int("entries", len(c.entries)).Msg("persisted fingerprint map")
	return nil
}

// Key builds the stable map key for a source file: relative directory plus
// the source base name. The key never reflects an output-extension change,
// so a retyped file is still matched on subsequent runs.
func Key(relDir, sourceBase string) string {
	if relDir == "" {
		return sourceBase
	}
	return path.Join(filepath.ToSlash(relDir), sourceBase)
}

// Hash returns the lowercase hex SHA-256 of content
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
