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

// Package optimize is the call boundary to the pluggable optimizer
// backends. The orchestrator only ever sees the Backend capability; what a
// backend actually does to the bytes is opaque.
package optimize

import (
	"context"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// 🔌 Backend is a single pluggable transformation unit
type Backend interface {
	// Name identifies the backend in config and logs
	Name() string
	// Optimize transforms raw bytes into (hopefully smaller) output bytes
	Optimize(ctx context.Context, data []byte) ([]byte, error)
}

// 🎯 Dispatcher chains the active backends over a file's bytes
type Dispatcher struct {
	backends []Backend
}

// 🏭 NewDispatcher creates a dispatcher over the given backends. Zero
// backends is valid: Transform then passes bytes through unchanged.
func NewDispatcher(backends ...Backend) *Dispatcher {
	return &Dispatcher{backends: backends}
}

// Backends returns the active backend names, for reporting
func (d *Dispatcher) Backends() []string {
	names := make([]string, 0, len(d.backends))
	for _, b := range d.backends {
		names = append(names, b.Name())
	}
	return names
}

// Transform runs data through every active backend in order. A backend
// failure is wrapped with the backend's name and returned as-is; the error
// is not interpreted here.
func (d *Dispatcher) Transform(ctx context.Context, data []byte) ([]byte, error) {
	out := data
	for _, b := range d.backends {
		transformed, err := b.Optimize(ctx, out)
		if err != nil {
			return nil, errors.Errorf("backend %s: %w", b.Name(), err)
		}
		zerolog.Ctx(ctx).Debug().
			Str("backend", b.Name()).
			Int("in", len(out)).
			Int("out", len(transformed)).
			Msg("backend applied")
		out = transformed
	}
	return out, nil
}
