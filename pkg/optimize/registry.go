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

package optimize

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

var ErrBackendUnavailable = errors.New("backend unavailable")

// 🏭 Factory builds a backend from its merged option set
type Factory func(ctx context.Context, options map[string]any) (Backend, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// 📝 Register registers a backend factory under a name. Later registrations
// with the same name replace earlier ones.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Registered returns the sorted names of all registered backends
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Active builds the backends named in the per-backend option sets. An
// unknown name yields an ErrBackendUnavailable-wrapped error; in lenient
// mode the caller reports it and excludes the backend, so the remaining
// backends are always returned alongside any errors.
func Active(ctx context.Context, options map[string]map[string]any) ([]Backend, []error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(options))
	for name := range options {
		names = append(names, name)
	}
	sort.Strings(names)

	var backends []Backend
	var errs []error
	for _, name := range names {
		factory, ok := registry[name]
		if !ok {
			errs = append(errs, errors.Errorf("%w: %s", ErrBackendUnavailable, name))
			continue
		}
		b, err := factory(ctx, options[name])
		if err != nil {
			errs = append(errs, errors.Errorf("%w: %s: %w", ErrBackendUnavailable, name, err))
			continue
		}
		zerolog.Ctx(ctx).Debug().Str("backend", name).Msg("backend loaded")
		backends = append(backends, b)
	}
	return backends, errs
}
