package venue

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/fundingfarm/fundingbot/internal/domain"
)

// Factory builds an Adapter from its venue-specific credentials. It returns a
// domain.ErrConfiguration-wrapped error when required credentials are absent
// or malformed.
type Factory func() (Adapter, error)

// Registry is the runtime lookup table of venue adapters. Venues whose factory
// fails are excluded at build time and logged; a missing venue degrades the
// scan, it never fails it.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	logger   *slog.Logger
}

// NewRegistry builds a Registry from the given factories. Construction never
// fails: each factory error is logged as a configuration error and that venue
// is left out.
func NewRegistry(factories map[string]Factory, logger *slog.Logger) *Registry {
	r := &Registry{
		adapters: make(map[string]Adapter, len(factories)),
		logger:   logger.With(slog.String("component", "venue_registry")),
	}

	for name, build := range factories {
		adapter, err := build()
		if err != nil {
			r.logger.Warn("venue excluded",
				slog.String("venue", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		r.adapters[strings.ToLower(name)] = adapter
		r.logger.Info("venue registered", slog.String("venue", name))
	}

	return r
}

// Register adds or replaces an adapter. Used by tests and by callers that
// construct adapters out of band.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[strings.ToLower(a.Name())] = a
}

// Get resolves an adapter by venue name (case-insensitive). It returns
// domain.ErrAdapterMissing when the venue was never registered or was
// excluded at build time.
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("venue %q: %w", name, domain.ErrAdapterMissing)
	}
	return a, nil
}

// Names returns the registered venue names in sorted order. Sorted iteration
// keeps downstream behavior deterministic run-to-run.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
