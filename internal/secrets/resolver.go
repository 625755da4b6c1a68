// Package secrets resolves the credentials a sync run needs, with layered
// fallback: directly supplied values win, non-production environments get
// deterministic mock values, and everything else is fetched from the secret
// store.
package secrets

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/forolibre/telegram-nodebb-sync/internal/logger"
)

// expectedPathSegments is the minimum segment count of a valid secret
// resource path (projects/<project>/secrets/<name>/versions/latest).
const expectedPathSegments = 4

// Ref identifies one logical secret to resolve.
type Ref struct {
	// Name is the short identifier of the secret (e.g. TELEGRAM_BOT_TOKEN).
	// It keys the resolved value. When empty it is derived from Resource.
	Name string
	// Resource is the fully-qualified resource path. When empty it is built
	// from Name within the resolver's project.
	Resource string
	// Direct is a directly supplied value. When non-empty it is used
	// verbatim and no store lookup is attempted.
	Direct string
}

// Resolver resolves logical secret identifiers to their values.
//
// The store client is constructed lazily at most once per Resolver lifetime
// and reused across runs.
type Resolver struct {
	projectID  string
	production bool
	logger     logger.Logger

	storeOnce sync.Once
	store     Store
	storeErr  error
	newStore  func(ctx context.Context) (Store, error)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithStore injects a pre-built store, bypassing lazy construction.
// Intended for tests and alternative store implementations.
func WithStore(store Store) Option {
	return func(r *Resolver) {
		r.store = store
		r.storeOnce.Do(func() {})
	}
}

// NewResolver creates a Resolver for the given project. An empty projectID
// or a non-production environment switches resolution to mock values.
func NewResolver(projectID string, production bool, log logger.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		projectID:  projectID,
		production: production,
		logger:     log,
		newStore:   NewGCPStore,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResourcePath returns the fully-qualified resource path for a short secret
// name within the resolver's project.
func (r *Resolver) ResourcePath(name string) string {
	return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", r.projectID, name)
}

// keyAndPath determines the output key and resource path for a ref,
// reporting malformed resource paths (too few segments or an empty name).
func (r *Resolver) keyAndPath(ref Ref) (key, path string, ok bool) {
	path = ref.Resource
	if path == "" {
		path = r.ResourcePath(ref.Name)
	}

	parts := strings.Split(path, "/")
	if len(parts) < expectedPathSegments {
		return "", path, false
	}
	parsed := parts[len(parts)-2]
	if parsed == "" {
		return "", path, false
	}

	key = ref.Name
	if key == "" {
		key = parsed
	}
	return key, path, true
}

// Resolve returns a map from short identifier to secret value for the given
// refs.
//
// Precedence per ref, highest first: the Direct value, mock values outside
// production (or without a project id), then a store fetch. A malformed
// resource path is logged and skipped; a store failure or empty payload
// aborts the whole call.
func (r *Resolver) Resolve(ctx context.Context, refs []Ref) (map[string]string, error) {
	resolved := make(map[string]string, len(refs))
	var pending []Ref

	for _, ref := range refs {
		if ref.Name == "" && ref.Resource == "" {
			continue
		}
		if ref.Direct != "" {
			r.logger.Debug("Secret resolved from direct value",
				logger.String("secret", ref.Name),
			)
			resolved[ref.Name] = ref.Direct
			continue
		}
		pending = append(pending, ref)
	}

	if len(pending) == 0 {
		return resolved, nil
	}

	mock := !r.production || r.projectID == ""
	if mock {
		r.logger.Warn("Running without production secret store, using mock secrets",
			logger.Bool("production", r.production),
			logger.String("project_id", r.projectID),
		)
	}

	var store Store
	if !mock {
		var err error
		store, err = r.getStore(ctx)
		if err != nil {
			return nil, fmt.Errorf("initialize secret store: %w", err)
		}
	}

	for _, ref := range pending {
		key, path, ok := r.keyAndPath(ref)
		if !ok {
			r.logger.Error("Malformed secret resource path, skipping",
				logger.String("resource_path", path),
			)
			continue
		}

		if mock {
			resolved[key] = "MOCK_" + key
			continue
		}

		r.logger.Debug("Accessing secret",
			logger.String("secret", key),
			logger.String("resource_path", path),
		)

		value, err := store.AccessSecret(ctx, path)
		if err != nil {
			r.logger.Error("Failed to access secret",
				logger.String("secret", key),
				logger.Error(err),
			)
			return nil, fmt.Errorf("access secret %s: %w", key, err)
		}

		r.logger.Info("Secret accessed",
			logger.String("secret", key),
			logger.Int("value_length", len(value)),
		)
		resolved[key] = value
	}

	return resolved, nil
}

// getStore lazily constructs the store client once per Resolver lifetime.
func (r *Resolver) getStore(ctx context.Context) (Store, error) {
	r.storeOnce.Do(func() {
		r.store, r.storeErr = r.newStore(ctx)
	})
	return r.store, r.storeErr
}

// Close releases the store client if one was constructed.
func (r *Resolver) Close() error {
	if r.store != nil {
		return r.store.Close()
	}
	return nil
}
