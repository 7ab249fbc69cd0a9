package terms

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"listing_syncer/internal/domain"
)

// Store is the term storage the resolver needs. Lookups return nil, nil when
// nothing matches.
type Store interface {
	FindByPath(ctx context.Context, taxonomy, path string) (*domain.Term, error)
	FindByName(ctx context.Context, taxonomy, name string) (*domain.Term, error)
	FindUnmapped(ctx context.Context, taxonomy, name string) (*domain.Term, error)
	SetPath(ctx context.Context, id int64, path string) error
	Create(ctx context.Context, term *domain.Term) (int64, error)
}

type cacheKey struct {
	taxonomy string
	name     string
	path     string
}

// Resolver maps external category values onto local term ids. Lookups go
// path first, then an unmapped term with the same name, and only then create.
type Resolver struct {
	store  Store
	logger *slog.Logger

	mu    sync.Mutex
	cache map[cacheKey]int64
}

func NewResolver(store Store, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:  store,
		logger: logger.With("component", "term_resolver"),
		cache:  make(map[cacheKey]int64),
	}
}

// Reset drops the per-run memo.
func (r *Resolver) Reset() {
	r.mu.Lock()
	r.cache = make(map[cacheKey]int64)
	r.mu.Unlock()
}

// Resolve returns the term id for v in taxonomy, creating it under parentID when missing.
func (r *Resolver) Resolve(ctx context.Context, taxonomy string, v domain.TermValue, parentID int64) (int64, error) {
	name := strings.TrimSpace(v.Name)
	if name == "" && v.Path == "" {
		return 0, fmt.Errorf("resolve %s term: empty value", taxonomy)
	}

	key := cacheKey{taxonomy: taxonomy, name: name, path: v.Path}

	r.mu.Lock()
	id, ok := r.cache[key]
	r.mu.Unlock()
	if ok {
		return id, nil
	}

	id, err := r.resolve(ctx, taxonomy, name, v.Path, parentID)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	r.cache[key] = id
	r.mu.Unlock()

	return id, nil
}

// ResolveAll resolves every value, skipping blanks and duplicate ids.
func (r *Resolver) ResolveAll(ctx context.Context, taxonomy string, values []domain.TermValue) ([]int64, error) {
	ids := make([]int64, 0, len(values))
	seen := make(map[int64]struct{}, len(values))

	for _, v := range values {
		if strings.TrimSpace(v.Name) == "" && v.Path == "" {
			continue
		}
		id, err := r.Resolve(ctx, taxonomy, v, 0)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	return ids, nil
}

func (r *Resolver) resolve(ctx context.Context, taxonomy, name, path string, parentID int64) (int64, error) {
	if path != "" {
		term, err := r.store.FindByPath(ctx, taxonomy, path)
		if err != nil {
			return 0, fmt.Errorf("find term by path: %w", err)
		}
		if term != nil {
			return term.ID, nil
		}

		if name != "" {
			term, err = r.store.FindUnmapped(ctx, taxonomy, name)
			if err != nil {
				return 0, fmt.Errorf("find unmapped term: %w", err)
			}
			if term != nil {
				if err := r.store.SetPath(ctx, term.ID, path); err != nil {
					return 0, fmt.Errorf("adopt term %d: %w", term.ID, err)
				}
				r.logger.Debug("adopted unmapped term", "taxonomy", taxonomy, "name", name, "term_id", term.ID, "path", path)
				return term.ID, nil
			}
		}
	} else {
		term, err := r.store.FindByName(ctx, taxonomy, name)
		if err != nil {
			return 0, fmt.Errorf("find term by name: %w", err)
		}
		if term != nil {
			return term.ID, nil
		}
	}

	if name == "" {
		name = path
	}
	id, err := r.store.Create(ctx, &domain.Term{
		Taxonomy:     taxonomy,
		Name:         name,
		ParentID:     parentID,
		ExternalPath: path,
	})
	if err != nil {
		return 0, fmt.Errorf("create term: %w", err)
	}
	r.logger.Debug("created term", "taxonomy", taxonomy, "name", name, "term_id", id, "path", path)

	return id, nil
}

// Split breaks a multi-valued taxonomy string into names. Values use "| " as
// separator unless they only contain ", ".
func Split(raw string) []string {
	sep := "| "
	if !strings.Contains(raw, "| ") && strings.Contains(raw, ", ") {
		sep = ", "
	}

	parts := strings.Split(raw, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
