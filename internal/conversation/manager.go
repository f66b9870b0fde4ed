// Package conversation keeps per-scope chat history: an append-only,
// ordered sequence of turns addressed by {repository, mode, target}.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/reposcope/internal/cache"
	"github.com/reposcope/internal/core"
	"github.com/reposcope/pkg/models"
)

// TargetResolver checks that a target sha exists upstream. Satisfied by
// the GitHub client.
type TargetResolver interface {
	GetCommit(ctx context.Context, token string, repo core.Repository, sha string) (*models.Commit, error)
}

// Manager serializes appends per scope and persists history in the cache
// store as a JSON array. Scopes start empty and are reclaimed by TTL,
// never explicitly closed.
type Manager struct {
	store    cache.Store
	resolver TargetResolver
	limit    int
	ttl      time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a manager persisting at most limit turns per scope,
// each scope's history living for ttl past its last append.
func NewManager(store cache.Store, resolver TargetResolver, limit int, ttl time.Duration) *Manager {
	return &Manager{
		store:    store,
		resolver: resolver,
		limit:    limit,
		ttl:      ttl,
		locks:    make(map[string]*sync.Mutex),
	}
}

func historyKey(scope core.Scope) string {
	return "history:" + scope.String()
}

// scopeLock returns the mutex serializing appends for one scope. Appends
// to different scopes proceed independently.
func (m *Manager) scopeLock(scope core.Scope) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := scope.String()
	lk, ok := m.locks[key]
	if !ok {
		lk = &sync.Mutex{}
		m.locks[key] = lk
	}
	return lk
}

// AppendTurn appends turn to the scope's history and returns the full
// ordered history after the append. The first turn in a scope whose mode
// requires a target validates that the target sha resolves upstream; a
// turn carrying a what-if sha validates that sha too, without touching
// the scope's persisted target.
func (m *Manager) AppendTurn(ctx context.Context, token string, scope core.Scope, turn models.Turn) ([]models.Turn, error) {
	lk := m.scopeLock(scope)
	lk.Lock()
	defer lk.Unlock()

	history, err := m.load(ctx, scope)
	if err != nil {
		return nil, err
	}

	if len(history) == 0 {
		if err := m.checkPrecondition(ctx, token, scope); err != nil {
			return nil, err
		}
	}
	if turn.WhatIfSHA != "" && turn.WhatIfSHA != scope.Target {
		if _, err := m.resolver.GetCommit(ctx, token, scope.Repo, turn.WhatIfSHA); err != nil {
			return nil, fmt.Errorf("%w: what-if sha %s: %v", core.ErrInvalidScopePrecondition, turn.WhatIfSHA, err)
		}
	}

	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}
	history = append(history, turn)
	if m.limit > 0 && len(history) > m.limit {
		history = history[len(history)-m.limit:]
	}

	if err := m.save(ctx, scope, history); err != nil {
		return nil, err
	}
	return history, nil
}

// History returns the scope's ordered turn sequence, empty for a scope
// that has never seen an append.
func (m *Manager) History(ctx context.Context, scope core.Scope) ([]models.Turn, error) {
	lk := m.scopeLock(scope)
	lk.Lock()
	defer lk.Unlock()
	return m.load(ctx, scope)
}

// Reset clears the scope's history, returning it to empty.
func (m *Manager) Reset(ctx context.Context, scope core.Scope) error {
	lk := m.scopeLock(scope)
	lk.Lock()
	defer lk.Unlock()
	if err := m.store.Delete(ctx, historyKey(scope)); err != nil {
		return fmt.Errorf("reset %s: %w", scope, err)
	}
	return nil
}

// checkPrecondition enforces the mode guard before the first turn:
// commit and what-if scopes need a target sha that resolves upstream.
func (m *Manager) checkPrecondition(ctx context.Context, token string, scope core.Scope) error {
	if !scope.Mode.RequiresTarget() {
		return nil
	}
	if scope.Target == "" {
		return fmt.Errorf("%w: %s mode needs a target sha", core.ErrInvalidScopePrecondition, scope.Mode)
	}
	if _, err := m.resolver.GetCommit(ctx, token, scope.Repo, scope.Target); err != nil {
		return fmt.Errorf("%w: target %s: %v", core.ErrInvalidScopePrecondition, scope.Target, err)
	}
	return nil
}

func (m *Manager) load(ctx context.Context, scope core.Scope) ([]models.Turn, error) {
	raw, ok, err := m.store.Get(ctx, historyKey(scope))
	if err != nil {
		return nil, fmt.Errorf("load history %s: %w", scope, err)
	}
	if !ok {
		return nil, nil
	}
	var history []models.Turn
	if err := json.Unmarshal(raw, &history); err != nil {
		return nil, fmt.Errorf("decode history %s: %w", scope, err)
	}
	return history, nil
}

func (m *Manager) save(ctx context.Context, scope core.Scope, history []models.Turn) error {
	raw, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encode history %s: %w", scope, err)
	}
	if err := m.store.Set(ctx, historyKey(scope), raw, m.ttl); err != nil {
		return fmt.Errorf("save history %s: %w", scope, err)
	}
	return nil
}
