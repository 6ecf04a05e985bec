// Package repotest provides an in-memory TaskRepo for tests.
package repotest

import (
	"context"
	"sort"
	"sync"
	"time"

	dom "github.com/like-Ocean/TODOs/internal/domain"
	"github.com/like-Ocean/TODOs/internal/repo"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MemTaskRepo mimics PGTaskRepo semantics, including the unique external_id
// constraint, without a database.
type MemTaskRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]dom.Task

	// CreateErr, if set, is consulted before every insert; a non-nil result
	// fails that insert.
	CreateErr func(t dom.Task) error

	Creates int
	Lookups int
}

var _ repo.TaskRepo = (*MemTaskRepo)(nil)

func NewMemTaskRepo() *MemTaskRepo {
	return &MemTaskRepo{rows: make(map[int64]dom.Task)}
}

func (m *MemTaskRepo) GetByID(_ context.Context, id int64) (dom.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[id]
	if !ok {
		return dom.Task{}, pgx.ErrNoRows
	}
	return t, nil
}

func (m *MemTaskRepo) GetByExternalID(_ context.Context, externalID int64) (dom.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Lookups++
	for _, t := range m.rows {
		if t.ExternalID != nil && *t.ExternalID == externalID {
			return t, nil
		}
	}
	return dom.Task{}, pgx.ErrNoRows
}

func (m *MemTaskRepo) List(_ context.Context, offset, limit int) ([]dom.Task, error) {
	all := m.All()
	out := make([]dom.Task, 0)
	for i := offset; i < len(all) && len(out) < limit; i++ {
		out = append(out, all[i])
	}
	return out, nil
}

func (m *MemTaskRepo) Create(_ context.Context, t dom.Task) (dom.Task, error) {
	if m.CreateErr != nil {
		if err := m.CreateErr(t); err != nil {
			return dom.Task{}, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ExternalID != nil {
		for _, existing := range m.rows {
			if existing.ExternalID != nil && *existing.ExternalID == *t.ExternalID {
				return dom.Task{}, &pgconn.PgError{Code: "23505", ConstraintName: "tasks_external_id_key"}
			}
		}
	}
	m.nextID++
	t.ID = m.nextID
	t.CreatedAt = time.Now().UTC()
	t.UpdatedAt = nil
	m.rows[t.ID] = t
	m.Creates++
	return t, nil
}

func (m *MemTaskRepo) Update(_ context.Context, id int64, patch dom.TaskPatch) (dom.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[id]
	if !ok {
		return dom.Task{}, pgx.ErrNoRows
	}
	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.SetsDescription() {
		t.Description = patch.Description
	}
	if patch.Completed != nil {
		t.Completed = *patch.Completed
	}
	now := time.Now().UTC()
	t.UpdatedAt = &now
	m.rows[id] = t
	return t, nil
}

func (m *MemTaskRepo) Delete(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return false, nil
	}
	delete(m.rows, id)
	return true, nil
}

// All returns every row ordered by id.
func (m *MemTaskRepo) All() []dom.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]dom.Task, 0, len(m.rows))
	for _, t := range m.rows {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of stored rows.
func (m *MemTaskRepo) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}
