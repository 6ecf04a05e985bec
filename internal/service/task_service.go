package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/like-Ocean/TODOs/internal/cache"
	dom "github.com/like-Ocean/TODOs/internal/domain"
	"github.com/like-Ocean/TODOs/internal/repo"
	"github.com/like-Ocean/TODOs/internal/utils"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/singleflight"
)

const externalIDConstraint = "tasks_external_id_key"

var (
	ErrNotFound     = dom.ErrTaskNotFound
	ErrDuplicateExt = dom.ErrDuplicateExternalID
	ErrEmptyTitle   = errors.New("title must not be empty")
)

// TaskService is the task CRUD logic shared by the HTTP handlers and the
// importer. Handler-driven writes publish a change event; imports do not, the
// importer announces its own batch.
type TaskService struct {
	repo      repo.TaskRepo
	cache     *cache.TaskCache
	publisher dom.EventPublisher
	sf        singleflight.Group
}

// NewTaskService creates a TaskService. If c is nil, caching is disabled; if
// pub is nil, no events are published.
func NewTaskService(r repo.TaskRepo, c *cache.TaskCache, pub dom.EventPublisher) *TaskService {
	return &TaskService{repo: r, cache: c, publisher: pub}
}

func (s *TaskService) List(ctx context.Context, offset, limit int) ([]dom.Task, error) {
	if s.cache == nil {
		return s.repo.List(ctx, offset, limit)
	}
	key := "list:" + strconv.Itoa(offset) + ":" + strconv.Itoa(limit)
	v, err, _ := s.sf.Do(key, func() (interface{}, error) {
		// The generation is read before the rows: a write landing in between
		// bumps it, so the page below is cached under a key nobody reads.
		gen, err := s.cache.Generation(ctx)
		if err != nil {
			slog.WarnContext(ctx, "Failed to read task cache generation", "error", err)
			return s.repo.List(ctx, offset, limit)
		}
		if list, err := s.cache.GetList(ctx, gen, offset, limit); err == nil && list != nil {
			return list, nil
		}
		list, err := s.repo.List(ctx, offset, limit)
		if err != nil {
			return nil, err
		}
		if err := s.cache.SetList(ctx, gen, offset, limit, list); err != nil {
			slog.WarnContext(ctx, "Failed to cache task list", "error", err)
		}
		return list, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]dom.Task), nil
}

func (s *TaskService) Get(ctx context.Context, id int64) (dom.Task, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return dom.Task{}, mapErr(err)
	}
	return t, nil
}

// FindByExternalID looks a task up by its dedup key. ok is false when no row
// carries that external id.
func (s *TaskService) FindByExternalID(ctx context.Context, externalID int64) (t dom.Task, ok bool, err error) {
	t, err = s.repo.GetByExternalID(ctx, externalID)
	if errors.Is(err, pgx.ErrNoRows) {
		return dom.Task{}, false, nil
	}
	if err != nil {
		return dom.Task{}, false, err
	}
	return t, true, nil
}

// Create persists a task and publishes task_created. The title is trimmed and
// must not be blank.
func (s *TaskService) Create(ctx context.Context, in dom.Task) (dom.Task, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return dom.Task{}, ErrEmptyTitle
	}
	t, err := s.insert(ctx, in)
	if err != nil {
		return dom.Task{}, err
	}
	s.publish(dom.TaskCreated(t))
	return t, nil
}

// Import persists a task fetched from the external source without publishing.
// The source title is stored as given, only truncated.
func (s *TaskService) Import(ctx context.Context, in dom.Task) (dom.Task, error) {
	return s.insert(ctx, in)
}

// Update applies patch and publishes task_updated. A missing id yields
// ErrNotFound and nothing is published.
func (s *TaskService) Update(ctx context.Context, id int64, patch dom.TaskPatch) (dom.Task, error) {
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return dom.Task{}, ErrEmptyTitle
		}
		patch.Title = &title
	}
	t, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return dom.Task{}, mapErr(err)
	}
	s.invalidateCache(ctx)
	s.publish(dom.TaskUpdated(t))
	return t, nil
}

// Delete removes a task and publishes task_deleted.
func (s *TaskService) Delete(ctx context.Context, id int64) error {
	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	s.invalidateCache(ctx)
	s.publish(dom.TaskDeleted(id))
	return nil
}

func (s *TaskService) insert(ctx context.Context, in dom.Task) (dom.Task, error) {
	in.Title = dom.TruncateTitle(in.Title)
	t, err := s.repo.Create(ctx, in)
	if err != nil {
		if utils.IsPGUniqueViolation(err, externalIDConstraint) {
			return dom.Task{}, ErrDuplicateExt
		}
		return dom.Task{}, fmt.Errorf("create task: %w", err)
	}
	s.invalidateCache(ctx)
	return t, nil
}

func (s *TaskService) publish(evt dom.Event) {
	if s.publisher != nil {
		s.publisher.Broadcast(evt, "")
	}
}

func (s *TaskService) invalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateAll(ctx); err != nil {
		slog.WarnContext(ctx, "Failed to invalidate task cache", "error", err)
	}
}

func mapErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
