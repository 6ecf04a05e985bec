package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	dom "github.com/like-Ocean/TODOs/internal/domain"
	"github.com/like-Ocean/TODOs/internal/metrics"

	"github.com/jonboulle/clockwork"
)

// Store is the slice of task persistence the importer needs.
type Store interface {
	FindByExternalID(ctx context.Context, externalID int64) (dom.Task, bool, error)
	Import(ctx context.Context, t dom.Task) (dom.Task, error)
}

type Config struct {
	Interval  time.Duration
	SourceURL string
	PageSize  int
}

// Status is a point-in-time view of the controller.
type Status struct {
	IsRunning     bool
	Interval      time.Duration
	SourceURL     string
	CurrentOffset int
}

// Controller owns the background import loop.
type Controller struct {
	source    Source
	store     Store
	publisher dom.EventPublisher
	clock     clockwork.Clock
	metrics   *metrics.ImportMetrics

	interval   time.Duration
	sourceURL  string
	sourceName string
	pageSize   int

	// cycleMu serialises cycles; offset is written only while holding it.
	cycleMu sync.Mutex
	offset  atomic.Int64

	lifecycle sync.Mutex
	running   atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewController wires a controller. publisher and m may be nil.
func NewController(cfg Config, source Source, store Store, publisher dom.EventPublisher, clock clockwork.Clock, m *metrics.ImportMetrics) *Controller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Controller{
		source:     source,
		store:      store,
		publisher:  publisher,
		clock:      clock,
		metrics:    m,
		interval:   cfg.Interval,
		sourceURL:  cfg.SourceURL,
		sourceName: sourceName(cfg.SourceURL),
		pageSize:   cfg.PageSize,
	}
}

func sourceName(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return u.Host
	}
	return "external API"
}

// Start launches the loop and returns immediately. It reports false if the
// loop was already running.
func (c *Controller) Start() bool {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	if c.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running.Store(true)
	go c.loop(ctx, c.done)

	if c.metrics != nil {
		c.metrics.Running.Set(1)
	}
	slog.Info("Import loop started", "source", c.sourceURL, "interval", c.interval, "page_size", c.pageSize)
	return true
}

// Stop cancels the loop and waits for it to exit. A cycle already past its
// fetch finishes storing its items first. It reports false if the loop was
// not running.
func (c *Controller) Stop() bool {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	if !c.running.Load() {
		return false
	}

	c.running.Store(false)
	c.cancel()
	<-c.done
	c.cancel, c.done = nil, nil

	if c.metrics != nil {
		c.metrics.Running.Set(0)
	}
	slog.Info("Import loop stopped")
	return true
}

func (c *Controller) IsRunning() bool {
	return c.running.Load()
}

func (c *Controller) Status() Status {
	return Status{
		IsRunning:     c.running.Load(),
		Interval:      c.interval,
		SourceURL:     c.sourceURL,
		CurrentOffset: int(c.offset.Load()),
	}
}

// RunOnce runs a single cycle regardless of the loop state, announces the
// created tasks and returns them (never nil).
func (c *Controller) RunOnce(ctx context.Context) []dom.Task {
	created := c.runCycle(ctx)
	c.announce(created)
	return created
}

func (c *Controller) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.clock.After(c.interval):
		}
		if ctx.Err() != nil {
			return
		}
		c.iterate(ctx)
	}
}

func (c *Controller) iterate(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Import iteration panicked", "panic", r)
		}
	}()

	created := c.runCycle(ctx)
	c.announce(created)
	if len(created) > 0 {
		slog.Info("Import cycle created tasks", "count", len(created))
	} else {
		slog.Debug("Import cycle created no tasks")
	}
}

func (c *Controller) announce(tasks []dom.Task) {
	if c.publisher == nil {
		return
	}
	for _, t := range tasks {
		c.publisher.Broadcast(dom.TaskCreated(t), "")
	}
}

// runCycle fetches the page at the cursor and stores unseen items in page order.
func (c *Controller) runCycle(ctx context.Context) []dom.Task {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	if c.metrics != nil {
		c.metrics.Cycles.Inc()
	}

	offset := int(c.offset.Load())
	page, err := c.source.Fetch(ctx, offset, c.pageSize)
	if err != nil {
		slog.Warn("Failed to fetch import page", "source", c.sourceURL, "offset", offset, "error", err)
		if c.metrics != nil {
			c.metrics.FetchErrors.Inc()
		}
		return []dom.Task{}
	}

	next := offset + c.pageSize
	if next >= page.Total {
		next = 0
	}
	c.offset.Store(int64(next))

	// Each item is stored independently and is allowed to finish after Stop.
	storeCtx := context.WithoutCancel(ctx)
	created := make([]dom.Task, 0, len(page.Items))
	for _, item := range page.Items {
		t, ok := c.importItem(storeCtx, item)
		if ok {
			created = append(created, t)
		}
	}
	if c.metrics != nil {
		c.metrics.TasksImported.Add(float64(len(created)))
	}
	return created
}

func (c *Controller) importItem(ctx context.Context, item Item) (dom.Task, bool) {
	task, err := c.toTask(item)
	if err != nil {
		c.itemFailed("Skipping malformed source item", item, err)
		return dom.Task{}, false
	}
	extID := *item.ID

	_, exists, err := c.store.FindByExternalID(ctx, extID)
	if err != nil {
		c.itemFailed("Failed to check for existing task", item, err)
		return dom.Task{}, false
	}
	if exists {
		return dom.Task{}, false
	}

	created, err := c.store.Import(ctx, task)
	if errors.Is(err, dom.ErrDuplicateExternalID) {
		// Created concurrently by another writer since the lookup.
		return dom.Task{}, false
	}
	if err != nil {
		c.itemFailed("Failed to store imported task", item, err)
		return dom.Task{}, false
	}

	slog.Info("Task imported", "external_id", extID, "task_id", created.ID, "completed", created.Completed)
	return created, true
}

func (c *Controller) itemFailed(msg string, item Item, err error) {
	if c.metrics != nil {
		c.metrics.ItemErrors.Inc()
	}
	if item.ID != nil {
		slog.Warn(msg, "external_id", *item.ID, "error", err)
		return
	}
	slog.Warn(msg, "error", err)
}

var errMissingField = errors.New("missing required field")

func (c *Controller) toTask(item Item) (dom.Task, error) {
	if item.ID == nil {
		return dom.Task{}, fmt.Errorf("%w: id", errMissingField)
	}
	if item.Todo == nil {
		return dom.Task{}, fmt.Errorf("%w: todo", errMissingField)
	}

	user := "N/A"
	if item.UserID != nil {
		user = strconv.FormatInt(*item.UserID, 10)
	}
	desc := fmt.Sprintf("Imported from %s | External ID: %d | User ID: %s", c.sourceName, *item.ID, user)

	extID := *item.ID
	return dom.Task{
		ExternalID:  &extID,
		Title:       dom.TruncateTitle(*item.Todo),
		Description: &desc,
		Completed:   item.Completed,
	}, nil
}
