// Package session owns the browsing state of one client session: the current
// directory, its listing, and the loading, error and upload progress flags.
// All state changes go through a Manager.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/filebrowser/internal/events"
	"github.com/fruitsalade/filebrowser/internal/logging"
	"github.com/fruitsalade/filebrowser/internal/metrics"
	"github.com/fruitsalade/filebrowser/pkg/client"
	"github.com/fruitsalade/filebrowser/pkg/models"
	"github.com/fruitsalade/filebrowser/pkg/protocol"
)

// Store is the remote file store the manager talks to. *client.Client
// implements it.
type Store interface {
	List(ctx context.Context, path string) ([]models.FileEntry, error)
	Upload(ctx context.Context, file models.UploadFile, dir string, progress client.ProgressFunc) (*protocol.UploadResponse, error)
	CreateDirectory(ctx context.Context, path string) error
	Delete(ctx context.Context, path string) error
}

// Validator checks a file before upload. *policy.Validator implements it.
type Validator interface {
	Validate(f models.UploadFile) error
}

// DefaultUploadConcurrency bounds parallel uploads in a batch.
const DefaultUploadConcurrency = 4

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Defaults to logging.L().
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithBroadcaster publishes state changes to b instead of a private
// broadcaster.
func WithBroadcaster(b *events.Broadcaster) Option {
	return func(m *Manager) { m.events = b }
}

// WithUploadConcurrency sets how many files of a batch upload at once.
func WithUploadConcurrency(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// Manager is the only writer of session State. It is safe for concurrent
// use; overlapping listing fetches are resolved by a request sequence so a
// response never overwrites the outcome of a newer one, success or failure.
type Manager struct {
	store       Store
	validator   Validator
	events      *events.Broadcaster
	logger      *zap.Logger
	concurrency int

	mu        sync.Mutex
	state     State
	inflight  int
	issued  uint64
	settled uint64 // newest listing request whose outcome reached the state
}

// New creates a manager at the store root with an empty listing.
func New(store Store, validator Validator, opts ...Option) *Manager {
	m := &Manager{
		store:       store,
		validator:   validator,
		concurrency: DefaultUploadConcurrency,
		state:       State{Entries: []models.FileEntry{}},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logging.L()
	}
	if m.events == nil {
		m.events = events.NewBroadcaster()
	}
	m.logger = m.logger.Named("session")
	return m
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// CurrentPath returns the directory currently displayed.
func (m *Manager) CurrentPath() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CurrentPath
}

// Subscribe returns a channel of state change events. Call Unsubscribe when
// done.
func (m *Manager) Subscribe() chan events.Event {
	return m.events.Subscribe()
}

// Unsubscribe stops delivery to ch and closes it.
func (m *Manager) Unsubscribe(ch chan events.Event) {
	m.events.Unsubscribe(ch)
}

// FetchListing loads the listing of path. On success CurrentPath and Entries
// are replaced together; on failure only Error is set. A response is dropped
// if a listing requested later has already settled, so a late success cannot
// hide the failure of a newer navigation.
func (m *Manager) FetchListing(ctx context.Context, path string) error {
	m.mu.Lock()
	m.issued++
	seq := m.issued
	m.mu.Unlock()

	return m.run("list", path, func() error {
		entries, err := m.store.List(ctx, path)

		m.mu.Lock()
		defer m.mu.Unlock()
		if seq <= m.settled {
			m.logger.Debug("discarding stale listing",
				zap.String("path", path),
				zap.Uint64("seq", seq),
				zap.Uint64("settled", m.settled),
			)
			metrics.RecordStaleListing()
			return err
		}
		m.settled = seq
		if err != nil {
			m.setErrorLocked(err)
			return err
		}
		if entries == nil {
			entries = []models.FileEntry{}
		}
		m.state.CurrentPath = path
		m.state.Entries = entries
		m.clearErrorLocked()
		m.events.Publish(events.Event{Type: events.EventListing, Path: path, Entries: len(entries)})
		return nil
	})
}

// NavigateTo shows the listing of path. The path is used as given.
func (m *Manager) NavigateTo(ctx context.Context, path string) error {
	return m.FetchListing(ctx, path)
}

// GoUp shows the parent of the current directory. It does nothing at the
// store root.
func (m *Manager) GoUp(ctx context.Context) error {
	current := m.CurrentPath()
	if current == "" {
		return nil
	}
	return m.FetchListing(ctx, models.ParentPath(current))
}

// CreateDirectory creates name inside the current directory and refreshes
// the listing.
func (m *Manager) CreateDirectory(ctx context.Context, name string) error {
	dest := models.JoinPath(m.CurrentPath(), name)
	return m.run("mkdir", dest, func() error {
		if err := m.store.CreateDirectory(ctx, dest); err != nil {
			m.setError(err)
			return err
		}
		m.clearError()
		m.refresh(ctx)
		return nil
	})
}

// DeletePath removes path and refreshes the current directory, wherever
// path lives.
func (m *Manager) DeletePath(ctx context.Context, path string) error {
	return m.run("delete", path, func() error {
		if err := m.store.Delete(ctx, path); err != nil {
			m.setError(err)
			return err
		}
		m.clearError()
		m.refresh(ctx)
		return nil
	})
}

// ClearError dismisses the current error.
func (m *Manager) ClearError() {
	m.clearError()
}

// refresh reloads the current directory. A failure is recorded in the state
// by FetchListing and does not fail the calling operation.
func (m *Manager) refresh(ctx context.Context) {
	if err := m.FetchListing(ctx, m.CurrentPath()); err != nil {
		m.logger.Warn("refresh failed", zap.Error(err))
	}
}

// run brackets fn with the loading flag. A panic in fn is turned into an
// error so Loading always settles.
func (m *Manager) run(op, path string, fn func() error) (err error) {
	start := time.Now()
	m.begin()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s %s: unexpected failure: %v", op, path, r)
			m.logger.Error("operation panicked", zap.String("op", op), zap.Any("panic", r))
			m.setError(err)
		}
		m.end()
		metrics.RecordOperation(op, time.Since(start), err == nil)
		if err != nil {
			fields := []zap.Field{zap.String("op", op), zap.String("path", path), zap.Error(err)}
			if re, ok := client.AsRemote(err); ok {
				fields = append(fields, zap.String("detail", re.Detail()))
			}
			m.logger.Warn("operation failed", fields...)
		} else {
			m.logger.Debug("operation completed",
				zap.String("op", op),
				zap.String("path", path),
				zap.Duration("duration", time.Since(start)),
			)
		}
	}()
	return fn()
}

func (m *Manager) begin() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inflight++
	if m.inflight == 1 {
		m.state.Loading = true
		m.events.Publish(events.Event{Type: events.EventLoading, Loading: true})
	}
}

func (m *Manager) end() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inflight--
	if m.inflight == 0 {
		m.state.Loading = false
		m.events.Publish(events.Event{Type: events.EventLoading, Loading: false})
	}
}

func (m *Manager) setError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setErrorLocked(err)
}

func (m *Manager) setErrorLocked(err error) {
	m.setErrorMessageLocked(err.Error())
}

func (m *Manager) setErrorMessageLocked(msg string) {
	m.state.Error = msg
	m.events.Publish(events.Event{Type: events.EventError, Error: msg})
}

func (m *Manager) clearError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearErrorLocked()
}

func (m *Manager) clearErrorLocked() {
	if m.state.Error == "" {
		return
	}
	m.state.Error = ""
	m.events.Publish(events.Event{Type: events.EventError})
}

func (m *Manager) setProgress(pct int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.UploadProgress == pct {
		return
	}
	m.state.UploadProgress = pct
	m.events.Publish(events.Event{Type: events.EventProgress, Progress: pct})
}
