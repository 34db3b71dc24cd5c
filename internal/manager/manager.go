// Package manager orchestrates analysis sessions: it discovers candidate
// files, fans them out to a bounded worker pool, tracks live progress, and
// persists every outcome through the results store.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/forensiq/filescope/internal/analyzers/analyze"
	"github.com/forensiq/filescope/internal/config"
	"github.com/forensiq/filescope/internal/hashing"
	"github.com/forensiq/filescope/internal/scan"
	"github.com/forensiq/filescope/internal/store"
	"github.com/forensiq/filescope/pkg/observability"
)

// Sentinel errors returned by Start. None of them leave side effects: a
// rejected start never creates a session row or an in-memory record.
var (
	ErrEmptySessionID   = errors.New("session ID must not be empty")
	ErrSessionActive    = errors.New("session ID is already active")
	ErrDirectoryInvalid = errors.New("directory failed validation")
	ErrNoMatchingFiles  = errors.New("no files match the scan policy")
	ErrManagerClosed    = errors.New("manager is shut down")
)

// Reserved metadata keys the manager merges into analyzer results.
const (
	// MetadataKeyHashes holds the computed digest set, algorithm → hex.
	MetadataKeyHashes = "hashes"

	// MetadataKeyHashErrors holds per-algorithm hash failures. Hash
	// errors never flip an otherwise successful analysis.
	MetadataKeyHashErrors = "hash_errors"
)

// maxWorkers caps the per-session pool regardless of configuration, so a
// misconfigured thread count cannot exhaust file descriptors.
const maxWorkers = 8

// progressLogInterval is how many processed files pass between progress
// log lines.
const progressLogInterval = 100

// ProgressFunc observes one progress snapshot. Callbacks run synchronously
// under the manager's session lock, so a slow callback directly throttles
// progress-update latency; they must not block and must not call back into
// the Manager.
type ProgressFunc func(Progress)

// CompleteFunc observes a session reaching a terminal state.
type CompleteFunc func(final Progress, status string)

// Options carries the ambient dependencies of a Manager. Zero values fall
// back to discard/no-op implementations.
type Options struct {
	Logger  *slog.Logger
	Tracer  trace.Tracer
	Metrics *observability.ScanMetrics
}

// Manager owns session lifecycle for the analysis engine. All public
// methods are safe for concurrent use from any goroutine, including a
// separate control thread driving Cancel.
type Manager struct {
	cfg      config.AnalysisConfig
	store    *store.Store
	registry *analyze.Registry
	engine   *hashing.Engine
	scanner  *scan.Scanner
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *observability.ScanMetrics

	// mu guards the active map, every session's progress record, and the
	// callback slices. Counter updates, the progress persist, and the
	// observer invocations happen under one hold, so observers never see
	// torn counter state.
	mu          sync.Mutex
	active      map[string]*session
	progressFns []ProgressFunc
	completeFns []CompleteFunc
	closed      bool

	closeOnce sync.Once
}

// New wires a Manager from its injected collaborators.
func New(
	cfg config.AnalysisConfig,
	st *store.Store,
	registry *analyze.Registry,
	engine *hashing.Engine,
	scanner *scan.Scanner,
	opts Options,
) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = nooptrace.NewTracerProvider().Tracer("")
	}

	return &Manager{
		cfg:      cfg,
		store:    st,
		registry: registry,
		engine:   engine,
		scanner:  scanner,
		logger:   logger,
		tracer:   tracer,
		metrics:  opts.Metrics,
		active:   make(map[string]*session),
	}
}

// StartRequest describes one session to run.
type StartRequest struct {
	SessionID     string
	Directory     string
	IncludeHashes bool

	// MaxFiles overrides the configured per-session file cap when
	// positive.
	MaxFiles int
}

// Start validates the request, creates the durable session record, and
// launches the supervisor. It returns as soon as the session is running;
// the returned Task is the handle for awaiting completion. Validation
// failures are sentinel errors and leave no trace in the store.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*Task, error) {
	if req.SessionID == "" {
		return nil, ErrEmptySessionID
	}

	// Reserve the ID first so two racing starts cannot both pass the
	// duplicate check.
	if reserveErr := m.reserve(req.SessionID); reserveErr != nil {
		return nil, reserveErr
	}

	sess, startErr := m.prepare(ctx, req)
	if startErr != nil {
		m.unreserve(req.SessionID)

		return nil, startErr
	}

	m.mu.Lock()
	m.active[req.SessionID] = sess
	m.mu.Unlock()

	m.metrics.SessionStarted(ctx)
	m.logger.Info("session started",
		"session_id", sess.id,
		"directory", sess.directory,
		"total_files", sess.total,
		"workers", poolSize(m.cfg.ThreadCount))

	go m.supervise(sess)

	return &Task{sess: sess}, nil
}

// prepare runs the pre-flight checks and creates the durable session row.
// The session record must exist before any worker is spawned; an
// in-memory session without a durable counterpart is never allowed.
func (m *Manager) prepare(ctx context.Context, req StartRequest) (*session, error) {
	if validateErr := m.scanner.ValidateRoot(req.Directory); validateErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrDirectoryInvalid, validateErr)
	}

	maxFiles := req.MaxFiles
	if maxFiles <= 0 {
		maxFiles = m.cfg.MaxFilesPerSession
	}

	total := m.scanner.CountFiles(ctx, req.Directory)
	if total == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoMatchingFiles, req.Directory)
	}

	if maxFiles > 0 && total > maxFiles {
		total = maxFiles
	}

	startTime := time.Now()

	createErr := m.store.CreateSession(ctx, store.Session{
		ID:            req.SessionID,
		DirectoryPath: req.Directory,
		TotalFiles:    total,
		StartTime:     startTime,
	})
	if createErr != nil {
		return nil, fmt.Errorf("create session record: %w", createErr)
	}

	return &session{
		id:            req.SessionID,
		directory:     req.Directory,
		total:         total,
		startTime:     startTime,
		includeHashes: req.IncludeHashes,
		done:          make(chan struct{}),
	}, nil
}

// reserve installs a placeholder under the session ID, failing when the ID
// is active or the manager is closed.
func (m *Manager) reserve(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrManagerClosed
	}

	if _, exists := m.active[sessionID]; exists {
		return fmt.Errorf("%w: %s", ErrSessionActive, sessionID)
	}

	m.active[sessionID] = nil

	return nil
}

func (m *Manager) unreserve(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.active, sessionID)
}

// Cancel stops a running session cooperatively: the supervisor submits no
// further work, while in-flight files finish and their results are still
// persisted. Returns false when the session is not active, so cancelling
// twice observes true then false.
func (m *Manager) Cancel(sessionID string) bool {
	m.mu.Lock()

	sess, ok := m.active[sessionID]
	if !ok || sess == nil {
		m.mu.Unlock()

		return false
	}

	delete(m.active, sessionID)

	processed, successful, failed := sess.processed, sess.successful, sess.failed

	m.mu.Unlock()

	sess.cancelled.Store(true)

	ctx := context.Background()

	completeErr := m.store.CompleteSession(ctx, sessionID, store.StatusCancelled,
		processed, successful, failed, "")
	if completeErr != nil {
		m.logger.Warn("persist cancellation failed", "session_id", sessionID, "error", completeErr)
	}

	m.metrics.SessionEnded(ctx)
	m.logger.Info("session cancelled", "session_id", sessionID, "processed_files", processed)

	return true
}

// Shutdown cancels every active session, waits for their supervisors to
// drain in-flight work (bounded by ctx), and closes the store. Intended to
// run exactly once during orderly termination.
func (m *Manager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true

		sessions := make([]*session, 0, len(m.active))
		for _, sess := range m.active {
			if sess != nil {
				sessions = append(sessions, sess)
			}
		}
		m.mu.Unlock()

		for _, sess := range sessions {
			m.Cancel(sess.id)
		}

	drain:
		for _, sess := range sessions {
			select {
			case <-sess.done:
			case <-ctx.Done():
				shutdownErr = fmt.Errorf("shutdown wait: %w", ctx.Err())

				break drain
			}
		}

		if closeErr := m.store.Close(); closeErr != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("close store: %w", closeErr))
		}

		m.logger.Info("manager shut down", "cancelled_sessions", len(sessions))
	})

	return shutdownErr
}

// OnProgress registers an observer invoked after every processed file.
func (m *Manager) OnProgress(fn ProgressFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.progressFns = append(m.progressFns, fn)
}

// OnComplete registers an observer invoked when a session completes.
// Cancelled and errored sessions do not fire completion observers.
func (m *Manager) OnComplete(fn CompleteFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.completeFns = append(m.completeFns, fn)
}

// Progress returns the live snapshot of an active session. Terminal
// sessions report false; callers fall back to Session for historical data.
func (m *Manager) Progress(sessionID string) (Progress, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.active[sessionID]
	if !ok || sess == nil {
		return Progress{}, false
	}

	return sess.snapshot(), true
}

// Session loads a session record from the store.
func (m *Manager) Session(ctx context.Context, sessionID string) (store.Session, error) {
	return m.store.GetSession(ctx, sessionID)
}

// Results loads persisted results matching the filter.
func (m *Manager) Results(ctx context.Context, filter store.ResultFilter) ([]store.Result, error) {
	return m.store.GetResults(ctx, filter)
}

// Statistics aggregates a session's persisted results.
func (m *Manager) Statistics(ctx context.Context, sessionID string) (store.Statistics, error) {
	return m.store.SessionStatistics(ctx, sessionID)
}

// Duplicates groups files sharing a digest. An empty sessionID searches
// the cross-session catalog.
func (m *Manager) Duplicates(ctx context.Context, algorithm, sessionID string) ([]store.DuplicateGroup, error) {
	return m.store.FindDuplicates(ctx, algorithm, sessionID)
}

// RecentSessions lists the newest sessions.
func (m *Manager) RecentSessions(ctx context.Context, limit int) ([]store.Session, error) {
	return m.store.ListRecentSessions(ctx, limit)
}

// Cleanup removes sessions older than the retention window, cascading to
// their results.
func (m *Manager) Cleanup(ctx context.Context, days int) (int64, error) {
	return m.store.CleanupOlderThan(ctx, days)
}

// Registry exposes the capability registry, for surfaces listing the
// available analyzers.
func (m *Manager) Registry() *analyze.Registry {
	return m.registry
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.closed
}

// poolSize bounds the worker pool: the configured thread count, hard
// capped at maxWorkers.
func poolSize(threadCount int) int {
	if threadCount < 1 {
		return 1
	}

	if threadCount > maxWorkers {
		return maxWorkers
	}

	return threadCount
}
