package manager

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/forensiq/filescope/internal/analyzers/analyze"
	"github.com/forensiq/filescope/internal/store"
	"github.com/forensiq/filescope/pkg/observability"
)

// supervise is the per-session control loop: it streams candidate files
// into the bounded pool, waits for the pool to drain, and drives the
// session to its terminal state. Runs detached from the Start caller's
// context; only cancellation or shutdown stops it early.
func (m *Manager) supervise(sess *session) {
	ctx, span := m.tracer.Start(context.Background(), "filescope.session",
		trace.WithAttributes(
			attribute.String("session.id", sess.id),
			attribute.String("session.directory", sess.directory),
			attribute.Int("session.total_files", sess.total),
		))

	// Every log line below this point carries the session tag via ctx.
	ctx = observability.WithSessionID(ctx, sess.id)

	var fatalErr error

	defer func() {
		if rec := recover(); rec != nil {
			fatalErr = fmt.Errorf("supervisor panic: %v", rec)
		}

		m.finalize(ctx, sess, fatalErr)
		span.End()
		close(sess.done)
	}()

	pool := new(errgroup.Group)
	pool.SetLimit(poolSize(m.cfg.ThreadCount))

	submitted := 0

	for path := range m.scanner.Files(ctx, sess.directory) {
		// Cooperative cancellation: observed between submissions, so
		// in-flight units always drain.
		if sess.cancelled.Load() || m.isClosed() {
			break
		}

		if submitted >= sess.total {
			break
		}

		submitted++

		pool.Go(func() error {
			m.processFile(ctx, sess, path)

			return nil
		})
	}

	_ = pool.Wait()
}

// processFile runs the full per-file unit of work: analyzer selection,
// analysis, optional hashing, persistence, and accounting. Every failure
// mode is contained here; one bad file never aborts the session.
func (m *Manager) processFile(ctx context.Context, sess *session, path string) {
	defer func() {
		// analyze.Run already isolates analyzer panics; this guards the
		// rest of the unit so an escaped panic costs one failed file.
		if rec := recover(); rec != nil {
			m.logger.ErrorContext(ctx, "worker panic", "file", path, "panic", rec)
			m.record(ctx, sess, path, false)
		}
	}()

	unitCtx := ctx
	if m.cfg.FileTimeout > 0 {
		var cancel context.CancelFunc

		unitCtx, cancel = context.WithTimeout(ctx, m.cfg.FileTimeout)
		defer cancel()
	}

	res := m.analyzeFile(unitCtx, path)

	var hashes map[string]string
	if res.Success && sess.includeHashes {
		hashes = m.hashFile(unitCtx, &res)
	}

	saveErr := m.store.SaveResult(ctx, sess.id, res, hashes)
	m.metrics.RecordStoreWrite(ctx, saveErr)

	if saveErr != nil {
		// The row is lost; count the file as failed so the loss is
		// visible in counters instead of silently shrinking statistics.
		m.logger.WarnContext(ctx, "persist result failed", "file", path, "error", saveErr)
		res.Success = false
	}

	if !res.Success && res.ErrorMessage != "" {
		m.logger.WarnContext(ctx, "file analysis failed",
			"file", path, "analyzer", res.Analyzer, "error", res.ErrorMessage)
	}

	m.metrics.RecordFile(ctx, res.Analyzer, res.Success, res.Duration)
	m.record(ctx, sess, path, res.Success)
}

// analyzeFile selects the analyzer and runs it inside the isolation
// boundary. Files no analyzer accepts yield the Unsupported result.
func (m *Manager) analyzeFile(ctx context.Context, path string) analyze.Result {
	analyzer, found := m.registry.AnalyzerFor(path)
	if !found {
		return analyze.Unsupported(path)
	}

	return analyze.Run(ctx, analyzer, path)
}

// hashFile computes the configured digests and merges them into the
// result's metadata under the reserved keys. Per-algorithm failures are
// recorded alongside; they never flip a successful analysis. Returns the
// hex set for the store's fixed hash columns and catalog upsert.
func (m *Manager) hashFile(ctx context.Context, res *analyze.Result) map[string]string {
	digests := m.engine.ComputeDigests(ctx, res.FilePath, m.cfg.HashAlgorithms)

	hexes := make(map[string]string, len(digests))
	hashErrs := make(map[string]string)

	for algorithm, digest := range digests {
		if digest.Err != nil {
			hashErrs[algorithm] = digest.Err.Error()

			continue
		}

		hexes[algorithm] = digest.Hex
	}

	if len(hexes) > 0 {
		res.Metadata[MetadataKeyHashes] = hexes
		m.metrics.RecordHashedBytes(ctx, res.FileSize)
	}

	if len(hashErrs) > 0 {
		res.Metadata[MetadataKeyHashErrors] = hashErrs
	}

	return hexes
}

// record performs the completion-order accounting for one file: counters,
// current-file label, the durable progress write, and the synchronous
// progress observers — all under one hold of the session lock, so an
// observer never reads a torn counter state.
func (m *Manager) record(ctx context.Context, sess *session, path string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess.processed++
	if success {
		sess.successful++
	} else {
		sess.failed++
	}

	sess.currentFile = path

	if sess.processed%progressLogInterval == 0 {
		m.logger.InfoContext(ctx, "session progress",
			"processed_files", sess.processed,
			"total_files", sess.total,
			"failed_files", sess.failed)
	}

	// Progress persists incrementally; the status guard makes this a
	// no-op once the session left the running state.
	updateErr := m.store.UpdateSessionProgress(ctx, sess.id, sess.processed, sess.successful, sess.failed)
	if updateErr != nil {
		m.logger.WarnContext(ctx, "persist progress failed", "error", updateErr)
	}

	snap := sess.snapshot()
	for _, fn := range m.progressFns {
		fn(snap)
	}
}

// finalize drives the session to its terminal state once the pool drains.
// Cancelled sessions were already persisted and deregistered by Cancel;
// everything else completes or errors here.
func (m *Manager) finalize(ctx context.Context, sess *session, fatalErr error) {
	if fatalErr != nil {
		sess.err = fatalErr
		m.completeAs(ctx, sess, store.StatusError, fatalErr.Error())
		m.logger.ErrorContext(ctx, "session failed", "error", fatalErr)

		return
	}

	if sess.cancelled.Load() {
		m.logger.DebugContext(ctx, "supervisor drained after cancellation")

		return
	}

	m.completeAs(ctx, sess, store.StatusCompleted, "")

	m.mu.Lock()
	snap := sess.snapshot()
	observers := make([]CompleteFunc, len(m.completeFns))
	copy(observers, m.completeFns)
	m.mu.Unlock()

	m.saveFinalStatistics(ctx, snap)

	for _, fn := range observers {
		fn(snap, store.StatusCompleted)
	}

	m.logger.InfoContext(ctx, "session completed",
		"processed_files", snap.ProcessedFiles,
		"successful_files", snap.SuccessfulFiles,
		"failed_files", snap.FailedFiles,
		"duration", snap.Elapsed().Round(time.Millisecond))
}

// completeAs persists the terminal transition and removes the session
// from the active set. A session cancelled in the race window between the
// flag check and the write stays cancelled: the store's status guard
// rejects the second transition.
func (m *Manager) completeAs(ctx context.Context, sess *session, status, errorMessage string) {
	m.mu.Lock()

	_, wasActive := m.active[sess.id]
	delete(m.active, sess.id)

	processed, successful, failed := sess.processed, sess.successful, sess.failed

	m.mu.Unlock()

	completeErr := m.store.CompleteSession(ctx, sess.id, status, processed, successful, failed, errorMessage)
	if completeErr != nil && !errors.Is(completeErr, store.ErrSessionNotRunning) {
		m.logger.WarnContext(ctx, "persist terminal state failed", "status", status, "error", completeErr)
	}

	if wasActive {
		m.metrics.SessionEnded(ctx)
	}
}

// saveFinalStatistics snapshots derived run metrics into the statistics
// cache. Best effort: aggregation queries remain the source of truth.
func (m *Manager) saveFinalStatistics(ctx context.Context, snap Progress) {
	elapsed := snap.Elapsed().Seconds()

	values := map[string]string{
		"duration_seconds": strconv.FormatFloat(elapsed, 'f', 3, 64),
	}

	if elapsed > 0 {
		perSecond := float64(snap.ProcessedFiles) / elapsed
		values["files_per_second"] = strconv.FormatFloat(perSecond, 'f', 2, 64)
	}

	if saveErr := m.store.SaveStatistics(ctx, snap.SessionID, values); saveErr != nil {
		m.logger.WarnContext(ctx, "persist statistics failed", "error", saveErr)
	}
}
