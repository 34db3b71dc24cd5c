package manager

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// session is the in-memory progress record of one active session. Counter
// fields are guarded by the Manager's lock; the cancellation flag is
// observed lock-free between unit submissions.
type session struct {
	id            string
	directory     string
	startTime     time.Time
	total         int
	includeHashes bool

	processed   int
	successful  int
	failed      int
	currentFile string

	cancelled atomic.Bool

	// done closes when the supervisor has drained. err holds the fatal
	// supervisor error, if any; written before done closes.
	done chan struct{}
	err  error
}

// snapshot copies the counters into an immutable Progress. Caller holds
// the Manager's lock.
func (s *session) snapshot() Progress {
	return Progress{
		SessionID:       s.id,
		Directory:       s.directory,
		CurrentFile:     s.currentFile,
		StartTime:       s.startTime,
		TotalFiles:      s.total,
		ProcessedFiles:  s.processed,
		SuccessfulFiles: s.successful,
		FailedFiles:     s.failed,
	}
}

// Progress is a point-in-time view of a running session. Counters always
// satisfy ProcessedFiles == SuccessfulFiles + FailedFiles.
type Progress struct {
	StartTime       time.Time `json:"start_time"`
	SessionID       string    `json:"session_id"`
	Directory       string    `json:"directory"`
	CurrentFile     string    `json:"current_file,omitempty"`
	TotalFiles      int       `json:"total_files"`
	ProcessedFiles  int       `json:"processed_files"`
	SuccessfulFiles int       `json:"successful_files"`
	FailedFiles     int       `json:"failed_files"`
}

// Percentage reports completion in the 0–100 range.
func (p Progress) Percentage() float64 {
	if p.TotalFiles == 0 {
		return 0
	}

	return float64(p.ProcessedFiles) / float64(p.TotalFiles) * 100
}

// SuccessRate reports the share of processed files that succeeded, in the
// 0–100 range.
func (p Progress) SuccessRate() float64 {
	if p.ProcessedFiles == 0 {
		return 0
	}

	return float64(p.SuccessfulFiles) / float64(p.ProcessedFiles) * 100
}

// Elapsed reports how long the session has been running.
func (p Progress) Elapsed() time.Duration {
	return time.Since(p.StartTime)
}

// Task is the caller's handle on a running session, returned by Start.
type Task struct {
	sess *session
}

// SessionID identifies the session this task supervises.
func (t *Task) SessionID() string {
	return t.sess.id
}

// Done closes when the supervisor has drained, whatever the terminal
// state.
func (t *Task) Done() <-chan struct{} {
	return t.sess.done
}

// Err reports the fatal supervisor error, if any. Valid after Done closes.
func (t *Task) Err() error {
	select {
	case <-t.sess.done:
		return t.sess.err
	default:
		return nil
	}
}

// Wait blocks until the session drains or ctx expires.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.sess.done:
		return t.sess.err
	case <-ctx.Done():
		return fmt.Errorf("await session %s: %w", t.sess.id, ctx.Err())
	}
}
