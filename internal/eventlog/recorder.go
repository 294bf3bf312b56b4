package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultQueueSize is the Recorder's buffer when none is configured.
const DefaultQueueSize = 256

// writeTimeout bounds a single repository insert.
const writeTimeout = 5 * time.Second

// Logger defines the logging interface used by the Recorder.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// job is either an entry to write or a flush marker.
type job struct {
	entry *Entry
	done  chan struct{}
}

// Recorder writes entries to a Repository on a single background goroutine.
//
// Entries are written in the order they were recorded. A failed write is
// logged and the entry is dropped.
type Recorder struct {
	repo   Repository
	queue  chan job
	logger Logger

	mu     sync.RWMutex
	closed bool

	wg sync.WaitGroup
}

// NewRecorder starts a recorder draining into repo.
//
// Parameters:
//   - repo: Destination repository
//   - queueSize: Buffered entries; 0 selects DefaultQueueSize
//   - logger: Receives write failures; nil discards them
//
// Returns:
//   - *Recorder: Running recorder; call Close to drain and stop it
func NewRecorder(repo Repository, queueSize int, logger Logger) *Recorder {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = noopLogger{}
	}

	r := &Recorder{
		repo:   repo,
		queue:  make(chan job, queueSize),
		logger: logger,
	}

	r.wg.Add(1)
	go r.drain()
	return r
}

// Repository returns the underlying repository for reads.
func (r *Recorder) Repository() Repository {
	return r.repo
}

// Record enqueues an entry. status is JSON-encoded now, so later mutation
// by the caller cannot change what is written.
//
// Record never blocks. It returns ErrQueueFull, ErrRecorderClosed or an
// encoding error when the entry is not accepted; failures of the later
// asynchronous write are logged by the Recorder.
func (r *Recorder) Record(deviceID, deviceType, event string, status any) error {
	encoded, err := encodeStatus(status)
	if err != nil {
		return err
	}

	e := &Entry{
		DeviceID:   deviceID,
		DeviceType: deviceType,
		Event:      event,
		Status:     encoded,
		Timestamp:  time.Now().UTC(),
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return ErrRecorderClosed
	}

	select {
	case r.queue <- job{entry: e}:
		return nil
	default:
		return ErrQueueFull
	}
}

func encodeStatus(status any) (string, error) {
	switch s := status.(type) {
	case nil:
		return "{}", nil
	case json.RawMessage:
		if !json.Valid(s) {
			return "", errors.New("status is not valid JSON")
		}
		return string(s), nil
	}

	b, err := json.Marshal(status)
	if err != nil {
		return "", fmt.Errorf("encoding status: %w", err)
	}
	return string(b), nil
}

// Flush waits until every entry recorded before the call has been written
// or ctx is done.
func (r *Recorder) Flush(ctx context.Context) error {
	done := make(chan struct{})

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil
	}
	select {
	case r.queue <- job{done: done}:
	case <-ctx.Done():
		r.mu.RUnlock()
		return fmt.Errorf("flushing event log: %w", ctx.Err())
	}
	r.mu.RUnlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("flushing event log: %w", ctx.Err())
	}
}

// Clear flushes pending entries, then deletes those matching f.
func (r *Recorder) Clear(ctx context.Context, f Filter) (int64, error) {
	if err := r.Flush(ctx); err != nil {
		return 0, err
	}
	return r.repo.Delete(ctx, f)
}

// Query flushes pending entries, then returns those matching f.
func (r *Recorder) Query(ctx context.Context, f Filter) ([]Entry, error) {
	if err := r.Flush(ctx); err != nil {
		return nil, err
	}
	return r.repo.Query(ctx, f)
}

// Close stops accepting entries and waits for the queue to drain.
// It is safe to call more than once.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Recorder) drain() {
	defer r.wg.Done()

	for j := range r.queue {
		if j.done != nil {
			close(j.done)
			continue
		}
		r.write(j.entry)
	}
}

func (r *Recorder) write(e *Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := r.repo.Insert(ctx, e); err != nil {
		r.logger.Error("event log write failed",
			"device_id", e.DeviceID,
			"event", e.Event,
			"error", err,
		)
	}
}
