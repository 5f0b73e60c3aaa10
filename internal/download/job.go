package download

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// JobKind identifies the operation a Job runs
type JobKind string

const (
	JobInitialize JobKind = "initialize"
	JobRefresh    JobKind = "refresh"
	JobDownload   JobKind = "download"
)

// ErrorKind classifies operation failures
type ErrorKind string

const (
	// KindGateway means a gateway call failed
	KindGateway ErrorKind = "gateway"
	// KindPartial means a refresh succeeded but some entry metadata could not be loaded
	KindPartial ErrorKind = "partial"
	// KindFilesystem means the download location could not be prepared
	KindFilesystem ErrorKind = "filesystem"
)

var (
	// ErrClosed is the result of jobs submitted to or still queued in a closed Coordinator
	ErrClosed = errors.New("coordinator closed")
	// ErrNotInitialized is the result of jobs submitted before a successful Initialize
	ErrNotInitialized = errors.New("coordinator not initialized")
)

// Error is an operation failure with its kind.
// errors.Is(err, &Error{Kind: k}) matches any Error of kind k.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// Result is the outcome of a Job
type Result struct {
	JobID string
	Err   error
}

// OK reports whether the job succeeded
func (r Result) OK() bool {
	return r.Err == nil
}

// Job is a handle on an enqueued operation
type Job struct {
	ID     string
	Kind   JobKind
	Target string // video ID or playlist URL

	once   sync.Once
	done   chan struct{}
	result Result
}

func newJob(kind JobKind, target string) *Job {
	id := uuid.NewString()
	return &Job{
		ID:     id,
		Kind:   kind,
		Target: target,
		done:   make(chan struct{}),
		result: Result{JobID: id},
	}
}

// failedJob returns a job that is already settled with err
func failedJob(kind JobKind, target string, err error) *Job {
	j := newJob(kind, target)
	j.settle(err)
	return j
}

// Done is closed once the job has settled
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Result returns the outcome and whether the job has settled
func (j *Job) Result() (Result, bool) {
	select {
	case <-j.done:
		return j.result, true
	default:
		return Result{JobID: j.ID}, false
	}
}

// Wait blocks until the job settles or ctx is done
func (j *Job) Wait(ctx context.Context) (Result, error) {
	select {
	case <-j.done:
		return j.result, nil
	case <-ctx.Done():
		return Result{JobID: j.ID}, ctx.Err()
	}
}

func (j *Job) settle(err error) {
	j.once.Do(func() {
		j.result.Err = err
		close(j.done)
	})
}
