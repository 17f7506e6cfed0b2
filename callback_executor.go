package b2uploader

import "context"

// UploadCallback runs after a job has produced a stored object.
type UploadCallback func(ctx context.Context, outcome *Outcome) error

type CallbackExecutor interface {
	Execute(ctx context.Context, cb UploadCallback, outcome *Outcome) error
}

type syncCallbackExecutor struct{}

func (syncCallbackExecutor) Execute(ctx context.Context, cb UploadCallback, outcome *Outcome) error {
	return cb(ctx, outcome)
}

// AsyncCallbackExecutor runs callbacks on their own goroutine. Errors are
// logged and never reach the caller.
type AsyncCallbackExecutor struct {
	logger Logger
}

func NewAsyncCallbackExecutor(logger Logger) *AsyncCallbackExecutor {
	if logger == nil {
		logger = &DefaultLogger{}
	}
	return &AsyncCallbackExecutor{logger: logger}
}

func (e *AsyncCallbackExecutor) Execute(ctx context.Context, cb UploadCallback, outcome *Outcome) error {
	if cb == nil || outcome == nil {
		return nil
	}

	detached := context.WithoutCancel(ctx)
	go func() {
		if err := cb(detached, outcome); err != nil && e.logger != nil {
			e.logger.Error("async upload callback failed", "error", err, "path", outcome.Job.Path)
		}
	}()

	return nil
}
