// Package b2uploader uploads local files to Backblaze B2. Files up to a size
// threshold are sent in one request; larger files are split into parts that
// are checksummed and uploaded concurrently, then finalized in part order.
package b2uploader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/goliatone/go-b2uploader/b2"
)

// Job describes one file to upload. Jobs are built with NewJob and are not
// modified by the manager.
type Job struct {
	Path        string
	BucketID    string
	Name        string
	ContentType string
	Metadata    map[string]string
}

type JobOption func(*Job)

// WithName sets the full object name, replacing any prefix.
func WithName(name string) JobOption {
	return func(j *Job) { j.Name = name }
}

// WithNamePrefix prepends prefix to the base name of the source file.
func WithNamePrefix(prefix string) JobOption {
	return func(j *Job) {
		if prefix == "" {
			return
		}
		if !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		j.Name = prefix + filepath.Base(j.Path)
	}
}

func WithMetadata(meta map[string]string) JobOption {
	return func(j *Job) {
		for k, v := range meta {
			j.Metadata[k] = v
		}
	}
}

func WithContentType(contentType string) JobOption {
	return func(j *Job) { j.ContentType = contentType }
}

// NewJob builds a job named after the base name of path.
func NewJob(path, bucketID string, opts ...JobOption) *Job {
	job := &Job{
		Path:        path,
		BucketID:    bucketID,
		Name:        filepath.Base(path),
		ContentType: b2.AutoContentType,
		Metadata:    make(map[string]string),
	}
	if path == "" {
		job.Name = ""
	}

	for _, opt := range opts {
		opt(job)
	}

	return job
}

func (j *Job) clone() *Job {
	out := *j
	out.Metadata = make(map[string]string, len(j.Metadata))
	for k, v := range j.Metadata {
		out.Metadata[k] = v
	}
	return &out
}

// Outcome is the result of one job. Exactly one of Object and Err is set,
// except in strict callback mode where a failed callback sets Err next to
// the stored object.
type Outcome struct {
	Job      *Job
	Object   *StoredObject
	Err      error
	Attempts int
}

func (o *Outcome) OK() bool {
	return o != nil && o.Err == nil && o.Object != nil
}

type Manager struct {
	logger           Logger
	provider         Provider
	validator        *Validator
	sessions         *LargeFileSessionStore
	partSize         int64
	singleThreshold  int64
	subChunkSize     int64
	partsPerWorker   int
	maxAttempts      int
	retryDelay       time.Duration
	partBusyRetries  int
	partBusyDelay    time.Duration
	now              func() time.Time
	detectType       bool
	onUploadComplete UploadCallback
	callbackExecutor CallbackExecutor
	callbackMode     CallbackMode

	validateMu sync.Mutex
	validated  bool
}

type Option func(m *Manager)

func WithLogger(l Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithProvider(p Provider) Option {
	return func(m *Manager) {
		m.provider = p
		m.validated = false
	}
}

func WithValidator(v *Validator) Option {
	return func(m *Manager) {
		if v != nil {
			m.validator = v
		}
	}
}

func WithSessionStore(store *LargeFileSessionStore) Option {
	return func(m *Manager) {
		if store != nil {
			m.sessions = store
		}
	}
}

func WithPartSize(size int64) Option {
	return func(m *Manager) {
		if size > 0 {
			m.partSize = size
		}
	}
}

// WithSingleUploadThreshold sets the largest file sent in one request.
func WithSingleUploadThreshold(size int64) Option {
	return func(m *Manager) {
		if size >= 0 {
			m.singleThreshold = size
		}
	}
}

func WithPartsPerWorker(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.partsPerWorker = n
		}
	}
}

func WithSubChunkSize(size int64) Option {
	return func(m *Manager) {
		if size > 0 {
			m.subChunkSize = size
		}
	}
}

// WithRetryPolicy bounds whole-job attempts and sets the fixed pause
// between them.
func WithRetryPolicy(maxAttempts int, delay time.Duration) Option {
	return func(m *Manager) {
		if maxAttempts > 0 {
			m.maxAttempts = maxAttempts
		}
		if delay >= 0 {
			m.retryDelay = delay
		}
	}
}

// WithPartBusyPolicy configures retries of a part that got a 503. A
// maxRetries of zero retries until the part succeeds or the job ends.
func WithPartBusyPolicy(maxRetries int, delay time.Duration) Option {
	return func(m *Manager) {
		if maxRetries >= 0 {
			m.partBusyRetries = maxRetries
		}
		if delay >= 0 {
			m.partBusyDelay = delay
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithContentTypeDetection sniffs the content type of jobs that leave it to
// the service.
func WithContentTypeDetection(enabled bool) Option {
	return func(m *Manager) {
		m.detectType = enabled
	}
}

func WithUploadCallback(cb UploadCallback) Option {
	return func(m *Manager) {
		m.onUploadComplete = cb
	}
}

func WithCallbackExecutor(executor CallbackExecutor) Option {
	return func(m *Manager) {
		if executor != nil {
			m.callbackExecutor = executor
		}
	}
}

func WithCallbackMode(mode CallbackMode) Option {
	return func(m *Manager) {
		switch mode {
		case CallbackModeStrict, CallbackModeBestEffort:
			m.callbackMode = mode
		}
	}
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		logger:           &DefaultLogger{},
		validator:        NewValidator(),
		sessions:         NewLargeFileSessionStore(DefaultSessionTTL),
		partSize:         DefaultPartSize,
		singleThreshold:  DefaultSingleUploadThreshold,
		subChunkSize:     DefaultSubChunkSize,
		partsPerWorker:   DefaultPartsPerWorker,
		maxAttempts:      DefaultMaxAttempts,
		retryDelay:       DefaultRetryDelay,
		partBusyRetries:  DefaultPartBusyRetries,
		partBusyDelay:    DefaultPartBusyDelay,
		now:              time.Now,
		callbackExecutor: syncCallbackExecutor{},
		callbackMode:     CallbackModeStrict,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Sessions exposes the store tracking multipart attempts.
func (m *Manager) Sessions() *LargeFileSessionStore {
	return m.sessions
}

// UploadFile uploads a single job.
func (m *Manager) UploadFile(ctx context.Context, job *Job, progress ProgressFunc) (*StoredObject, error) {
	outcomes, err := m.UploadFiles(ctx, []*Job{job}, progress)
	if len(outcomes) == 1 && outcomes[0].Err != nil {
		return outcomes[0].Object, outcomes[0].Err
	}
	if err != nil {
		return nil, err
	}
	return outcomes[0].Object, nil
}

// UploadFiles runs every job concurrently and returns one outcome per job in
// submission order. When a job exhausts its retries the remaining jobs are
// cancelled, their outcomes carry ErrUploadAborted, and the returned error
// wraps ErrBatchAborted.
func (m *Manager) UploadFiles(ctx context.Context, jobs []*Job, progress ProgressFunc) ([]*Outcome, error) {
	if err := m.ensureProvider(ctx); err != nil {
		return nil, err
	}

	batchCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		exhausted error
	)

	outcomes := make([]*Outcome, len(jobs))
	for i, job := range jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()

			outcome := m.runJob(batchCtx, job, progress)
			outcomes[i] = outcome

			if errors.Is(outcome.Err, ErrRetriesExhausted) {
				mu.Lock()
				if exhausted == nil {
					exhausted = outcome.Err
				}
				mu.Unlock()
				cancel(ErrBatchAborted)
			}
		}()
	}
	wg.Wait()

	if exhausted != nil {
		m.logger.Error("batch aborted", "jobs", len(jobs), "error", exhausted)
		return outcomes, fmt.Errorf("%w: %w", ErrBatchAborted, exhausted)
	}

	if err := ctx.Err(); err != nil {
		return outcomes, err
	}

	return outcomes, nil
}

func (m *Manager) runJob(ctx context.Context, job *Job, progress ProgressFunc) *Outcome {
	outcome := &Outcome{Job: job}

	if err := m.validator.ValidateJob(job); err != nil {
		outcome.Err = err
		return outcome
	}

	job = m.prepareJob(job)

	obj, attempts, err := m.withRetry(ctx, job, func(ctx context.Context, attempt int) (*StoredObject, error) {
		return m.uploadOnce(ctx, job, attempt, progress)
	})
	outcome.Attempts = attempts
	if err != nil {
		outcome.Err = err
		return outcome
	}

	outcome.Object = obj
	m.logger.Info("upload complete", "path", job.Path, "name", obj.Name, "id", obj.ID, "attempts", attempts)

	if err := m.runCallback(ctx, outcome); err != nil {
		outcome.Err = err
	}

	return outcome
}

func (m *Manager) prepareJob(job *Job) *Job {
	job = job.clone()
	if job.ContentType == "" {
		job.ContentType = b2.AutoContentType
	}

	if m.detectType && job.ContentType == b2.AutoContentType {
		mtype, err := mimetype.DetectFile(job.Path)
		if err != nil {
			m.logger.Error("content type detection failed", "path", job.Path, "error", err)
		} else {
			job.ContentType = mtype.String()
		}
	}

	return job
}

func (m *Manager) runCallback(ctx context.Context, outcome *Outcome) error {
	if m.onUploadComplete == nil {
		return nil
	}

	executor := m.callbackExecutor
	if executor == nil {
		executor = syncCallbackExecutor{}
	}

	if err := executor.Execute(ctx, m.onUploadComplete, outcome); err != nil {
		if m.callbackMode == CallbackModeBestEffort {
			m.logger.Error("upload callback failed", "path", outcome.Job.Path, "error", err)
			return nil
		}
		return fmt.Errorf("upload callback failed: %w", err)
	}

	return nil
}

func (m *Manager) ensureProvider(ctx context.Context) error {
	if m.provider == nil {
		return ErrProviderNotConfigured
	}

	m.validateMu.Lock()
	defer m.validateMu.Unlock()

	if m.validated {
		return nil
	}

	if validator, ok := m.provider.(ProviderValidator); ok {
		if err := validator.Validate(ctx); err != nil {
			m.logger.Error("provider validation failed", "error", err)
			return err
		}
	}

	m.validated = true
	return nil
}
