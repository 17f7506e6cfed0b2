package b2uploader

import "time"

const (
	// MiB is one mebibyte.
	MiB int64 = 1024 * 1024
	// KiB is one kibibyte.
	KiB int64 = 1024
)

var (
	// DefaultSingleUploadThreshold is the largest size sent with a single
	// upload call. Anything bigger goes through the multipart engine.
	DefaultSingleUploadThreshold = 200 * MiB

	// DefaultPartSize is the fixed size of every part but the last.
	DefaultPartSize = 20 * MiB

	// DefaultPartsPerWorker groups parts into batches; each batch is served by
	// one worker holding one upload part URL.
	DefaultPartsPerWorker = 10

	// DefaultSubChunkSize is the read granularity of upload bodies and thus of
	// progress reports.
	DefaultSubChunkSize = 80 * KiB

	// DefaultMaxAttempts bounds how many times a whole job is attempted.
	DefaultMaxAttempts = 50

	// DefaultRetryDelay is the fixed pause between job attempts.
	DefaultRetryDelay = 750 * time.Millisecond

	// DefaultPartBusyDelay is the pause before retrying a part that got a 503.
	DefaultPartBusyDelay = time.Second

	// DefaultPartBusyRetries bounds 503 retries of a single part. Zero means
	// the part keeps retrying until it succeeds, fails otherwise, or the job
	// is cancelled.
	DefaultPartBusyRetries = 0

	// DefaultSessionTTL is how long a large file session record is kept
	// around when it never reaches a terminal state.
	DefaultSessionTTL = 24 * time.Hour

	// MaxFileInfoEntries is the service limit on custom file info pairs.
	MaxFileInfoEntries = 10

	// MaxFileNameBytes is the service limit on encoded file names.
	MaxFileNameBytes = 1024
)

// CallbackMode describes how the manager should react when post-upload callbacks fail.
type CallbackMode string

const (
	// CallbackModeStrict turns a callback failure into a failed outcome.
	CallbackModeStrict CallbackMode = "strict"
	// CallbackModeBestEffort logs callback failures but still reports success to the caller.
	CallbackModeBestEffort CallbackMode = "best_effort"
)
