package b2uploader

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// ProgressSample is one progress observation for a file.
type ProgressSample struct {
	Uploaded    int64
	Total       int64
	Fraction    float64
	BytesPerSec int64
	ETASeconds  int64
}

func (s ProgressSample) String() string {
	return fmt.Sprintf("%s/%s %.1f%% %s/s eta %s",
		humanize.IBytes(uint64(max(s.Uploaded, 0))),
		humanize.IBytes(uint64(max(s.Total, 0))),
		s.Fraction*100,
		humanize.IBytes(uint64(s.BytesPerSec)),
		time.Duration(s.ETASeconds)*time.Second,
	)
}

// ProgressFunc receives samples for the file at path. It is called from
// upload goroutines and must be safe for concurrent use.
type ProgressFunc func(path string, sample ProgressSample)

// ComputeProgress derives rate and ETA from elapsed time. Elapsed time is
// taken in whole seconds with a floor of one, and the rate has a floor of one
// byte per second.
func ComputeProgress(elapsed time.Duration, uploaded, total int64) ProgressSample {
	secs := int64(elapsed / time.Second)
	if secs < 1 {
		secs = 1
	}

	counted := max(uploaded, 0)
	rate := counted / secs
	if rate < 1 {
		rate = 1
	}

	remaining := total - counted
	if remaining < 0 {
		remaining = 0
	}

	fraction := 1.0
	if total > 0 {
		fraction = float64(counted) / float64(total)
		if fraction > 1 {
			fraction = 1
		}
	}

	return ProgressSample{
		Uploaded:    uploaded,
		Total:       total,
		Fraction:    fraction,
		BytesPerSec: rate,
		ETASeconds:  remaining / rate,
	}
}

// progressTracker owns the uploaded byte counter of one file attempt. The
// counter is shared by every part worker of the file and goes down only when
// the reader of a failed part attempt is retired. Updates and the samples they produce are
// serialized, so callers see samples in counter order.
type progressTracker struct {
	path    string
	total   int64
	started time.Time
	now     func() time.Time
	fn      ProgressFunc

	mu       sync.Mutex
	uploaded int64
}

func newProgressTracker(path string, total int64, now func() time.Time, fn ProgressFunc) *progressTracker {
	if now == nil {
		now = time.Now
	}
	return &progressTracker{
		path:    path,
		total:   total,
		started: now(),
		now:     now,
		fn:      fn,
	}
}

func (t *progressTracker) add(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.uploaded += n
	t.report()
}

func (t *progressTracker) Uploaded() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.uploaded
}

// report must be called with t.mu held.
func (t *progressTracker) report() {
	if t.fn == nil {
		return
	}
	t.fn(t.path, ComputeProgress(t.now().Sub(t.started), t.uploaded, t.total))
}

// countingReader hands out at most chunk bytes per Read and adds every
// chunk to the tracker. counted is what this reader contributed, so a
// failed attempt can be rolled back exactly. Once retired, the reader still
// serves bytes but no longer counts them; a transport may keep draining a
// body after the response came back.
type countingReader struct {
	src     io.Reader
	chunk   int
	tracker *progressTracker

	// guarded by tracker.mu
	counted int64
	retired bool
}

func newCountingReader(src io.Reader, chunk int64, tracker *progressTracker) *countingReader {
	if chunk <= 0 {
		chunk = DefaultSubChunkSize
	}
	return &countingReader{src: src, chunk: int(chunk), tracker: tracker}
}

func (r *countingReader) Read(p []byte) (int, error) {
	if len(p) > r.chunk {
		p = p[:r.chunk]
	}

	n, err := r.src.Read(p)
	if n > 0 {
		r.count(int64(n))
	}
	return n, err
}

func (r *countingReader) count(n int64) {
	t := r.tracker
	t.mu.Lock()
	defer t.mu.Unlock()

	if r.retired {
		return
	}
	r.counted += n
	t.uploaded += n
	t.report()
}

// Retire takes back every byte this reader counted and stops counting
// further reads. It returns the amount taken back.
func (r *countingReader) Retire() int64 {
	t := r.tracker
	t.mu.Lock()
	defer t.mu.Unlock()

	if r.retired {
		return 0
	}
	r.retired = true
	t.uploaded -= r.counted
	return r.counted
}

// Counted returns the bytes this reader has reported so far.
func (r *countingReader) Counted() int64 {
	r.tracker.mu.Lock()
	defer r.tracker.mu.Unlock()
	return r.counted
}
