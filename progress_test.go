package b2uploader

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestComputeProgressBounds(t *testing.T) {
	cases := []struct {
		name     string
		elapsed  time.Duration
		uploaded int64
		total    int64
	}{
		{"zero elapsed", 0, 0, 100},
		{"sub second", 300 * time.Millisecond, 50, 100},
		{"complete", 4 * time.Second, 100, 100},
		{"over count", 2 * time.Second, 150, 100},
		{"empty total", time.Second, 0, 0},
		{"rolled back below zero", time.Second, -10, 100},
		{"slow", time.Hour, 1, 1 << 30},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := ComputeProgress(tc.elapsed, tc.uploaded, tc.total)
			if s.Fraction < 0 || s.Fraction > 1 {
				t.Fatalf("fraction out of range: %v", s.Fraction)
			}
			if s.BytesPerSec < 1 {
				t.Fatalf("rate below floor: %d", s.BytesPerSec)
			}
			if s.ETASeconds < 0 {
				t.Fatalf("negative eta: %d", s.ETASeconds)
			}
		})
	}
}

func TestComputeProgressValues(t *testing.T) {
	s := ComputeProgress(2500*time.Millisecond, 400, 1000)

	if s.BytesPerSec != 200 {
		t.Fatalf("expected 200 B/s using whole seconds, got %d", s.BytesPerSec)
	}
	if s.ETASeconds != 3 {
		t.Fatalf("expected eta 3s, got %d", s.ETASeconds)
	}
	if s.Fraction != 0.4 {
		t.Fatalf("expected fraction 0.4, got %v", s.Fraction)
	}

	if empty := ComputeProgress(0, 0, 0); empty.Fraction != 1 {
		t.Fatalf("expected fraction 1 for empty file, got %v", empty.Fraction)
	}
}

func TestProgressSampleString(t *testing.T) {
	s := ProgressSample{Uploaded: 1536, Total: 3072, Fraction: 0.5, BytesPerSec: 1024, ETASeconds: 2}
	out := s.String()

	for _, want := range []string{"1.5 KiB", "3.0 KiB", "50.0%", "1.0 KiB/s", "2s"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}

func TestCountingReaderSubChunks(t *testing.T) {
	var (
		mu      sync.Mutex
		samples []ProgressSample
	)

	tracker := newProgressTracker("file.bin", 1000, fixedClock(time.Unix(0, 0)), func(path string, s ProgressSample) {
		if path != "file.bin" {
			t.Errorf("unexpected path %q", path)
		}
		mu.Lock()
		samples = append(samples, s)
		mu.Unlock()
	})

	reader := newCountingReader(bytes.NewReader(make([]byte, 1000)), 128, tracker)
	n, err := io.Copy(io.Discard, reader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n != 1000 || reader.Counted() != 1000 || tracker.Uploaded() != 1000 {
		t.Fatalf("expected 1000 bytes counted, got copy=%d reader=%d tracker=%d", n, reader.Counted(), tracker.Uploaded())
	}

	if len(samples) != 8 {
		t.Fatalf("expected 8 sub-chunk samples, got %d", len(samples))
	}

	for i := 1; i < len(samples); i++ {
		if samples[i].Uploaded < samples[i-1].Uploaded {
			t.Fatalf("uploaded decreased at sample %d", i)
		}
	}

	if got := reader.Retire(); got != 1000 {
		t.Fatalf("expected retire to take back 1000 bytes, got %d", got)
	}
	if tracker.Uploaded() != 0 {
		t.Fatalf("expected rollback to zero, got %d", tracker.Uploaded())
	}
}

func TestCountingReaderIgnoresReadsAfterRetire(t *testing.T) {
	var samples int
	tracker := newProgressTracker("file.bin", 1000, fixedClock(time.Unix(0, 0)), func(string, ProgressSample) {
		samples++
	})

	reader := newCountingReader(bytes.NewReader(make([]byte, 1000)), 100, tracker)
	buf := make([]byte, 100)
	for i := 0; i < 3; i++ {
		if _, err := reader.Read(buf); err != nil {
			t.Fatalf("read: %v", err)
		}
	}

	if got := reader.Retire(); got != 300 {
		t.Fatalf("expected 300 bytes taken back, got %d", got)
	}

	// a transport may keep draining the body after the response arrived
	n, err := io.Copy(io.Discard, reader)
	if err != nil || n != 700 {
		t.Fatalf("expected the remaining 700 bytes to be served, got %d (%v)", n, err)
	}

	if tracker.Uploaded() != 0 {
		t.Fatalf("expected late reads to stay uncounted, got %d", tracker.Uploaded())
	}
	if samples != 3 {
		t.Fatalf("expected no samples after retire, got %d", samples)
	}
	if reader.Retire() != 0 {
		t.Fatal("expected a second retire to be a no-op")
	}
}

func TestProgressTrackerSamplesFollowCounter(t *testing.T) {
	const (
		workers = 16
		reads   = 200
	)

	var prev int64
	var decreased int
	tracker := newProgressTracker("file.bin", workers*reads, nil, func(_ string, s ProgressSample) {
		if s.Uploaded < prev {
			decreased++
		}
		prev = s.Uploaded
	})

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reader := newCountingReader(bytes.NewReader(make([]byte, reads)), 1, tracker)
			if _, err := io.Copy(io.Discard, reader); err != nil {
				t.Errorf("copy: %v", err)
			}
		}()
	}
	wg.Wait()

	if decreased != 0 {
		t.Fatalf("uploaded decreased %d times without a rollback", decreased)
	}
	if tracker.Uploaded() != workers*reads {
		t.Fatalf("expected %d bytes, got %d", workers*reads, tracker.Uploaded())
	}
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
