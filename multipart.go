package b2uploader

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// uploadLarge runs one multipart attempt: start, plan, fan out the parts,
// join, finish. A failed attempt cancels its large file on the service.
func (m *Manager) uploadLarge(ctx context.Context, job *Job, src io.ReaderAt, size int64, modTime time.Time, attempt int, progress ProgressFunc) (*StoredObject, error) {
	plan, err := NewPartPlan(size, m.partSize)
	if err != nil {
		return nil, err
	}

	m.sessions.CleanupExpired(m.now())

	session, err := m.sessions.Create(&LargeFileSession{
		ID:        uuid.NewString(),
		Path:      job.Path,
		Name:      job.Name,
		BucketID:  job.BucketID,
		TotalSize: size,
		PartSize:  m.partSize,
		PartCount: plan.Len(),
		Attempt:   attempt,
	})
	if err != nil {
		return nil, err
	}

	file, err := m.provider.StartLargeFile(ctx, &LargeFileStart{
		Name:        job.Name,
		BucketID:    job.BucketID,
		ContentType: job.ContentType,
		ModTime:     modTime,
		Metadata:    job.Metadata,
	})
	if err != nil {
		m.failSession(session.ID, err)
		return nil, err
	}

	m.logger.Info("large file started",
		"path", job.Path,
		"file_id", file.ID,
		"parts", plan.Len(),
		"workers", len(plan.Batches(m.partsPerWorker)),
		"attempt", attempt,
	)

	fail := func(err error) (*StoredObject, error) {
		m.failSession(session.ID, err)
		m.cancelLargeFile(ctx, file)
		return nil, err
	}

	if _, err := m.sessions.MarkStarted(session.ID, file.ID); err != nil {
		return fail(err)
	}

	parts, err := m.uploadParts(ctx, job, file, src, plan, session.ID, progress)
	if err != nil {
		return fail(err)
	}

	if _, err := m.sessions.MarkAcked(session.ID); err != nil {
		return fail(err)
	}

	obj, err := m.provider.FinishLargeFile(ctx, file, parts)
	if err != nil {
		return fail(err)
	}

	if _, err := m.sessions.MarkFinalized(session.ID); err != nil {
		m.logger.Error("large file session finalize failed", "session", session.ID, "error", err)
	}
	m.sessions.Delete(session.ID)

	if obj.Size == 0 {
		obj.Size = size
	}
	if obj.Name == "" {
		obj.Name = job.Name
	}
	if obj.ContentType == "" {
		obj.ContentType = job.ContentType
	}

	return obj, nil
}

// uploadParts fans the plan out over one worker per batch and returns the
// part results in part order. The first non-recoverable part error cancels
// every sibling worker.
func (m *Manager) uploadParts(ctx context.Context, job *Job, file *LargeFile, src io.ReaderAt, plan *PartPlan, sessionID string, progress ProgressFunc) ([]PartResult, error) {
	if _, err := m.sessions.MarkInFlight(sessionID); err != nil {
		return nil, err
	}

	tracker := newProgressTracker(job.Path, plan.FileSize, m.now, progress)
	slots := make([]PartResult, plan.Len())

	g, gctx := errgroup.WithContext(ctx)
	for _, batch := range plan.Batches(m.partsPerWorker) {
		g.Go(func() error {
			return m.runPartWorker(gctx, file, src, batch, slots, tracker, sessionID)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, slot := range slots {
		if slot.SHA1 == "" || slot.Number != i+1 {
			return nil, fmt.Errorf("%w: part %d", ErrPartSlotMissing, i+1)
		}
	}

	return slots, nil
}

// runPartWorker uploads its batch sequentially through one part target.
// The part buffer is reused across the batch.
func (m *Manager) runPartWorker(ctx context.Context, file *LargeFile, src io.ReaderAt, batch []Part, slots []PartResult, tracker *progressTracker, sessionID string) error {
	target, err := m.provider.GetPartTarget(ctx, file)
	if err != nil {
		return err
	}

	buf := make([]byte, m.partSize)
	for _, part := range batch {
		if err := ctx.Err(); err != nil {
			return err
		}

		data := buf[:part.Size]
		if n, err := src.ReadAt(data, part.Offset); err != nil && !(errors.Is(err, io.EOF) && int64(n) == part.Size) {
			return fmt.Errorf("%w: read part %d: %w", ErrFileAccess, part.Number, err)
		}

		sum := sha1.Sum(data)
		slot := &slots[part.Number-1]
		*slot = PartResult{
			Number: part.Number,
			SHA1:   hex.EncodeToString(sum[:]),
			Size:   part.Size,
		}

		result, next, err := m.uploadPartWithBusyRetry(ctx, file, target, part, data, slot.SHA1, tracker)
		target = next
		if err != nil {
			return fmt.Errorf("part %d: %w", part.Number, err)
		}
		slot.ETag = result.ETag

		if _, err := m.sessions.AckPart(sessionID, *slot); err != nil {
			return err
		}
	}

	return nil
}

// uploadPartWithBusyRetry retries a part that got a 503. Before each retry
// the bytes counted for the failed attempt are taken back from the tracker
// and a fresh part target is requested. It returns the target in use so the
// worker keeps it for its next part.
func (m *Manager) uploadPartWithBusyRetry(ctx context.Context, file *LargeFile, target *UploadTarget, part Part, data []byte, digest string, tracker *progressTracker) (*PartResult, *UploadTarget, error) {
	var (
		result  *PartResult
		lastErr error
		busy    int
	)

	var policy backoff.BackOff = backoff.NewConstantBackOff(m.partBusyDelay)
	if m.partBusyRetries > 0 {
		policy = backoff.WithMaxRetries(policy, uint64(m.partBusyRetries))
	}
	policy = backoff.WithContext(policy, ctx)

	op := func() error {
		body := newCountingReader(bytes.NewReader(data), m.subChunkSize, tracker)
		res, err := m.provider.UploadPart(ctx, file, target, &PartUpload{
			Number: part.Number,
			SHA1:   digest,
			Size:   part.Size,
			Body:   body,
		})
		if err == nil {
			result = res
			return nil
		}

		lastErr = err
		if !errors.Is(err, ErrServiceBusy) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}

		busy++
		body.Retire()

		next, targetErr := m.provider.GetPartTarget(ctx, file)
		if targetErr != nil {
			lastErr = targetErr
			return backoff.Permanent(targetErr)
		}
		target = next
		return err
	}

	notify := func(err error, wait time.Duration) {
		m.logger.Info("part busy, retrying with a new upload url",
			"file_id", file.ID,
			"part", part.Number,
			"busy_count", busy,
			"retry_in", wait,
		)
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if lastErr == nil || ctx.Err() != nil {
			return nil, target, err
		}
		return nil, target, lastErr
	}

	return result, target, nil
}

func (m *Manager) failSession(id string, cause error) {
	if _, err := m.sessions.MarkFailed(id, cause); err != nil {
		m.logger.Error("large file session update failed", "session", id, "error", err)
	}
}

// cancelLargeFile discards the parts of a failed attempt. It runs even when
// ctx is already cancelled.
func (m *Manager) cancelLargeFile(ctx context.Context, file *LargeFile) {
	if err := m.provider.CancelLargeFile(context.WithoutCancel(ctx), file); err != nil {
		m.logger.Error("cancel large file failed", "file_id", file.ID, "error", err)
	}
}
