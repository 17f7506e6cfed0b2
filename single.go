package b2uploader

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"
)

func (m *Manager) uploadOnce(ctx context.Context, job *Job, attempt int, progress ProgressFunc) (*StoredObject, error) {
	f, err := os.Open(job.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileAccess, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileAccess, err)
	}

	size := info.Size()
	if size <= m.singleThreshold {
		return m.uploadSingle(ctx, job, f, size, info.ModTime(), progress)
	}

	return m.uploadLarge(ctx, job, f, size, info.ModTime(), attempt, progress)
}

// uploadSingle hashes the whole file, then streams it from the start in one
// request. Progress comes from the streaming pass only.
func (m *Manager) uploadSingle(ctx context.Context, job *Job, f io.ReadSeeker, size int64, modTime time.Time, progress ProgressFunc) (*StoredObject, error) {
	digest, err := sha1Hex(io.LimitReader(f, size))
	if err != nil {
		return nil, fmt.Errorf("%w: hash %s: %w", ErrFileAccess, job.Path, err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: seek %s: %w", ErrFileAccess, job.Path, err)
	}

	target, err := m.provider.GetUploadTarget(ctx, job.BucketID)
	if err != nil {
		return nil, err
	}

	tracker := newProgressTracker(job.Path, size, m.now, progress)
	body := newCountingReader(io.LimitReader(f, size), m.subChunkSize, tracker)

	obj, err := m.provider.UploadObject(ctx, target, &ObjectUpload{
		Name:        job.Name,
		BucketID:    job.BucketID,
		ContentType: job.ContentType,
		SHA1:        digest,
		Size:        size,
		ModTime:     modTime,
		Metadata:    job.Metadata,
		Body:        body,
	})
	if err != nil {
		return nil, err
	}

	return obj, nil
}

func sha1Hex(r io.Reader) (string, error) {
	h := sha1.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
