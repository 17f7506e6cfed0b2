package b2uploader

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	_ Provider          = &FSProvider{}
	_ ProviderValidator = &FSProvider{}
)

const fsStagingDir = ".large"

// FSProvider stores objects under a local directory laid out as
// <base>/<bucket>/<name>. Large files are staged part by part and
// concatenated on finish. It backs dry runs and local mirrors.
type FSProvider struct {
	base   string
	logger Logger
	now    func() time.Time
}

func NewFSProvider(base string) *FSProvider {
	return &FSProvider{
		base:   base,
		logger: &DefaultLogger{},
		now:    time.Now,
	}
}

func (p *FSProvider) WithLogger(l Logger) *FSProvider {
	p.logger = l
	return p
}

func (p *FSProvider) Validate(context.Context) error {
	if p.base == "" {
		return fmt.Errorf("%w: empty base directory", ErrProviderNotConfigured)
	}
	if err := os.MkdirAll(p.base, 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}
	return nil
}

func (p *FSProvider) GetUploadTarget(_ context.Context, bucketID string) (*UploadTarget, error) {
	return &UploadTarget{URL: "file://" + filepath.Join(p.base, bucketID)}, nil
}

func (p *FSProvider) UploadObject(_ context.Context, _ *UploadTarget, in *ObjectUpload) (*StoredObject, error) {
	fullPath, err := p.objectPath(in.BucketID, in.Name)
	if err != nil {
		return nil, err
	}

	digest, size, err := writeVerified(fullPath, in.Body, in.SHA1)
	if err != nil {
		return nil, err
	}

	p.logger.Info("stored object", "path", fullPath, "size", size)

	return &StoredObject{
		ID:          fullPath,
		Name:        in.Name,
		BucketID:    in.BucketID,
		ContentSHA1: digest,
		ContentType: in.ContentType,
		Size:        size,
		UploadedAt:  p.now(),
		Metadata:    in.Metadata,
	}, nil
}

func (p *FSProvider) StartLargeFile(_ context.Context, in *LargeFileStart) (*LargeFile, error) {
	if _, err := p.objectPath(in.BucketID, in.Name); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	if err := os.MkdirAll(p.stagingPath(id), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}

	return &LargeFile{ID: id, Name: in.Name, BucketID: in.BucketID}, nil
}

func (p *FSProvider) GetPartTarget(_ context.Context, file *LargeFile) (*UploadTarget, error) {
	return &UploadTarget{URL: "file://" + p.stagingPath(file.ID)}, nil
}

func (p *FSProvider) UploadPart(_ context.Context, file *LargeFile, _ *UploadTarget, in *PartUpload) (*PartResult, error) {
	partPath := filepath.Join(p.stagingPath(file.ID), partFileName(in.Number))

	digest, size, err := writeVerified(partPath, in.Body, in.SHA1)
	if err != nil {
		return nil, err
	}
	if size != in.Size {
		return nil, fmt.Errorf("%w: part %d wrote %d of %d bytes", ErrChecksumMismatch, in.Number, size, in.Size)
	}

	return &PartResult{Number: in.Number, SHA1: digest, Size: size}, nil
}

func (p *FSProvider) FinishLargeFile(_ context.Context, file *LargeFile, parts []PartResult) (*StoredObject, error) {
	fullPath, err := p.objectPath(file.BucketID, file.Name)
	if err != nil {
		return nil, err
	}

	ordered := append([]PartResult(nil), parts...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Number < ordered[j].Number })

	tmp, err := createTemp(fullPath)
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())

	var size int64
	for i, part := range ordered {
		if part.Number != i+1 {
			tmp.Close()
			return nil, fmt.Errorf("%w: part %d", ErrPartSlotMissing, i+1)
		}
		n, err := appendFile(tmp, filepath.Join(p.stagingPath(file.ID), partFileName(part.Number)))
		if err != nil {
			tmp.Close()
			return nil, err
		}
		size += n
	}

	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("fs close: %w", err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}
	if err := os.RemoveAll(p.stagingPath(file.ID)); err != nil {
		p.logger.Error("staging cleanup failed", "file_id", file.ID, "error", err)
	}

	return &StoredObject{
		ID:         fullPath,
		Name:       file.Name,
		BucketID:   file.BucketID,
		Size:       size,
		UploadedAt: p.now(),
	}, nil
}

func (p *FSProvider) CancelLargeFile(_ context.Context, file *LargeFile) error {
	if err := os.RemoveAll(p.stagingPath(file.ID)); err != nil {
		return fmt.Errorf("fs cancel: %w", err)
	}
	return nil
}

func (p *FSProvider) objectPath(bucketID, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	return filepath.Join(p.base, bucketID, clean), nil
}

func (p *FSProvider) stagingPath(id string) string {
	return filepath.Join(p.base, fsStagingDir, id)
}

func partFileName(n int) string {
	return fmt.Sprintf("part-%05d", n)
}

func createTemp(target string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}
	f, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}
	return f, nil
}

// writeVerified copies body to target through a temp file and only renames
// it into place when the digest matches want. An empty want skips the check.
func writeVerified(target string, body io.Reader, want string) (string, int64, error) {
	tmp, err := createTemp(target)
	if err != nil {
		return "", 0, err
	}
	defer os.Remove(tmp.Name())

	h := sha1.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", 0, fmt.Errorf("fs write: %w", err)
	}

	digest := hex.EncodeToString(h.Sum(nil))
	if want != "" && !strings.EqualFold(want, digest) {
		return "", 0, fmt.Errorf("%w: want %s got %s", ErrChecksumMismatch, want, digest)
	}

	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", 0, fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}
	return digest, size, nil
}

func appendFile(dst io.Writer, path string) (int64, error) {
	src, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("%w: %s", ErrPartSlotMissing, filepath.Base(path))
	}
	if err != nil {
		return 0, fmt.Errorf("fs read: %w", err)
	}
	defer src.Close()

	n, err := io.Copy(dst, src)
	if err != nil {
		return n, fmt.Errorf("fs read: %w", err)
	}
	return n, nil
}
