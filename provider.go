package b2uploader

import (
	"context"
	"io"
	"time"
)

// Provider is the storage transport used by the upload engine. Targets are
// short-lived; the engine never reuses one across job attempts and asks for
// a fresh part target whenever a part upload reports the service is busy.
type Provider interface {
	GetUploadTarget(ctx context.Context, bucketID string) (*UploadTarget, error)
	UploadObject(ctx context.Context, target *UploadTarget, in *ObjectUpload) (*StoredObject, error)

	StartLargeFile(ctx context.Context, in *LargeFileStart) (*LargeFile, error)
	GetPartTarget(ctx context.Context, file *LargeFile) (*UploadTarget, error)
	UploadPart(ctx context.Context, file *LargeFile, target *UploadTarget, in *PartUpload) (*PartResult, error)
	FinishLargeFile(ctx context.Context, file *LargeFile, parts []PartResult) (*StoredObject, error)
	CancelLargeFile(ctx context.Context, file *LargeFile) error
}

// ProviderValidator is implemented by providers that can check their
// credentials and permissions before the first upload.
type ProviderValidator interface {
	Validate(context.Context) error
}

// UploadTarget is an endpoint plus token for one object upload, or for the
// parts uploaded by one worker.
type UploadTarget struct {
	URL   string
	Token string
}

type ObjectUpload struct {
	Name        string
	BucketID    string
	ContentType string
	SHA1        string
	Size        int64
	ModTime     time.Time
	Metadata    map[string]string
	Body        io.Reader
}

type LargeFileStart struct {
	Name        string
	BucketID    string
	ContentType string
	ModTime     time.Time
	Metadata    map[string]string
}

// LargeFile is the server side handle grouping the parts of one object.
type LargeFile struct {
	ID       string
	Name     string
	BucketID string
}

type PartUpload struct {
	Number int
	SHA1   string
	Size   int64
	Body   io.Reader
}

// PartResult is the acknowledgement of one part. SHA1 is lowercase hex.
type PartResult struct {
	Number int
	SHA1   string
	Size   int64
	ETag   string
}

// StoredObject describes an object once the service has accepted it.
type StoredObject struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	BucketID    string            `json:"bucket_id"`
	ContentSHA1 string            `json:"content_sha1"`
	ContentType string            `json:"content_type"`
	Size        int64             `json:"size"`
	UploadedAt  time.Time         `json:"uploaded_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}
