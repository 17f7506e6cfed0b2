package b2uploader

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/goliatone/go-b2uploader/b2"
	gerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

var (
	_ Provider          = &B2Provider{}
	_ ProviderValidator = &B2Provider{}
)

type b2API interface {
	GetUploadURL(ctx context.Context, bucketID string) (*b2.UploadURL, error)
	UploadFile(ctx context.Context, target *b2.UploadURL, headers b2.UploadFileHeaders, info map[string]string, body io.Reader) (*b2.File, error)
	StartLargeFile(ctx context.Context, in *b2.StartLargeFileRequest) (*b2.File, error)
	GetUploadPartURL(ctx context.Context, fileID string) (*b2.UploadPartURL, error)
	UploadPart(ctx context.Context, target *b2.UploadPartURL, headers b2.UploadPartHeaders, body io.Reader) (*b2.FilePart, error)
	FinishLargeFile(ctx context.Context, fileID string, partSHA1s []string) (*b2.File, error)
	CancelLargeFile(ctx context.Context, fileID string) (*b2.CancelledFile, error)
	HasAllPermissions(caps ...b2.Capability) bool
}

// B2Provider uploads through the B2 native API.
type B2Provider struct {
	client b2API
	logger Logger
}

func NewB2Provider(client *b2.Client) *B2Provider {
	return &B2Provider{
		client: client,
		logger: &DefaultLogger{},
	}
}

func (p *B2Provider) WithLogger(logger Logger) *B2Provider {
	p.logger = logger
	return p
}

// Validate checks the held session can write files.
func (p *B2Provider) Validate(context.Context) error {
	if p.client == nil {
		return ErrProviderNotConfigured
	}

	if !p.client.HasAllPermissions(b2.CapWriteFiles) {
		return gerrors.New("application key cannot write files", gerrors.CategoryAuthz).
			WithCode(403).
			WithTextCode("MISSING_CAPABILITY").
			WithMetadata(map[string]any{
				"capability": string(b2.CapWriteFiles),
			})
	}

	return nil
}

func (p *B2Provider) GetUploadTarget(ctx context.Context, bucketID string) (*UploadTarget, error) {
	out, err := p.client.GetUploadURL(ctx, bucketID)
	if err != nil {
		return nil, wrapB2Error(err)
	}
	return &UploadTarget{URL: out.UploadURL, Token: out.AuthorizationToken}, nil
}

func (p *B2Provider) UploadObject(ctx context.Context, target *UploadTarget, in *ObjectUpload) (*StoredObject, error) {
	headers := b2.UploadFileHeaders{
		FileName:      in.Name,
		ContentType:   in.ContentType,
		ContentLength: in.Size,
		ContentSHA1:   in.SHA1,
	}
	if !in.ModTime.IsZero() {
		headers.SrcLastModifiedMillis = in.ModTime.UnixMilli()
	}

	file, err := p.client.UploadFile(ctx, &b2.UploadURL{
		BucketID:           in.BucketID,
		UploadURL:          target.URL,
		AuthorizationToken: target.Token,
	}, headers, in.Metadata, in.Body)
	if err != nil {
		p.logger.Error("b2 upload failed", "name", in.Name, "error", err)
		return nil, wrapB2Error(err)
	}

	p.logger.Info("b2 upload", "res", print.MaybeHighlightJSON(file))

	return storedObjectFromFile(file), nil
}

func (p *B2Provider) StartLargeFile(ctx context.Context, in *LargeFileStart) (*LargeFile, error) {
	info := make(map[string]string, len(in.Metadata)+1)
	for k, v := range in.Metadata {
		info[k] = v
	}
	if !in.ModTime.IsZero() {
		info[SrcLastModifiedInfoKey] = fmt.Sprintf("%d", in.ModTime.UnixMilli())
	}

	file, err := p.client.StartLargeFile(ctx, &b2.StartLargeFileRequest{
		BucketID:    in.BucketID,
		FileName:    in.Name,
		ContentType: in.ContentType,
		FileInfo:    info,
	})
	if err != nil {
		return nil, wrapB2Error(err)
	}

	return &LargeFile{ID: file.FileID, Name: file.FileName, BucketID: file.BucketID}, nil
}

func (p *B2Provider) GetPartTarget(ctx context.Context, file *LargeFile) (*UploadTarget, error) {
	out, err := p.client.GetUploadPartURL(ctx, file.ID)
	if err != nil {
		return nil, wrapB2Error(err)
	}
	return &UploadTarget{URL: out.UploadURL, Token: out.AuthorizationToken}, nil
}

func (p *B2Provider) UploadPart(ctx context.Context, file *LargeFile, target *UploadTarget, in *PartUpload) (*PartResult, error) {
	ack, err := p.client.UploadPart(ctx, &b2.UploadPartURL{
		FileID:             file.ID,
		UploadURL:          target.URL,
		AuthorizationToken: target.Token,
	}, b2.UploadPartHeaders{
		PartNumber:    in.Number,
		ContentLength: in.Size,
		ContentSHA1:   in.SHA1,
	}, in.Body)
	if err != nil {
		return nil, wrapB2Error(err)
	}

	return &PartResult{
		Number: ack.PartNumber,
		SHA1:   ack.ContentSHA1,
		Size:   ack.ContentLength,
	}, nil
}

func (p *B2Provider) FinishLargeFile(ctx context.Context, file *LargeFile, parts []PartResult) (*StoredObject, error) {
	digests := make([]string, len(parts))
	for i, part := range parts {
		digests[i] = part.SHA1
	}

	out, err := p.client.FinishLargeFile(ctx, file.ID, digests)
	if err != nil {
		return nil, wrapB2Error(err)
	}

	p.logger.Info("b2 finish large file", "res", print.MaybeHighlightJSON(out))

	return storedObjectFromFile(out), nil
}

func (p *B2Provider) CancelLargeFile(ctx context.Context, file *LargeFile) error {
	if _, err := p.client.CancelLargeFile(ctx, file.ID); err != nil {
		return wrapB2Error(err)
	}
	return nil
}

func storedObjectFromFile(f *b2.File) *StoredObject {
	return &StoredObject{
		ID:          f.FileID,
		Name:        f.FileName,
		BucketID:    f.BucketID,
		ContentSHA1: f.ContentSHA1,
		ContentType: f.ContentType,
		Size:        f.ContentLength,
		UploadedAt:  f.UploadedAt(),
		Metadata:    f.FileInfo,
	}
}

// wrapB2Error marks 503 responses so the engine can tell them apart without
// knowing the transport.
func wrapB2Error(err error) error {
	if b2.IsServiceBusy(err) {
		return fmt.Errorf("%w: %w", ErrServiceBusy, err)
	}
	if errors.Is(err, b2.ErrNotAuthorized) {
		return fmt.Errorf("%w: %w", ErrProviderNotConfigured, err)
	}
	return err
}
