package b2uploader

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/goliatone/go-b2uploader/b2"
	"github.com/goliatone/go-print"
)

var (
	_ Provider          = &S3Provider{}
	_ ProviderValidator = &S3Provider{}
)

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// S3Provider uploads through the S3 compatible API of a bucket. It takes a
// bucket name where the native provider takes a bucket id.
type S3Provider struct {
	client   s3API
	bucket   string
	basePath string
	logger   Logger
}

func NewS3Provider(client *s3.Client, bucket string) *S3Provider {
	return &S3Provider{
		client: client,
		bucket: bucket,
		logger: &DefaultLogger{},
	}
}

func (p *S3Provider) WithLogger(logger Logger) *S3Provider {
	p.logger = logger
	return p
}

func (p *S3Provider) WithBasePath(basePath string) *S3Provider {
	p.basePath = basePath
	return p
}

// NewS3Client builds a client for the S3 endpoint advertised by session.
// Retries are left to the upload engine.
func NewS3Client(session *b2.Session, keyID, applicationKey, region string) (*s3.Client, error) {
	if session == nil || session.S3APIURL == "" {
		return nil, fmt.Errorf("s3 provider: session has no s3 endpoint")
	}

	if region == "" {
		region = RegionFromEndpoint(session.S3APIURL)
	}

	return s3.New(s3.Options{
		BaseEndpoint:               aws.String(session.S3APIURL),
		Region:                     region,
		Credentials:                credentials.NewStaticCredentialsProvider(keyID, applicationKey, ""),
		UsePathStyle:               true,
		RetryMaxAttempts:           1,
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	}), nil
}

// RegionFromEndpoint extracts the region from an endpoint of the form
// https://s3.<region>.backblazeb2.com.
func RegionFromEndpoint(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return ""
	}

	labels := strings.Split(u.Hostname(), ".")
	if len(labels) < 3 || labels[0] != "s3" {
		return ""
	}
	return labels[1]
}

func (p *S3Provider) Validate(ctx context.Context) error {
	if p.client == nil {
		return fmt.Errorf("s3 provider: client not configured")
	}

	if p.bucket == "" {
		return fmt.Errorf("s3 provider: bucket not configured")
	}

	_, err := p.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(p.bucket)})
	if err != nil {
		return fmt.Errorf("s3 provider: head bucket: %w", err)
	}

	return nil
}

// GetUploadTarget returns the bucket endpoint; the S3 API signs every
// request itself so there is no per-upload token.
func (p *S3Provider) GetUploadTarget(_ context.Context, _ string) (*UploadTarget, error) {
	return &UploadTarget{URL: p.bucket}, nil
}

func (p *S3Provider) UploadObject(ctx context.Context, _ *UploadTarget, in *ObjectUpload) (*StoredObject, error) {
	checksum, err := sha1HexToBase64(in.SHA1)
	if err != nil {
		return nil, err
	}

	p.logger.Info("s3 upload", "bucket", p.bucket, "key", in.Name)

	res, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           p.getKey(in.Name),
		Body:          in.Body,
		ContentLength: aws.Int64(in.Size),
		ContentType:   s3ContentType(in.ContentType),
		ChecksumSHA1:  aws.String(checksum),
		Metadata:      in.Metadata,
	})
	if err != nil {
		p.logger.Error("s3 upload failed", "key", in.Name, "error", err)
		return nil, wrapS3Error("put object", err)
	}

	p.logger.Info("s3 upload", "res", print.MaybeHighlightJSON(res))

	return &StoredObject{
		ID:          objectID(res.VersionId, res.ETag),
		Name:        in.Name,
		BucketID:    in.BucketID,
		ContentSHA1: in.SHA1,
		ContentType: in.ContentType,
		Size:        in.Size,
		Metadata:    in.Metadata,
	}, nil
}

func (p *S3Provider) StartLargeFile(ctx context.Context, in *LargeFileStart) (*LargeFile, error) {
	resp, err := p.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:            aws.String(p.bucket),
		Key:               p.getKey(in.Name),
		ContentType:       s3ContentType(in.ContentType),
		ChecksumAlgorithm: types.ChecksumAlgorithmSha1,
		Metadata:          in.Metadata,
	})
	if err != nil {
		return nil, wrapS3Error("create multipart upload", err)
	}

	return &LargeFile{
		ID:       aws.ToString(resp.UploadId),
		Name:     in.Name,
		BucketID: in.BucketID,
	}, nil
}

func (p *S3Provider) GetPartTarget(_ context.Context, file *LargeFile) (*UploadTarget, error) {
	return &UploadTarget{URL: p.bucket, Token: file.ID}, nil
}

func (p *S3Provider) UploadPart(ctx context.Context, file *LargeFile, _ *UploadTarget, in *PartUpload) (*PartResult, error) {
	checksum, err := sha1HexToBase64(in.SHA1)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(p.bucket),
		Key:           p.getKey(file.Name),
		UploadId:      aws.String(file.ID),
		PartNumber:    aws.Int32(int32(in.Number)),
		Body:          in.Body,
		ContentLength: aws.Int64(in.Size),
		ChecksumSHA1:  aws.String(checksum),
	})
	if err != nil {
		return nil, wrapS3Error("upload part", err)
	}

	return &PartResult{
		Number: in.Number,
		SHA1:   in.SHA1,
		Size:   in.Size,
		ETag:   aws.ToString(resp.ETag),
	}, nil
}

func (p *S3Provider) FinishLargeFile(ctx context.Context, file *LargeFile, parts []PartResult) (*StoredObject, error) {
	completed := make([]types.CompletedPart, 0, len(parts))
	var size int64
	for _, part := range parts {
		checksum, err := sha1HexToBase64(part.SHA1)
		if err != nil {
			return nil, err
		}
		completed = append(completed, types.CompletedPart{
			PartNumber:   aws.Int32(int32(part.Number)),
			ETag:         aws.String(part.ETag),
			ChecksumSHA1: aws.String(checksum),
		})
		size += part.Size
	}

	res, err := p.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(p.bucket),
		Key:      p.getKey(file.Name),
		UploadId: aws.String(file.ID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completed,
		},
	})
	if err != nil {
		return nil, wrapS3Error("complete multipart upload", err)
	}

	p.logger.Info("s3 complete multipart upload", "res", print.MaybeHighlightJSON(res))

	return &StoredObject{
		ID:       objectID(res.VersionId, res.ETag),
		Name:     file.Name,
		BucketID: file.BucketID,
		Size:     size,
	}, nil
}

func (p *S3Provider) CancelLargeFile(ctx context.Context, file *LargeFile) error {
	_, err := p.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(p.bucket),
		Key:      p.getKey(file.Name),
		UploadId: aws.String(file.ID),
	})
	if err != nil {
		return wrapS3Error("abort multipart upload", err)
	}
	return nil
}

func (p *S3Provider) getKey(key string) *string {
	if p.basePath == "" {
		return aws.String(key)
	}
	return aws.String(path.Join(p.basePath, key))
}

func s3ContentType(contentType string) *string {
	if contentType == "" || contentType == b2.AutoContentType {
		return nil
	}
	return aws.String(contentType)
}

func objectID(versionID, etag *string) string {
	if v := aws.ToString(versionID); v != "" {
		return v
	}
	return strings.Trim(aws.ToString(etag), `"`)
}

func sha1HexToBase64(digest string) (string, error) {
	raw, err := hex.DecodeString(digest)
	if err != nil {
		return "", fmt.Errorf("s3 provider: invalid sha1 digest %q: %w", digest, err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func wrapS3Error(op string, err error) error {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusServiceUnavailable {
		return fmt.Errorf("%w: s3 provider: %s: %w", ErrServiceBusy, op, err)
	}
	return fmt.Errorf("s3 provider: %s: %w", op, err)
}
