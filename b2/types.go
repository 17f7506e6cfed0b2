package b2

import "time"

// Session is the result of b2_authorize_account. It is replaced as a whole on
// every re-authorization and never mutated in place.
type Session struct {
	AccountID               string  `json:"accountId"`
	AuthorizationToken      string  `json:"authorizationToken"`
	Allowed                 Allowed `json:"allowed"`
	APIURL                  string  `json:"apiUrl"`
	DownloadURL             string  `json:"downloadUrl"`
	S3APIURL                string  `json:"s3ApiUrl"`
	RecommendedPartSize     int64   `json:"recommendedPartSize"`
	AbsoluteMinimumPartSize int64   `json:"absoluteMinimumPartSize"`
}

// Allowed describes what the application key used to authorize can do.
type Allowed struct {
	Capabilities []Capability `json:"capabilities"`
	BucketID     string       `json:"bucketId,omitempty"`
	BucketName   string       `json:"bucketName,omitempty"`
	NamePrefix   string       `json:"namePrefix,omitempty"`
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if len(s.Allowed.Capabilities) > 0 {
		out.Allowed.Capabilities = append([]Capability(nil), s.Allowed.Capabilities...)
	}
	return &out
}

type ServerSideEncryption struct {
	Mode      string `json:"mode,omitempty"`
	Algorithm string `json:"algorithm,omitempty"`
}

type ObjectLock struct {
	IsClientAuthorizedToRead bool           `json:"isClientAuthorizedToRead"`
	Value                    *RetentionLock `json:"value,omitempty"`
}

type RetentionLock struct {
	Mode                 RetentionMode `json:"mode,omitempty"`
	RetainUntilTimestamp int64         `json:"retainUntilTimestamp,omitempty"`
}

// File is the file descriptor returned by upload, start and finish calls.
type File struct {
	AccountID            string                `json:"accountId"`
	Action               string                `json:"action"`
	BucketID             string                `json:"bucketId"`
	ContentLength        int64                 `json:"contentLength"`
	ContentSHA1          string                `json:"contentSha1"`
	ContentMD5           string                `json:"contentMd5,omitempty"`
	ContentType          string                `json:"contentType"`
	FileID               string                `json:"fileId"`
	FileInfo             map[string]string     `json:"fileInfo"`
	FileName             string                `json:"fileName"`
	FileRetention        *ObjectLock           `json:"fileRetention,omitempty"`
	LegalHold            *ObjectLock           `json:"legalHold,omitempty"`
	ReplicationStatus    string                `json:"replicationStatus,omitempty"`
	ServerSideEncryption *ServerSideEncryption `json:"serverSideEncryption,omitempty"`
	UploadTimestamp      int64                 `json:"uploadTimestamp"`
}

// UploadedAt converts the millisecond upload timestamp.
func (f *File) UploadedAt() time.Time {
	return time.UnixMilli(f.UploadTimestamp)
}

// FilePart acknowledges one uploaded part of a large file.
type FilePart struct {
	FileID               string                `json:"fileId"`
	PartNumber           int                   `json:"partNumber"`
	ContentLength        int64                 `json:"contentLength"`
	ContentSHA1          string                `json:"contentSha1"`
	ContentMD5           string                `json:"contentMd5,omitempty"`
	ServerSideEncryption *ServerSideEncryption `json:"serverSideEncryption,omitempty"`
	UploadTimestamp      int64                 `json:"uploadTimestamp"`
}

type ListFileNamesRequest struct {
	BucketID      string `json:"bucketId"`
	StartFileName string `json:"startFileName,omitempty"`
	MaxFileCount  int    `json:"maxFileCount,omitempty"`
	Prefix        string `json:"prefix,omitempty"`
	Delimiter     string `json:"delimiter,omitempty"`
}

type ListFileNamesResponse struct {
	Files        []File  `json:"files"`
	NextFileName *string `json:"nextFileName"`
}

type getUploadURLRequest struct {
	BucketID string `json:"bucketId"`
}

// UploadURL is a short-lived endpoint plus token for b2_upload_file.
type UploadURL struct {
	BucketID           string `json:"bucketId"`
	UploadURL          string `json:"uploadUrl"`
	AuthorizationToken string `json:"authorizationToken"`
}

// UploadPartURL is a short-lived endpoint plus token for b2_upload_part.
type UploadPartURL struct {
	FileID             string `json:"fileId"`
	UploadURL          string `json:"uploadUrl"`
	AuthorizationToken string `json:"authorizationToken"`
}

type StartLargeFileRequest struct {
	BucketID             string                `json:"bucketId"`
	FileName             string                `json:"fileName"`
	ContentType          string                `json:"contentType"`
	FileInfo             map[string]string     `json:"fileInfo,omitempty"`
	FileRetention        *RetentionLock        `json:"fileRetention,omitempty"`
	LegalHold            LegalHold             `json:"legalHold,omitempty"`
	ServerSideEncryption *ServerSideEncryption `json:"serverSideEncryption,omitempty"`
}

type finishLargeFileRequest struct {
	FileID        string   `json:"fileId"`
	PartSHA1Array []string `json:"partSha1Array"`
}

type cancelLargeFileRequest struct {
	FileID string `json:"fileId"`
}

type CancelledFile struct {
	FileID    string `json:"fileId"`
	AccountID string `json:"accountId"`
	BucketID  string `json:"bucketId"`
	FileName  string `json:"fileName"`
}

type RetentionMode string

const (
	RetentionGovernance RetentionMode = "governance"
	RetentionCompliance RetentionMode = "compliance"
)

type LegalHold string

const (
	LegalHoldOn  LegalHold = "on"
	LegalHoldOff LegalHold = "off"
)

type UpdateFileRetentionRequest struct {
	FileName         string        `json:"fileName"`
	FileID           string        `json:"fileId"`
	FileRetention    RetentionLock `json:"fileRetention"`
	BypassGovernance bool          `json:"bypassGovernance,omitempty"`
}

type UpdateFileRetentionResponse struct {
	FileName      string        `json:"fileName"`
	FileID        string        `json:"fileId"`
	FileRetention RetentionLock `json:"fileRetention"`
}
