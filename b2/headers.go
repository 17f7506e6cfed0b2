package b2

import (
	"net/http"
	"strconv"
	"strings"
)

// InfoHeaderPrefix prefixes every custom file info header.
const InfoHeaderPrefix = "X-Bz-Info-"

// AutoContentType asks the service to detect the content type from the name.
const AutoContentType = "b2/x-auto"

// UploadFileHeaders are the request headers of b2_upload_file. Zero values
// are not sent.
type UploadFileHeaders struct {
	Authorization                 string
	FileName                      string
	ContentType                   string
	ContentLength                 int64
	ContentSHA1                   string
	SrcLastModifiedMillis         int64
	ContentDisposition            string
	ContentLanguage               string
	Expires                       string
	CacheControl                  string
	ContentEncoding               string
	CustomUploadTimestamp         int64
	LegalHold                     LegalHold
	RetentionMode                 RetentionMode
	RetentionRetainUntilTimestamp int64
	ServerSideEncryption          string
	SSECustomerAlgorithm          string
	SSECustomerKey                string
	SSECustomerKeyMD5             string
}

// UploadPartHeaders are the request headers of b2_upload_part.
type UploadPartHeaders struct {
	Authorization        string
	PartNumber           int
	ContentLength        int64
	ContentSHA1          string
	SSECustomerAlgorithm string
	SSECustomerKey       string
	SSECustomerKeyMD5    string
}

type headerField[T any] struct {
	name  string
	value func(*T) string
}

var uploadFileHeaderTable = []headerField[UploadFileHeaders]{
	{"Authorization", func(h *UploadFileHeaders) string { return h.Authorization }},
	{"X-Bz-File-Name", func(h *UploadFileHeaders) string { return EncodeName(h.FileName) }},
	{"Content-Type", func(h *UploadFileHeaders) string { return h.ContentType }},
	{"Content-Length", func(h *UploadFileHeaders) string { return formatInt(h.ContentLength) }},
	{"X-Bz-Content-Sha1", func(h *UploadFileHeaders) string { return h.ContentSHA1 }},
	{"X-Bz-Info-src_last_modified_millis", func(h *UploadFileHeaders) string { return formatInt(h.SrcLastModifiedMillis) }},
	{"X-Bz-Info-b2-content-disposition", func(h *UploadFileHeaders) string { return h.ContentDisposition }},
	{"X-Bz-Info-b2-content-language", func(h *UploadFileHeaders) string { return h.ContentLanguage }},
	{"X-Bz-Info-b2-expires", func(h *UploadFileHeaders) string { return h.Expires }},
	{"X-Bz-Info-b2-cache-control", func(h *UploadFileHeaders) string { return h.CacheControl }},
	{"X-Bz-Info-b2-content-encoding", func(h *UploadFileHeaders) string { return h.ContentEncoding }},
	{"X-Bz-Custom-Upload-Timestamp", func(h *UploadFileHeaders) string { return formatInt(h.CustomUploadTimestamp) }},
	{"X-Bz-File-Legal-Hold", func(h *UploadFileHeaders) string { return string(h.LegalHold) }},
	{"X-Bz-File-Retention-Mode", func(h *UploadFileHeaders) string { return string(h.RetentionMode) }},
	{"X-Bz-File-Retention-Retain-Until-Timestamp", func(h *UploadFileHeaders) string { return formatInt(h.RetentionRetainUntilTimestamp) }},
	{"X-Bz-Server-Side-Encryption", func(h *UploadFileHeaders) string { return h.ServerSideEncryption }},
	{"X-Bz-Server-Side-Encryption-Customer-Algorithm", func(h *UploadFileHeaders) string { return h.SSECustomerAlgorithm }},
	{"X-Bz-Server-Side-Encryption-Customer-Key", func(h *UploadFileHeaders) string { return h.SSECustomerKey }},
	{"X-Bz-Server-Side-Encryption-Customer-Key-Md5", func(h *UploadFileHeaders) string { return h.SSECustomerKeyMD5 }},
}

var uploadPartHeaderTable = []headerField[UploadPartHeaders]{
	{"Authorization", func(h *UploadPartHeaders) string { return h.Authorization }},
	{"X-Bz-Part-Number", func(h *UploadPartHeaders) string { return formatInt(int64(h.PartNumber)) }},
	{"Content-Length", func(h *UploadPartHeaders) string { return formatInt(h.ContentLength) }},
	{"X-Bz-Content-Sha1", func(h *UploadPartHeaders) string { return h.ContentSHA1 }},
	{"X-Bz-Server-Side-Encryption-Customer-Algorithm", func(h *UploadPartHeaders) string { return h.SSECustomerAlgorithm }},
	{"X-Bz-Server-Side-Encryption-Customer-Key", func(h *UploadPartHeaders) string { return h.SSECustomerKey }},
	{"X-Bz-Server-Side-Encryption-Customer-Key-Md5", func(h *UploadPartHeaders) string { return h.SSECustomerKeyMD5 }},
}

// Header renders h through the upload file table.
func (h UploadFileHeaders) Header() http.Header {
	return buildHeader(uploadFileHeaderTable, &h)
}

// Header renders h through the upload part table.
func (h UploadPartHeaders) Header() http.Header {
	return buildHeader(uploadPartHeaderTable, &h)
}

func buildHeader[T any](table []headerField[T], src *T) http.Header {
	header := make(http.Header, len(table))
	for _, field := range table {
		if v := field.value(src); v != "" {
			header.Set(field.name, v)
		}
	}
	return header
}

// InfoHeaders maps custom file info to X-Bz-Info-* headers with percent
// encoded values. Empty values are dropped.
func InfoHeaders(info map[string]string) http.Header {
	header := make(http.Header, len(info))
	for key, value := range info {
		if key == "" || value == "" {
			continue
		}
		header.Set(InfoHeaderPrefix+key, EncodeName(value))
	}
	return header
}

func formatInt(v int64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatInt(v, 10)
}

// EncodeName percent-encodes s the way B2 expects for file names and info
// values: unreserved characters and "/" pass through, everything else is
// encoded byte by byte as UTF-8.
func EncodeName(s string) string {
	const hex = "0123456789ABCDEF"

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if shouldPassThrough(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func shouldPassThrough(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '.', c == '_', c == '~', c == '/':
		return true
	}
	return false
}
