package b2

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUploadFileHeadersOmitEmpty(t *testing.T) {
	h := UploadFileHeaders{
		Authorization: "tok",
		FileName:      "a/b.mp4",
		ContentType:   AutoContentType,
		ContentLength: 10,
		ContentSHA1:   "deadbeef",
		LegalHold:     LegalHoldOn,
	}.Header()

	assert.Equal(t, "tok", h.Get("Authorization"))
	assert.Equal(t, "a/b.mp4", h.Get("X-Bz-File-Name"))
	assert.Equal(t, "10", h.Get("Content-Length"))
	assert.Equal(t, "on", h.Get("X-Bz-File-Legal-Hold"))
	assert.Len(t, h, 6)

	_, present := h["X-Bz-Info-B2-Cache-Control"]
	assert.False(t, present)
}

func TestUploadPartHeaders(t *testing.T) {
	h := UploadPartHeaders{
		Authorization: "tok",
		PartNumber:    7,
		ContentLength: 1024,
		ContentSHA1:   "cafe",
	}.Header()

	assert.Equal(t, "7", h.Get("X-Bz-Part-Number"))
	assert.Equal(t, "1024", h.Get("Content-Length"))
	assert.Equal(t, "cafe", h.Get("X-Bz-Content-Sha1"))
	assert.Len(t, h, 4)
}

func TestInfoHeaders(t *testing.T) {
	h := InfoHeaders(map[string]string{
		"author": "Jane Doe",
		"skip":   "",
	})

	assert.Equal(t, "Jane%20Doe", h.Get("X-Bz-Info-author"))
	assert.Len(t, h, 1)
}

func TestEncodeName(t *testing.T) {
	cases := map[string]string{
		"plain.txt":          "plain.txt",
		"dir/sub/file.mp4":   "dir/sub/file.mp4",
		"with space":         "with%20space",
		"a+b":                "a%2Bb",
		"café":          "caf%C3%A9",
		"~under_score-dot.x": "~under_score-dot.x",
		"100%":               "100%25",
	}

	for in, want := range cases {
		assert.Equal(t, want, EncodeName(in), "input %q", in)
	}
}
