// Package b2 is a typed client for the Backblaze B2 native API (v2).
package b2

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

const (
	// DefaultAuthURL is the account authorization host.
	DefaultAuthURL = "https://api.backblazeb2.com"

	apiPrefix = "/b2api/v2/"
)

// Client issues B2 API calls with the session obtained from Authorize. The
// session is read under a shared lock for every call and swapped under an
// exclusive lock on re-authorization; the lock is never held across a
// network round trip.
type Client struct {
	httpClient *http.Client
	authURL    string

	mu      sync.RWMutex
	session *Session
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithAuthURL overrides the authorization host, mostly for tests.
func WithAuthURL(u string) ClientOption {
	return func(c *Client) {
		if u != "" {
			c.authURL = strings.TrimSuffix(u, "/")
		}
	}
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		authURL:    DefaultAuthURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session returns a copy of the current session, or nil before Authorize.
func (c *Client) Session() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.clone()
}

// Authorize calls b2_authorize_account and stores the resulting session.
func (c *Client) Authorize(ctx context.Context, keyID, applicationKey string) (*Session, error) {
	const op = "authorizeAccount"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.authURL+apiPrefix+"b2_authorize_account", nil)
	if err != nil {
		return nil, &SendError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", basicAuth(keyID, applicationKey))

	session := &Session{}
	if err := c.do(op, req, session); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	return session.clone(), nil
}

// Reauthorize fetches a fresh session and swaps it in. On failure the
// previous session stays in place.
func (c *Client) Reauthorize(ctx context.Context, keyID, applicationKey string) error {
	_, err := c.Authorize(ctx, keyID, applicationKey)
	return err
}

func (c *Client) ListFileNames(ctx context.Context, in *ListFileNamesRequest) (*ListFileNamesResponse, error) {
	out := &ListFileNamesResponse{}
	if err := c.apiCall(ctx, "listFileNames", http.MethodPost, "b2_list_file_names", nil, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetUploadURL(ctx context.Context, bucketID string) (*UploadURL, error) {
	out := &UploadURL{}
	body := &getUploadURLRequest{BucketID: bucketID}
	if err := c.apiCall(ctx, "getUploadUrl", http.MethodPost, "b2_get_upload_url", nil, body, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) StartLargeFile(ctx context.Context, in *StartLargeFileRequest) (*File, error) {
	out := &File{}
	if err := c.apiCall(ctx, "startLargeFile", http.MethodPost, "b2_start_large_file", nil, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetUploadPartURL(ctx context.Context, fileID string) (*UploadPartURL, error) {
	out := &UploadPartURL{}
	query := url.Values{"fileId": []string{fileID}}
	if err := c.apiCall(ctx, "getUploadPartUrl", http.MethodGet, "b2_get_upload_part_url", query, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) FinishLargeFile(ctx context.Context, fileID string, partSHA1s []string) (*File, error) {
	out := &File{}
	body := &finishLargeFileRequest{FileID: fileID, PartSHA1Array: partSHA1s}
	if err := c.apiCall(ctx, "finishLargeFile", http.MethodPost, "b2_finish_large_file", nil, body, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CancelLargeFile(ctx context.Context, fileID string) (*CancelledFile, error) {
	out := &CancelledFile{}
	body := &cancelLargeFileRequest{FileID: fileID}
	if err := c.apiCall(ctx, "cancelLargeFile", http.MethodPost, "b2_cancel_large_file", nil, body, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UpdateFileRetention(ctx context.Context, in *UpdateFileRetentionRequest) (*UpdateFileRetentionResponse, error) {
	out := &UpdateFileRetentionResponse{}
	if err := c.apiCall(ctx, "updateFileRetention", http.MethodPost, "b2_update_file_retention", nil, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// UploadFile streams body to an upload URL obtained from GetUploadURL. The
// Authorization header defaults to the URL's token; info becomes
// X-Bz-Info-* headers.
func (c *Client) UploadFile(ctx context.Context, target *UploadURL, headers UploadFileHeaders, info map[string]string, body io.Reader) (*File, error) {
	const op = "uploadFile"

	if headers.Authorization == "" {
		headers.Authorization = target.AuthorizationToken
	}

	req, err := newUploadRequest(ctx, target.UploadURL, headers.ContentLength, body)
	if err != nil {
		return nil, &SendError{Op: op, Err: err}
	}
	mergeHeader(req.Header, InfoHeaders(info))
	mergeHeader(req.Header, headers.Header())

	out := &File{}
	if err := c.do(op, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// UploadPart streams one part to a URL obtained from GetUploadPartURL.
func (c *Client) UploadPart(ctx context.Context, target *UploadPartURL, headers UploadPartHeaders, body io.Reader) (*FilePart, error) {
	const op = "uploadPart"

	if headers.Authorization == "" {
		headers.Authorization = target.AuthorizationToken
	}

	req, err := newUploadRequest(ctx, target.UploadURL, headers.ContentLength, body)
	if err != nil {
		return nil, &SendError{Op: op, Err: err}
	}
	mergeHeader(req.Header, headers.Header())

	out := &FilePart{}
	if err := c.do(op, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) apiCall(ctx context.Context, op, method, apiName string, query url.Values, in, out any) error {
	c.mu.RLock()
	if c.session == nil {
		c.mu.RUnlock()
		return ErrNotAuthorized
	}
	apiURL, token := c.session.APIURL, c.session.AuthorizationToken
	c.mu.RUnlock()

	endpoint := strings.TrimSuffix(apiURL, "/") + apiPrefix + apiName
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return &SendError{Op: op, Err: err}
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return &SendError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(op, req, out)
}

func (c *Client) do(op string, req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &SendError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &SendError{Op: op, Err: err}
	}

	if resp.StatusCode >= 400 {
		reqErr := &RequestError{}
		if jsonErr := json.Unmarshal(data, reqErr); jsonErr != nil {
			reqErr = &RequestError{}
		}
		reqErr.Op = op
		reqErr.Status = resp.StatusCode
		return reqErr
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &DecodeError{Op: op, Err: err}
	}
	return nil
}

func newUploadRequest(ctx context.Context, uploadURL string, size int64, body io.Reader) (*http.Request, error) {
	if body == nil || size == 0 {
		body = http.NoBody
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, body)
	if err != nil {
		return nil, err
	}
	req.ContentLength = size
	return req, nil
}

func mergeHeader(dst, src http.Header) {
	for key, values := range src {
		for _, v := range values {
			dst.Set(key, v)
		}
	}
}

// basicAuth pads the encoding as RFC 7617 does; the service accepts padded
// and unpadded credentials alike.
func basicAuth(keyID, applicationKey string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(keyID+":"+applicationKey))
}
