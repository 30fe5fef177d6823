// Package client is a typed wrapper around the file store HTTP API.
//
// Every operation is a plain request/response: the client keeps no listing
// state. Only list, stat, download and delete may be retried, and only on
// transport-level failures when the configured RetryConfig allows it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fruitsalade/filebrowser/pkg/models"
	"github.com/fruitsalade/filebrowser/pkg/protocol"
	"github.com/fruitsalade/filebrowser/pkg/retry"
)

// maxErrorBody bounds how much of an error response body is read.
const maxErrorBody = 64 << 10

// Client talks to the file store API at a fixed base URL.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	retryConfig retry.Config

	mu        sync.RWMutex
	authToken string
	username  string
	password  string
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	// Timeout bounds the wait for response headers. Bodies (uploads and
	// download streams) are not subject to it.
	Timeout     time.Duration
	RetryConfig retry.Config
	AuthToken   string
	Username    string
	Password    string
	// Transport is the base round tripper; a tuned *http.Transport is used
	// when nil.
	Transport http.RoundTripper
	// Middleware wraps the transport, innermost first.
	Middleware []func(http.RoundTripper) http.RoundTripper
}

// New creates a new client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = retry.None()
	}

	var rt http.RoundTripper = cfg.Transport
	if rt == nil {
		rt = NewTransport(cfg.Timeout)
	}
	for _, mw := range cfg.Middleware {
		rt = mw(rt)
	}

	return &Client{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient:  &http.Client{Transport: rt},
		retryConfig: cfg.RetryConfig,
		authToken:   cfg.AuthToken,
		username:    cfg.Username,
		password:    cfg.Password,
	}
}

// NewTransport returns the default transport with the given header timeout.
func NewTransport(headerTimeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: headerTimeout,
	}
}

// BaseURL returns the configured base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetAuthToken sets the bearer token for requests.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authToken = token
}

// SetBasicAuth sets credentials for HTTP Basic authentication. Basic
// credentials take precedence over a bearer token.
func (c *Client) SetBasicAuth(username, password string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.username = username
	c.password = password
}

func (c *Client) applyAuth(req *http.Request) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch {
	case c.username != "":
		req.SetBasicAuth(c.username, c.password)
	case c.authToken != "":
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	u := c.baseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	c.applyAuth(req)
	return req, nil
}

// do sends req and converts transport failures and non-2xx statuses into
// RemoteError. The caller owns the body of a successful response.
func (c *Client) do(req *http.Request, op, path, fallback string) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, &RemoteError{Op: op, Path: path, Message: err.Error(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = fallback
		}
		return nil, &RemoteError{Op: op, Path: path, StatusCode: resp.StatusCode, Message: msg}
	}
	return resp, nil
}

// retryableTransport marks errors that never reached the server as
// retryable. Cancellation is never retried.
func retryableTransport(ctx context.Context, err error) error {
	if re, ok := AsRemote(err); ok && re.StatusCode == 0 && ctx.Err() == nil {
		return retry.Retryable(err)
	}
	return err
}

func pathQuery(path string) url.Values {
	return url.Values{protocol.FieldPath: []string{path}}
}

// List returns the direct children of path. The empty path is the root.
func (c *Client) List(ctx context.Context, path string) ([]models.FileEntry, error) {
	const op = "list"
	return retry.DoWithResult(ctx, c.retryConfig, func() ([]models.FileEntry, error) {
		var query url.Values
		if path != "" {
			query = pathQuery(path)
		}
		req, err := c.newRequest(ctx, http.MethodGet, protocol.PathFiles, query, nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.do(req, op, path, defaultErrorMessage)
		if err != nil {
			return nil, retryableTransport(ctx, err)
		}
		defer resp.Body.Close()

		var entries []models.FileEntry
		if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
			return nil, &ParseError{Op: op, Path: path, Err: err}
		}
		if entries == nil {
			entries = []models.FileEntry{}
		}
		return entries, nil
	})
}

// Stat fetches metadata for a single entry.
func (c *Client) Stat(ctx context.Context, path string) (*models.FileEntry, error) {
	const op = "stat"
	return retry.DoWithResult(ctx, c.retryConfig, func() (*models.FileEntry, error) {
		req, err := c.newRequest(ctx, http.MethodGet, protocol.PathFileInfo, pathQuery(path), nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.do(req, op, path, defaultErrorMessage)
		if err != nil {
			return nil, retryableTransport(ctx, err)
		}
		defer resp.Body.Close()

		var entry models.FileEntry
		if err := json.NewDecoder(resp.Body).Decode(&entry); err != nil {
			return nil, &ParseError{Op: op, Path: path, Err: err}
		}
		return &entry, nil
	})
}

// Download opens a byte stream for the file at path. The returned size is
// -1 when the server does not send a Content-Length. The caller must close
// the reader.
func (c *Client) Download(ctx context.Context, path string) (io.ReadCloser, int64, error) {
	const op = "download"
	type stream struct {
		body io.ReadCloser
		size int64
	}
	s, err := retry.DoWithResult(ctx, c.retryConfig, func() (stream, error) {
		req, err := c.newRequest(ctx, http.MethodGet, protocol.PathDownload, pathQuery(path), nil)
		if err != nil {
			return stream{}, err
		}
		resp, err := c.do(req, op, path, downloadErrorMessage)
		if err != nil {
			return stream{}, retryableTransport(ctx, err)
		}
		return stream{body: resp.Body, size: resp.ContentLength}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	return s.body, s.size, nil
}

// CreateDirectory creates a directory at path. It is never retried.
func (c *Client) CreateDirectory(ctx context.Context, path string) error {
	return c.sendPath(ctx, "mkdir", http.MethodPost, protocol.PathDirectories, path)
}

// Delete removes the file or directory at path. Deleting is idempotent, so
// it is retried like the reads.
func (c *Client) Delete(ctx context.Context, path string) error {
	return retry.Do(ctx, c.retryConfig, func() error {
		return retryableTransport(ctx, c.sendPath(ctx, "delete", http.MethodDelete, protocol.PathFiles, path))
	})
}

func (c *Client) sendPath(ctx context.Context, op, method, endpoint, path string) error {
	body, err := json.Marshal(protocol.PathRequest{Path: path})
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, method, endpoint, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req, op, path, defaultErrorMessage)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
	return nil
}

// Upload sends file into the directory dir (joined with file.Dir) as a
// multipart body. progress, if non-nil, receives bytes-sent updates. Uploads
// are never retried.
func (c *Client) Upload(ctx context.Context, file models.UploadFile, dir string, progress ProgressFunc) (*protocol.UploadResponse, error) {
	const op = "upload"
	dest := models.JoinPath(dir, file.Dir)
	target := models.JoinPath(dest, file.Name)

	if file.Open == nil {
		return nil, fmt.Errorf("upload %s: no content", target)
	}
	content, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", file.Name, err)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer content.Close()
		pw.CloseWithError(writeUploadBody(mw, file, dest, newProgressReader(content, file.Size, progress)))
	}()

	req, err := c.newRequest(ctx, http.MethodPost, protocol.PathUpload, nil, pr)
	if err != nil {
		pr.CloseWithError(err)
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.do(req, op, target, defaultErrorMessage)
	if err != nil {
		pr.CloseWithError(err)
		return nil, err
	}
	defer resp.Body.Close()

	var result protocol.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ParseError{Op: op, Path: target, Err: err}
	}
	return &result, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// writeUploadBody writes the path field before the file part: the server
// applies the destination only to file parts that follow it.
func writeUploadBody(mw *multipart.Writer, file models.UploadFile, dest string, content io.Reader) error {
	if dest != "" {
		if err := mw.WriteField(protocol.FieldPath, dest); err != nil {
			return err
		}
	}

	contentType := file.Type
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		protocol.FieldFile, quoteEscaper.Replace(file.Name)))
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, content); err != nil {
		return err
	}
	return mw.Close()
}
