package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fruitsalade/filebrowser/pkg/models"
	"github.com/fruitsalade/filebrowser/pkg/protocol"
	"github.com/fruitsalade/filebrowser/pkg/retry"
)

func testClient(handler http.Handler) (*Client, *httptest.Server) {
	ts := httptest.NewServer(handler)
	c := New(Config{BaseURL: ts.URL})
	return c, ts
}

func uploadFile(name, typ, content string) models.UploadFile {
	return models.UploadFile{
		Name: name,
		Size: int64(len(content)),
		Type: typ,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		},
	}
}

func TestList_Root(t *testing.T) {
	modified := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var gotQuery string
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/files" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]models.FileEntry{
			{Name: "docs", Path: "docs", IsDir: true, Modified: modified},
			{Name: "a.txt", Path: "a.txt", Size: 12, Modified: modified, MimeType: "text/plain"},
		})
	}))
	defer ts.Close()

	entries, err := c.List(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotQuery != "" {
		t.Errorf("expected no query for root, got %q", gotQuery)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Path != "docs" || !entries[0].IsDir {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].MimeType != "text/plain" || !entries[1].Modified.Equal(modified) {
		t.Errorf("unexpected second entry: %+v", entries[1])
	}
}

func TestList_PathQueryAndNullBody(t *testing.T) {
	var gotPath string
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Query().Get("path")
		w.Write([]byte("null"))
	}))
	defer ts.Close()

	entries, err := c.List(context.Background(), "docs/sub dir")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "docs/sub dir" {
		t.Errorf("expected path query docs/sub dir, got %q", gotPath)
	}
	if entries == nil || len(entries) != 0 {
		t.Errorf("expected empty non-nil listing, got %#v", entries)
	}
}

func TestList_ServerErrorVerbatim(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "directory not found", http.StatusNotFound)
	}))
	defer ts.Close()

	_, err := c.List(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "directory not found" {
		t.Errorf("expected verbatim server text, got %q", err.Error())
	}
	re, ok := AsRemote(err)
	if !ok {
		t.Fatalf("expected RemoteError, got %T", err)
	}
	if re.StatusCode != http.StatusNotFound || re.Op != "list" || re.Path != "missing" {
		t.Errorf("unexpected RemoteError fields: %+v", re)
	}
}

func TestList_EmptyErrorBody(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	_, err := c.List(context.Background(), "")
	if err == nil || err.Error() != "An error occurred" {
		t.Fatalf("expected fallback message, got %v", err)
	}
}

func TestList_ParseError(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer ts.Close()

	_, err := c.List(context.Background(), "")
	if _, ok := AsParse(err); !ok {
		t.Fatalf("expected ParseError, got %T: %v", err, err)
	}
	if err.Error() != "Failed to parse response" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestList_StatusErrorsNeverRetried(t *testing.T) {
	var attempts atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer ts.Close()

	c := New(Config{
		BaseURL:     ts.URL,
		RetryConfig: retry.Config{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: time.Millisecond},
	})
	if _, err := c.List(context.Background(), ""); err == nil {
		t.Fatal("expected error")
	}
	if attempts.Load() != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", attempts.Load())
	}
}

func TestList_TransportErrorRetriedWhenEnabled(t *testing.T) {
	var attempts atomic.Int32
	failing := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		attempts.Add(1)
		return nil, errors.New("connection refused")
	})

	c := New(Config{
		BaseURL:     "http://store.invalid",
		Transport:   failing,
		RetryConfig: retry.Config{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: time.Millisecond},
	})
	_, err := c.List(context.Background(), "")
	re, ok := AsRemote(err)
	if !ok {
		t.Fatalf("expected RemoteError, got %T: %v", err, err)
	}
	if re.StatusCode != 0 {
		t.Errorf("expected status 0 for transport failure, got %d", re.StatusCode)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestStat(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/files/info" || r.URL.Query().Get("path") != "docs/a.txt" {
			t.Errorf("unexpected request: %s", r.URL)
		}
		json.NewEncoder(w).Encode(models.FileEntry{Name: "a.txt", Path: "docs/a.txt", Size: 120, MimeType: "text/plain"})
	}))
	defer ts.Close()

	entry, err := c.Stat(context.Background(), "docs/a.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Size != 120 || entry.MimeType != "text/plain" {
		t.Errorf("unexpected entry: %+v", entry)
	}
}

func TestDownload(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/files/download" || r.URL.Query().Get("path") != "docs/a.txt" {
			t.Errorf("unexpected request: %s", r.URL)
		}
		w.Write([]byte("hello"))
	}))
	defer ts.Close()

	rc, size, err := c.Download(context.Background(), "docs/a.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "hello" || size != 5 {
		t.Errorf("got %q (size %d)", data, size)
	}
}

func TestDownload_NotFound(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	_, _, err := c.Download(context.Background(), "nope")
	if err == nil || err.Error() != "Failed to download file" {
		t.Fatalf("expected download failure message, got %v", err)
	}
}

func TestCreateDirectoryAndDelete(t *testing.T) {
	type call struct {
		method, path, contentType string
		body                      protocol.PathRequest
	}
	var calls []call
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body protocol.PathRequest
		json.NewDecoder(r.Body).Decode(&body)
		calls = append(calls, call{r.Method, r.URL.Path, r.Header.Get("Content-Type"), body})
		w.Write([]byte("ignored"))
	}))
	defer ts.Close()

	if err := c.CreateDirectory(context.Background(), "docs/new"); err != nil {
		t.Fatalf("CreateDirectory: %v", err)
	}
	if err := c.Delete(context.Background(), "docs/a.txt"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	want := []call{
		{http.MethodPost, "/api/directories", "application/json", protocol.PathRequest{Path: "docs/new"}},
		{http.MethodDelete, "/api/files", "application/json", protocol.PathRequest{Path: "docs/a.txt"}},
	}
	if len(calls) != len(want) {
		t.Fatalf("expected %d calls, got %d", len(want), len(calls))
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, calls[i], want[i])
		}
	}
}

func TestCreateDirectory_AlreadyExistsNotRetried(t *testing.T) {
	var attempts atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "already exists", http.StatusConflict)
	}))
	defer ts.Close()

	c := New(Config{BaseURL: ts.URL, RetryConfig: retry.WithAttempts(3)})
	err := c.CreateDirectory(context.Background(), "docs")
	if err == nil || err.Error() != "already exists" {
		t.Fatalf("expected already exists, got %v", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts.Load())
	}
}

func TestDelete_RetriedOnTransportErrorButMkdirIsNot(t *testing.T) {
	var deletes, mkdirs atomic.Int32
	failing := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if r.Method == http.MethodDelete {
			deletes.Add(1)
		} else {
			mkdirs.Add(1)
		}
		return nil, errors.New("connection reset")
	})

	c := New(Config{
		BaseURL:     "http://store.invalid",
		Transport:   failing,
		RetryConfig: retry.Config{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: time.Millisecond},
	})
	if err := c.Delete(context.Background(), "docs/a.txt"); err == nil {
		t.Fatal("expected delete error")
	}
	if err := c.CreateDirectory(context.Background(), "docs"); err == nil {
		t.Fatal("expected mkdir error")
	}
	if deletes.Load() != 3 {
		t.Errorf("expected 3 delete attempts, got %d", deletes.Load())
	}
	if mkdirs.Load() != 1 {
		t.Errorf("expected 1 mkdir attempt, got %d", mkdirs.Load())
	}
}

func TestUpload_Multipart(t *testing.T) {
	var parts []string
	var gotName, gotType, gotContent, gotDest string
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/upload" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		mr, err := r.MultipartReader()
		if err != nil {
			t.Errorf("MultipartReader: %v", err)
			return
		}
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Errorf("NextPart: %v", err)
				return
			}
			parts = append(parts, p.FormName())
			data, _ := io.ReadAll(p)
			switch p.FormName() {
			case "path":
				gotDest = string(data)
			case "file":
				gotName = p.FileName()
				gotType = p.Header.Get("Content-Type")
				gotContent = string(data)
			}
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(protocol.UploadResponse{Path: gotDest + "/" + gotName, Size: int64(len(gotContent))})
	}))
	defer ts.Close()

	f := uploadFile("a.txt", "text/plain", "hello world")
	f.Dir = "sub"
	resp, err := c.Upload(context.Background(), f, "docs", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(parts) != 2 || parts[0] != "path" || parts[1] != "file" {
		t.Errorf("expected path field before file part, got %v", parts)
	}
	if gotDest != "docs/sub" {
		t.Errorf("expected destination docs/sub, got %q", gotDest)
	}
	if gotName != "a.txt" || gotType != "text/plain" || gotContent != "hello world" {
		t.Errorf("unexpected file part: name=%q type=%q content=%q", gotName, gotType, gotContent)
	}
	if resp.Path != "docs/sub/a.txt" || resp.Size != 11 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestUpload_RootOmitsPathField(t *testing.T) {
	var sawPath bool
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		_, sawPath = r.MultipartForm.Value["path"]
		json.NewEncoder(w).Encode(protocol.UploadResponse{Path: "a.txt", Size: 2})
	}))
	defer ts.Close()

	if _, err := c.Upload(context.Background(), uploadFile("a.txt", "text/plain", "hi"), "", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sawPath {
		t.Error("expected no path field for a root upload")
	}
}

func TestUpload_Progress(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		json.NewEncoder(w).Encode(protocol.UploadResponse{Path: "big.bin", Size: 1 << 16})
	}))
	defer ts.Close()

	content := bytes.Repeat([]byte("x"), 1<<16)
	f := models.UploadFile{
		Name: "big.bin",
		Size: int64(len(content)),
		Type: "application/zip",
		Open: func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(content)), nil },
	}

	var last, total atomic.Int64
	_, err := c.Upload(context.Background(), f, "", func(sent, tot int64) {
		last.Store(sent)
		total.Store(tot)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if last.Load() != int64(len(content)) || total.Load() != int64(len(content)) {
		t.Errorf("expected final progress %d/%d, got %d/%d", len(content), len(content), last.Load(), total.Load())
	}
}

func TestUpload_ServerRejects(t *testing.T) {
	var attempts atomic.Int32
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		io.Copy(io.Discard, r.Body)
		http.Error(w, "quota exceeded", http.StatusForbidden)
	}))
	defer ts.Close()

	_, err := c.Upload(context.Background(), uploadFile("a.txt", "text/plain", "hi"), "docs", nil)
	re, ok := AsRemote(err)
	if !ok {
		t.Fatalf("expected RemoteError, got %T: %v", err, err)
	}
	if re.Message != "quota exceeded" || re.Path != "docs/a.txt" {
		t.Errorf("unexpected RemoteError: %+v", re)
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts.Load())
	}
}

func TestUpload_OpenFailure(t *testing.T) {
	c := New(Config{BaseURL: "http://store.invalid"})
	f := models.UploadFile{
		Name: "gone.txt",
		Open: func() (io.ReadCloser, error) { return nil, errors.New("permission denied") },
	}
	if _, err := c.Upload(context.Background(), f, "", nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestAuthHeaders(t *testing.T) {
	var gotAuth string
	var gotUser, gotPass string
	var basic bool
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotUser, gotPass, basic = r.BasicAuth()
		w.Write([]byte("[]"))
	}))
	defer ts.Close()

	c.SetAuthToken("tok-123")
	c.List(context.Background(), "")
	if gotAuth != "Bearer tok-123" {
		t.Errorf("expected bearer token, got %q", gotAuth)
	}

	c.SetBasicAuth("admin", "secret")
	c.List(context.Background(), "")
	if !basic || gotUser != "admin" || gotPass != "secret" {
		t.Errorf("expected basic auth admin/secret, got %q/%q (ok=%v)", gotUser, gotPass, basic)
	}
}

func TestMiddlewareOrder(t *testing.T) {
	var order []string
	mark := func(name string) func(http.RoundTripper) http.RoundTripper {
		return func(next http.RoundTripper) http.RoundTripper {
			return roundTripFunc(func(r *http.Request) (*http.Response, error) {
				order = append(order, name)
				return next.RoundTrip(r)
			})
		}
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[]"))
	}))
	defer ts.Close()

	c := New(Config{BaseURL: ts.URL + "/", Middleware: []func(http.RoundTripper) http.RoundTripper{mark("inner"), mark("outer")}})
	if c.BaseURL() != ts.URL {
		t.Errorf("expected trailing slash trimmed, got %q", c.BaseURL())
	}
	if _, err := c.List(context.Background(), ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 2 || order[0] != "outer" || order[1] != "inner" {
		t.Errorf("unexpected middleware order %v", order)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
