package logging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestTransportSetsRequestID(t *testing.T) {
	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(RequestIDHeader)
	}))
	defer ts.Close()

	core, logs := observer.New(zap.DebugLevel)
	globalLogger = zap.New(core)
	defer func() { globalLogger = nil }()

	client := &http.Client{Transport: Transport(nil)}
	resp, err := client.Get(ts.URL + "/api/files")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if got == "" {
		t.Fatal("expected X-Request-ID header on outgoing request")
	}

	completed := logs.FilterMessage("request completed").All()
	if len(completed) != 1 {
		t.Fatalf("expected 1 completion log, got %d", len(completed))
	}
	fields := completed[0].ContextMap()
	if fields["request_id"] != got {
		t.Errorf("expected request_id %q in log, got %v", got, fields["request_id"])
	}
	if fields["status"] != int64(http.StatusOK) {
		t.Errorf("expected status 200 in log, got %v", fields["status"])
	}
}

func TestTransportKeepsCallerRequestID(t *testing.T) {
	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(RequestIDHeader)
	}))
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodGet, ts.URL, nil)
	req.Header.Set(RequestIDHeader, "fixed-id")
	resp, err := (&http.Client{Transport: Transport(nil)}).Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if got != "fixed-id" {
		t.Errorf("expected fixed-id, got %q", got)
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := WithRequestID(context.Background(), "abc")
	if GetRequestID(ctx) != "abc" {
		t.Errorf("expected abc, got %q", GetRequestID(ctx))
	}
	if GetRequestID(context.Background()) != "" {
		t.Error("expected empty request ID for bare context")
	}
}

func TestSetLevel(t *testing.T) {
	SetLevel("debug")
	if !globalLevel.Enabled(zap.DebugLevel) {
		t.Error("expected debug enabled")
	}
	SetLevel("bogus")
	if !globalLevel.Enabled(zap.DebugLevel) {
		t.Error("invalid level must not change the current level")
	}
	SetLevel("info")
}
