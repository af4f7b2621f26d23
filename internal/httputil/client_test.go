package httputil

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var _ HTTPClient = (*StandardClient)(nil)
var _ HTTPClient = (*MockHTTPClient)(nil)

func TestNewStandardClient(t *testing.T) {
	custom := &http.Client{}
	if client := NewStandardClient(custom); client.Client != custom {
		t.Error("custom client should be wrapped as-is")
	}
	if client := NewStandardClient(nil); client.Client != http.DefaultClient {
		t.Error("nil should fall back to http.DefaultClient")
	}
}

func TestStandardClientPost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"camera_id":"cam-1"}` {
			t.Errorf("body = %q", string(body))
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := NewStandardClient(nil)
	resp, err := client.Post(server.URL+"/api/samples", "application/json", strings.NewReader(`{"camera_id":"cam-1"}`))
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}
}

func TestStandardClientDo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s, want DELETE", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	req, err := http.NewRequest(http.MethodDelete, server.URL+"/api/alerts/a-1", nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}

	resp, err := NewStandardClient(nil).Do(req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
}

func TestMockReplaysResponsesInOrder(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusAccepted, "first").AddResponse(http.StatusTooManyRequests, "second")

	resp1, err := mock.Post("http://collector/api/samples", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("first Post failed: %v", err)
	}
	body1, _ := io.ReadAll(resp1.Body)
	resp1.Body.Close()
	if resp1.StatusCode != http.StatusAccepted || string(body1) != "first" {
		t.Errorf("first response = %d %q, want 202 first", resp1.StatusCode, body1)
	}

	resp2, err := mock.Post("http://collector/api/samples", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("second Post failed: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusTooManyRequests {
		t.Errorf("second response status = %d, want 429", resp2.StatusCode)
	}

	// Exhausted queue falls back to an empty 200.
	resp3, err := mock.Post("http://collector/api/samples", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("third Post failed: %v", err)
	}
	resp3.Body.Close()
	if resp3.StatusCode != http.StatusOK {
		t.Errorf("drained mock status = %d, want 200", resp3.StatusCode)
	}
}

func TestMockQueuedError(t *testing.T) {
	wantErr := errors.New("connection refused")
	mock := NewMockHTTPClient()
	mock.AddErrorResponse(wantErr)

	if _, err := mock.Post("http://collector/api/samples", "application/json", nil); !errors.Is(err, wantErr) {
		t.Errorf("error = %v, want %v", err, wantErr)
	}
}

func TestMockRecordsRequests(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.Post("http://collector/api/samples", "application/json", strings.NewReader("a"))
	mock.Post("http://collector/api/cameras", "application/json", strings.NewReader("b"))

	if mock.RequestCount() != 2 {
		t.Fatalf("RequestCount() = %d, want 2", mock.RequestCount())
	}

	first := mock.GetRequest(0)
	if first == nil || !strings.HasSuffix(first.URL.Path, "/samples") {
		t.Errorf("GetRequest(0) = %v, want the samples request", first)
	}
	if ct := first.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("recorded Content-Type = %q, want application/json", ct)
	}

	if mock.GetRequest(2) != nil {
		t.Error("GetRequest past the end should return nil")
	}
	if mock.GetRequest(-1) != nil {
		t.Error("GetRequest with a negative index should return nil")
	}
}
