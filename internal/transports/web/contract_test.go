package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPContractHealth(t *testing.T) {
	adapter := newTestAdapter(t, &fakeExecutor{}, Config{})

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rr := httptest.NewRecorder()
	adapter.routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID header")
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("status field = %v, want ok", body["status"])
	}
}

func TestHTTPContractExecuteSuccess(t *testing.T) {
	adapter := newTestAdapter(t, &fakeExecutor{}, Config{})

	rr := execute(adapter, `{"command":"web3.version"}`, "contract-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["request_id"] != "contract-1" {
		t.Fatalf("request_id = %v, want contract-1", resp["request_id"])
	}
	for _, key := range []string{"output", "exit"} {
		if _, ok := resp[key]; !ok {
			t.Fatalf("missing %s", key)
		}
	}
}

func TestHTTPContractExecuteUnauthorized(t *testing.T) {
	adapter := newTestAdapter(t, &fakeExecutor{}, Config{})

	body := bytes.NewBufferString(`{"command":"1+1"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/console/execute", body)
	rr := httptest.NewRecorder()
	adapter.routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := resp["request_id"]; !ok {
		t.Fatal("missing request_id")
	}
	if resp["error_code"] != "auth_required" {
		t.Fatalf("error_code = %v, want auth_required", resp["error_code"])
	}
}

func TestHTTPContractHistory(t *testing.T) {
	adapter := newTestAdapter(t, &fakeExecutor{}, Config{})

	req := httptest.NewRequest(http.MethodGet, "/v1/history", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rr := httptest.NewRecorder()
	adapter.routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := resp["request_id"]; !ok {
		t.Fatal("missing request_id")
	}
	if _, ok := resp["items"]; !ok {
		t.Fatal("missing items")
	}
}

func TestHTTPContractUnknownRoute(t *testing.T) {
	adapter := newTestAdapter(t, &fakeExecutor{}, Config{})

	req := httptest.NewRequest(http.MethodGet, "/v1/metrics/latest", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rr := httptest.NewRecorder()
	adapter.routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}
