package web

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"embark/internal/console"
	"embark/internal/core"
	"embark/internal/plugins"
	"embark/internal/storage"
	"embark/internal/transports/common"
)

const testToken = "test-token"

type fakeExecutor struct {
	mu    sync.Mutex
	block bool
	calls []string
}

func (e *fakeExecutor) Execute(ctx context.Context, subjectID, text string) (console.Result, error) {
	e.mu.Lock()
	e.calls = append(e.calls, subjectID+"|"+text)
	e.mu.Unlock()
	if e.block {
		<-ctx.Done()
		return console.Result{}, ctx.Err()
	}
	switch text {
	case "1+1":
		return console.Result{Output: "2"}, nil
	case "quit":
		return console.Result{Exit: true}, nil
	case "boom":
		return console.Result{}, errors.New("boom is not defined")
	case "flood":
		return console.Result{}, common.ErrRateLimited
	case "secret":
		return console.Result{}, core.ErrForbidden
	}
	return console.Result{Output: text}, nil
}

type fakePlugins struct{}

func (fakePlugins) Infos() []plugins.Info {
	return []plugins.Info{{Name: "versions", Capabilities: []string{plugins.CapabilityConsole}}}
}

type fakeHistory struct {
	last    storage.HistoryQuery
	records []storage.CommandRecord
}

func (h *fakeHistory) QueryHistory(ctx context.Context, q storage.HistoryQuery) ([]storage.CommandRecord, error) {
	h.last = q
	return h.records, nil
}

func TestHealthEndpoint(t *testing.T) {
	adapter := newTestAdapter(t, &fakeExecutor{}, Config{})
	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rr := httptest.NewRecorder()
	adapter.routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID header")
	}
}

func TestProtectedEndpointRequiresSubject(t *testing.T) {
	adapter := newTestAdapter(t, &fakeExecutor{}, Config{})
	req := httptest.NewRequest(http.MethodGet, "/v1/history", nil)
	rr := httptest.NewRecorder()
	adapter.routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
	assertErrorHasRequestID(t, rr)
}

func TestUnknownTokenRejected(t *testing.T) {
	adapter := newTestAdapter(t, &fakeExecutor{}, Config{})
	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("Authorization", "Bearer other")
	rr := httptest.NewRecorder()
	adapter.routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestMeResolvesBearerSubject(t *testing.T) {
	adapter := newTestAdapter(t, &fakeExecutor{}, Config{})
	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rr := httptest.NewRecorder()
	adapter.routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["subject"] != "u1" || resp["auth_method"] != "bearer" {
		t.Fatalf("unexpected identity: %v", resp)
	}
}

func TestLegacyHeaderDeniedForUnknownSubject(t *testing.T) {
	adapter := newTestAdapter(t, &fakeExecutor{}, Config{AllowLegacySubjectHeader: true})
	req := httptest.NewRequest(http.MethodGet, "/v1/plugins", nil)
	req.Header.Set("X-Subject-ID", "intruder")
	rr := httptest.NewRecorder()
	adapter.routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}

func TestExecuteEndpoint(t *testing.T) {
	exec := &fakeExecutor{}
	adapter := newTestAdapter(t, exec, Config{})

	rr := execute(adapter, `{"command":"1+1"}`, "abc-123")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if got := rr.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Fatalf("expected request id header abc-123, got %q", got)
	}

	var resp struct {
		RequestID string `json:"request_id"`
		Output    string `json:"output"`
		Exit      bool   `json:"exit"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Output != "2" || resp.Exit {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.RequestID != "abc-123" {
		t.Fatalf("expected request id in body abc-123, got %q", resp.RequestID)
	}
	if len(exec.calls) != 1 || exec.calls[0] != "u1|1+1" {
		t.Fatalf("unexpected calls: %v", exec.calls)
	}
}

func TestExecuteReportsExit(t *testing.T) {
	adapter := newTestAdapter(t, &fakeExecutor{}, Config{})
	rr := execute(adapter, `{"command":"quit"}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["exit"] != true {
		t.Fatalf("expected exit flag, got %v", resp)
	}
}

func TestExecuteErrorMapping(t *testing.T) {
	cases := []struct {
		command string
		status  int
		code    string
	}{
		{"boom", http.StatusUnprocessableEntity, "command_failed"},
		{"flood", http.StatusTooManyRequests, "rate_limited"},
		{"secret", http.StatusForbidden, "access_denied"},
	}
	adapter := newTestAdapter(t, &fakeExecutor{}, Config{})
	for _, tc := range cases {
		rr := execute(adapter, `{"command":"`+tc.command+`"}`, "")
		if rr.Code != tc.status {
			t.Fatalf("%s: expected status %d, got %d", tc.command, tc.status, rr.Code)
		}
		var resp map[string]string
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp["error_code"] != tc.code {
			t.Fatalf("%s: expected error_code %s, got %s", tc.command, tc.code, resp["error_code"])
		}
	}
}

func TestExecuteFailureCarriesMessage(t *testing.T) {
	adapter := newTestAdapter(t, &fakeExecutor{}, Config{})
	rr := execute(adapter, `{"command":"boom"}`, "")
	if !strings.Contains(rr.Body.String(), "boom is not defined") {
		t.Fatalf("expected error message in body: %s", rr.Body.String())
	}
}

func TestExecuteRejectsBadBody(t *testing.T) {
	adapter := newTestAdapter(t, &fakeExecutor{}, Config{})
	for _, body := range []string{`{"command":`, `{"command":"  "}`, `{"cmd":"x"}`} {
		rr := execute(adapter, body, "")
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected status 400, got %d", body, rr.Code)
		}
	}
}

func TestInvalidRequestIDGetsReplaced(t *testing.T) {
	adapter := newTestAdapter(t, &fakeExecutor{}, Config{})
	rr := execute(adapter, `{"command":"1+1"}`, "bad id with spaces")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if got := rr.Header().Get("X-Request-ID"); got == "" || got == "bad id with spaces" {
		t.Fatalf("expected sanitized generated request id, got %q", got)
	}
}

func TestExecuteEndpointBodyTooLarge(t *testing.T) {
	adapter := newTestAdapter(t, &fakeExecutor{}, Config{MaxRequestBody: 16})
	rr := execute(adapter, `{"command":"`+strings.Repeat("x", 64)+`"}`, "")

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status 413, got %d", rr.Code)
	}
}

func TestExecuteEndpointTimeout(t *testing.T) {
	adapter := newTestAdapter(t, &fakeExecutor{block: true}, Config{RequestTimeout: 20 * time.Millisecond})
	rr := execute(adapter, `{"command":"while true do end"}`, "")

	if rr.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected status 504, got %d", rr.Code)
	}
}

func TestPluginsEndpoint(t *testing.T) {
	adapter := newTestAdapter(t, &fakeExecutor{}, Config{})
	req := httptest.NewRequest(http.MethodGet, "/v1/plugins", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rr := httptest.NewRecorder()
	adapter.routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"versions"`) {
		t.Fatalf("expected plugin list, got %s", rr.Body.String())
	}
}

func TestHistoryEndpointFilters(t *testing.T) {
	history := &fakeHistory{records: []storage.CommandRecord{{
		RequestID: "r1",
		Source:    "web",
		Subject:   "u1",
		Command:   "1+1",
		Output:    "2",
		Status:    storage.StatusOK,
		Duration:  3 * time.Millisecond,
		TS:        time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}}}
	adapter := newAdapterWithHistory(t, &fakeExecutor{}, history, Config{})

	req := httptest.NewRequest(http.MethodGet, "/v1/history?source=web&subject=u1&limit=5&from=2026-01-01T00:00:00Z", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rr := httptest.NewRecorder()
	adapter.routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if history.last.Source != "web" || history.last.Subject != "u1" || history.last.Limit != 5 {
		t.Fatalf("unexpected query: %+v", history.last)
	}
	if history.last.From.IsZero() || !history.last.To.IsZero() {
		t.Fatalf("unexpected time range: %+v", history.last)
	}
	var resp struct {
		Items []historyItem `json:"items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].DurationMS != 3 || resp.Items[0].TS != "2026-01-02T03:04:05Z" {
		t.Fatalf("unexpected items: %+v", resp.Items)
	}
}

func TestHistoryEndpointBadRange(t *testing.T) {
	adapter := newTestAdapter(t, &fakeExecutor{}, Config{})
	req := httptest.NewRequest(http.MethodGet, "/v1/history?to=yesterday", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rr := httptest.NewRecorder()
	adapter.routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestCORSRejectsUnknownOrigin(t *testing.T) {
	adapter := newTestAdapter(t, &fakeExecutor{}, Config{CORSAllowedOrigins: []string{"http://localhost:8000"}})

	req := httptest.NewRequest(http.MethodOptions, "/v1/console/execute", nil)
	req.Header.Set("Origin", "http://localhost:8000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	adapter.routes().ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected preflight 204, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rr = httptest.NewRecorder()
	adapter.routes().ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for unknown origin, got %d", rr.Code)
	}
}

func execute(adapter *Adapter, body, requestID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/console/execute", bytes.NewBufferString(body))
	req.Header.Set("Authorization", "Bearer "+testToken)
	if requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}
	rr := httptest.NewRecorder()
	adapter.routes().ServeHTTP(rr, req)
	return rr
}

func assertErrorHasRequestID(t *testing.T, rr *httptest.ResponseRecorder) {
	t.Helper()
	var resp struct {
		RequestID string `json:"request_id"`
		ErrorCode string `json:"error_code"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RequestID == "" {
		t.Fatal("expected request_id in error response")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID header in error response")
	}
}

func newTestAdapter(t *testing.T, exec Executor, cfg Config) *Adapter {
	t.Helper()
	return newAdapterWithHistory(t, exec, &fakeHistory{}, cfg)
}

func newAdapterWithHistory(t *testing.T, exec Executor, history HistoryReader, cfg Config) *Adapter {
	t.Helper()
	sum := sha256.Sum256([]byte(testToken))
	cfg.Tokens = append(cfg.Tokens, TokenEntry{
		ID:          "t1",
		TokenSHA256: hex.EncodeToString(sum[:]),
		Subject:     "u1",
		Enabled:     true,
	})
	authz := core.NewAllowlistAuthorizer(map[string][]string{Source: {"u1"}})
	return NewAdapter(Deps{
		Exec:       exec,
		Authorizer: authz,
		Plugins:    fakePlugins{},
		History:    history,
	}, cfg)
}
