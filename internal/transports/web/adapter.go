package web

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"embark/internal/console"
	"embark/internal/core"
	"embark/internal/plugins"
	"embark/internal/storage"
	"embark/internal/transports/common"
)

// Source: имя источника команд HTTP API.
const Source = "web"

type contextKey string

const (
	ctxRequestID  contextKey = "request_id"
	ctxSubjectID  contextKey = "subject_id"
	ctxAuthMethod contextKey = "auth_method"
	ctxCommand    contextKey = "command"
)

// TokenEntry описывает web bearer-токен.
type TokenEntry struct {
	ID          string
	TokenSHA256 string
	Subject     string
	Enabled     bool
}

// Config определяет параметры HTTP-транспорта.
type Config struct {
	ListenAddr               string
	ReadTimeout              time.Duration
	WriteTimeout             time.Duration
	ShutdownTimeout          time.Duration
	RequestTimeout           time.Duration
	MaxRequestBody           int64
	AllowLegacySubjectHeader bool
	Tokens                   []TokenEntry
	CORSAllowedOrigins       []string
	CORSAllowedMethods       []string
	CORSAllowedHeaders       []string
}

// Executor выполняет команду консоли от имени субъекта.
type Executor interface {
	Execute(ctx context.Context, subjectID, text string) (console.Result, error)
}

// PluginLister отдает описание зарегистрированных плагинов.
type PluginLister interface {
	Infos() []plugins.Info
}

// HistoryReader отдает историю команд.
type HistoryReader interface {
	QueryHistory(ctx context.Context, q storage.HistoryQuery) ([]storage.CommandRecord, error)
}

// Adapter реализует HTTP API консоли поверх net/http.
type Adapter struct {
	exec       Executor
	authorizer core.Authorizer
	plugins    PluginLister
	history    HistoryReader
	cfg        Config
	logger     *slog.Logger

	tokensByHash map[string]TokenEntry
	corsOrigins  map[string]struct{}

	mu     sync.Mutex
	server *http.Server
}

// Deps: зависимости HTTP API. History может быть nil, если история не ведется.
type Deps struct {
	Exec       Executor
	Authorizer core.Authorizer
	Plugins    PluginLister
	History    HistoryReader
	Logger     *slog.Logger
}

type executeRequest struct {
	Command string `json:"command"`
}

// NewAdapter создает web transport.
func NewAdapter(deps Deps, cfg Config) *Adapter {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:8546"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 2 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if cfg.MaxRequestBody <= 0 {
		cfg.MaxRequestBody = 64 << 10
	}
	if len(cfg.CORSAllowedMethods) == 0 {
		cfg.CORSAllowedMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cfg.CORSAllowedHeaders) == 0 {
		cfg.CORSAllowedHeaders = []string{"Authorization", "Content-Type", "X-Request-ID"}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tokensByHash := make(map[string]TokenEntry, len(cfg.Tokens))
	for _, token := range cfg.Tokens {
		h := strings.ToLower(strings.TrimSpace(token.TokenSHA256))
		if len(h) != 64 {
			logger.Warn("web token skipped: sha256 must be 64 hex chars", "token_id", token.ID)
			continue
		}
		tokensByHash[h] = token
	}

	corsOrigins := make(map[string]struct{}, len(cfg.CORSAllowedOrigins))
	for _, origin := range cfg.CORSAllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		corsOrigins[trimmed] = struct{}{}
	}

	return &Adapter{
		exec:         deps.Exec,
		authorizer:   deps.Authorizer,
		plugins:      deps.Plugins,
		history:      deps.History,
		cfg:          cfg,
		logger:       logger,
		tokensByHash: tokensByHash,
		corsOrigins:  corsOrigins,
	}
}

func (a *Adapter) Name() string { return "web" }

// Start запускает HTTP server и останавливает его при отмене контекста.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.server != nil {
		a.mu.Unlock()
		return errors.New("web transport already started")
	}
	srv := &http.Server{
		Addr:         a.cfg.ListenAddr,
		Handler:      a.routes(),
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
	}
	a.server = srv
	a.mu.Unlock()

	go func() {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		_ = a.Stop(stopCtx)
	}()

	go func() {
		a.logger.Info("web transport listening", "addr", a.cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("web transport stopped", "error", err)
		}
	}()
	return nil
}

// Stop завершает HTTP server.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	srv := a.server
	a.server = nil
	a.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

type middleware func(http.Handler) http.Handler

func chain(h http.Handler, mws ...middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func (a *Adapter) routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /v1/health", http.HandlerFunc(a.handleHealth))

	protected := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found")
	}), a.timeoutMiddleware(), a.authSubjectMiddleware())

	mux.Handle("GET /v1/", protected)
	mux.Handle("POST /v1/", protected)

	mux.Handle("GET /v1/me", chain(http.HandlerFunc(a.handleMe),
		a.timeoutMiddleware(),
		a.authSubjectMiddleware(),
		a.authorizeActionMiddleware(core.Action{Command: "web:me"}),
	))

	mux.Handle("GET /v1/plugins", chain(http.HandlerFunc(a.handlePlugins),
		a.timeoutMiddleware(),
		a.authSubjectMiddleware(),
		a.authorizeActionMiddleware(core.Action{Command: "web:plugins"}),
	))

	mux.Handle("POST /v1/console/execute", chain(http.HandlerFunc(a.handleExecute),
		a.timeoutMiddleware(),
		a.authSubjectMiddleware(),
		a.maxBodyMiddleware(),
		a.decodeCommandMiddleware(),
	))

	mux.Handle("GET /v1/history", chain(http.HandlerFunc(a.handleHistory),
		a.timeoutMiddleware(),
		a.authSubjectMiddleware(),
		a.authorizeActionMiddleware(core.Action{Command: "web:history"}),
	))

	return chain(mux, a.requestIDMiddleware(), a.corsMiddleware())
}

func (a *Adapter) requestIDMiddleware() middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := sanitizeRequestID(r.Header.Get("X-Request-ID"))
			if requestID == "" {
				requestID = newRequestID()
			}
			w.Header().Set("X-Request-ID", requestID)
			ctx := context.WithValue(r.Context(), ctxRequestID, requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *Adapter) corsMiddleware() middleware {
	allowMethods := strings.Join(a.cfg.CORSAllowedMethods, ", ")
	allowHeaders := strings.Join(a.cfg.CORSAllowedHeaders, ", ")

	isMethodAllowed := func(method string) bool {
		for _, m := range a.cfg.CORSAllowedMethods {
			if strings.EqualFold(strings.TrimSpace(m), method) {
				return true
			}
		}
		return false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			if _, ok := a.corsOrigins[origin]; !ok {
				writeError(w, r, http.StatusForbidden, "cors_denied")
				return
			}

			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", allowMethods)
			w.Header().Set("Access-Control-Allow-Headers", allowHeaders)

			if r.Method == http.MethodOptions {
				preflightMethod := strings.TrimSpace(r.Header.Get("Access-Control-Request-Method"))
				if preflightMethod != "" && !isMethodAllowed(preflightMethod) {
					writeError(w, r, http.StatusForbidden, "cors_method_denied")
					return
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (a *Adapter) timeoutMiddleware() middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), a.cfg.RequestTimeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *Adapter) authSubjectMiddleware() middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subjectID, authMethod, code := a.resolveSubject(r)
			if code != "" {
				writeError(w, r, http.StatusUnauthorized, code)
				return
			}
			ctx := context.WithValue(r.Context(), ctxSubjectID, subjectID)
			ctx = context.WithValue(ctx, ctxAuthMethod, authMethod)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *Adapter) resolveSubject(r *http.Request) (string, string, string) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		token := strings.TrimSpace(authHeader[7:])
		if token == "" {
			return "", "", "invalid_token"
		}
		sum := sha256.Sum256([]byte(token))
		entry, ok := a.tokensByHash[hex.EncodeToString(sum[:])]
		if !ok || !entry.Enabled || entry.Subject == "" {
			return "", "", "invalid_token"
		}
		return entry.Subject, "bearer", ""
	}

	if a.cfg.AllowLegacySubjectHeader {
		subjectID := strings.TrimSpace(r.Header.Get("X-Subject-ID"))
		if subjectID != "" {
			return subjectID, "legacy_header", ""
		}
	}

	return "", "", "auth_required"
}

func (a *Adapter) maxBodyMiddleware() middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, a.cfg.MaxRequestBody)
			next.ServeHTTP(w, r)
		})
	}
}

func (a *Adapter) authorizeActionMiddleware(action core.Action) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subjectID := subjectIDFromContext(r.Context())
			if subjectID == "" {
				writeError(w, r, http.StatusUnauthorized, "auth_required")
				return
			}
			if a.authorizer != nil {
				if err := a.authorizer.Authorize(core.Subject{Source: Source, ID: subjectID}, action); err != nil {
					a.logger.Warn("web access denied", "subject", subjectID, "action", action.Command,
						"request_id", requestIDFromContext(r.Context()))
					writeError(w, r, http.StatusForbidden, "access_denied")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *Adapter) decodeCommandMiddleware() middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req, code, statusCode := decodeExecuteRequest(r)
			if code != "" {
				writeError(w, r, statusCode, code)
				return
			}
			ctx := context.WithValue(r.Context(), ctxCommand, req.Command)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func decodeExecuteRequest(r *http.Request) (executeRequest, string, int) {
	var req executeRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return executeRequest{}, "payload_too_large", http.StatusRequestEntityTooLarge
		}
		return executeRequest{}, "invalid_json", http.StatusBadRequest
	}
	if dec.More() {
		return executeRequest{}, "invalid_json", http.StatusBadRequest
	}
	if strings.TrimSpace(req.Command) == "" {
		return executeRequest{}, "bad_command", http.StatusBadRequest
	}
	return req, "", 0
}

func sanitizeRequestID(v string) string {
	id := strings.TrimSpace(v)
	if id == "" || len(id) > 64 {
		return ""
	}
	for _, ch := range id {
		if (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') {
			continue
		}
		switch ch {
		case '-', '_', '.', ':':
			continue
		default:
			return ""
		}
	}
	return id
}

func (a *Adapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *Adapter) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"request_id":  requestIDFromContext(r.Context()),
		"subject":     subjectIDFromContext(r.Context()),
		"auth_method": authMethodFromContext(r.Context()),
	})
}

func (a *Adapter) handlePlugins(w http.ResponseWriter, r *http.Request) {
	items := []plugins.Info{}
	if a.plugins != nil {
		items = append(items, a.plugins.Infos()...)
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"request_id": requestIDFromContext(r.Context()),
		"items":      items,
	})
}

type outcome struct {
	res console.Result
	err error
}

func (a *Adapter) handleExecute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectID := subjectIDFromContext(ctx)
	requestID := requestIDFromContext(ctx)
	cmd, _ := ctx.Value(ctxCommand).(string)

	// исполнитель кода не прерывается по контексту, поэтому ждем его отдельно от таймаута запроса
	done := make(chan outcome, 1)
	go func() {
		res, err := a.exec.Execute(ctx, subjectID, cmd)
		done <- outcome{res: res, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		writeError(w, r, http.StatusGatewayTimeout, "request_timeout")
		return
	}

	if out.err != nil {
		switch {
		case errors.Is(out.err, context.DeadlineExceeded):
			writeError(w, r, http.StatusGatewayTimeout, "request_timeout")
		case errors.Is(out.err, core.ErrForbidden):
			writeError(w, r, http.StatusForbidden, "access_denied")
		case errors.Is(out.err, common.ErrRateLimited):
			writeError(w, r, http.StatusTooManyRequests, "rate_limited")
		default:
			writeJSON(w, r, http.StatusUnprocessableEntity, map[string]string{
				"request_id": requestID,
				"error_code": "command_failed",
				"message":    out.err.Error(),
			})
		}
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"request_id": requestID,
		"output":     out.res.Output,
		"exit":       out.res.Exit,
	})
}

type historyItem struct {
	RequestID  string `json:"request_id"`
	Source     string `json:"source"`
	Subject    string `json:"subject,omitempty"`
	Command    string `json:"command"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
	Status     string `json:"status"`
	Exit       bool   `json:"exit,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	TS         string `json:"ts"`
}

func (a *Adapter) handleHistory(w http.ResponseWriter, r *http.Request) {
	if a.history == nil {
		writeError(w, r, http.StatusNotFound, "history_disabled")
		return
	}
	query := r.URL.Query()
	q := storage.HistoryQuery{
		Source:  query.Get("source"),
		Subject: query.Get("subject"),
		Limit:   parseLimit(query.Get("limit")),
	}
	if from := query.Get("from"); from != "" {
		ts, err := time.Parse(time.RFC3339, from)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_from")
			return
		}
		q.From = ts
	}
	if to := query.Get("to"); to != "" {
		ts, err := time.Parse(time.RFC3339, to)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_to")
			return
		}
		q.To = ts
	}

	records, err := a.history.QueryHistory(r.Context(), q)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(r.Context().Err(), context.DeadlineExceeded) {
			writeError(w, r, http.StatusGatewayTimeout, "request_timeout")
			return
		}
		a.logger.Error("history query failed", "error", err, "request_id", requestIDFromContext(r.Context()))
		writeError(w, r, http.StatusInternalServerError, "query_failed")
		return
	}

	items := make([]historyItem, 0, len(records))
	for _, rec := range records {
		items = append(items, historyItem{
			RequestID:  rec.RequestID,
			Source:     rec.Source,
			Subject:    rec.Subject,
			Command:    rec.Command,
			Output:     rec.Output,
			Error:      rec.Error,
			Status:     rec.Status,
			Exit:       rec.Exit,
			DurationMS: rec.Duration.Milliseconds(),
			TS:         rec.TS.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"request_id": requestIDFromContext(r.Context()),
		"items":      items,
	})
}

func requestIDFromContext(ctx context.Context) string {
	v, ok := ctx.Value(ctxRequestID).(string)
	if !ok || v == "" {
		return newRequestID()
	}
	return v
}

func subjectIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxSubjectID).(string)
	return v
}

func authMethodFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxAuthMethod).(string)
	return v
}

func parseLimit(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 50
	}
	return n
}

func newRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return id.String()
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code string) {
	writeJSON(w, r, statusCode, map[string]string{
		"request_id": requestIDFromContext(r.Context()),
		"error_code": code,
		"message":    errorMessage(code),
	})
}

func errorMessage(code string) string {
	switch code {
	case "auth_required":
		return "authentication is required"
	case "invalid_token":
		return "token is invalid"
	case "access_denied":
		return "access denied"
	case "payload_too_large":
		return "request payload is too large"
	case "request_timeout":
		return "request timeout"
	case "rate_limited":
		return "too many commands, slow down"
	case "history_disabled":
		return "command history is disabled"
	case "cors_denied", "cors_method_denied":
		return "cors policy denied request"
	default:
		return code
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestIDFromContext(r.Context()))
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}
