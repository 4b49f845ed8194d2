package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotConnected возвращается Request, если клиент не подключен к серверу.
	ErrNotConnected = errors.New("ipc not connected")
	// ErrUnknownTopic сервер возвращает для темы без обработчика.
	ErrUnknownTopic = errors.New("unknown ipc topic")

	errWrongRole      = errors.New("operation not supported for ipc role")
	errAlreadyStarted = errors.New("ipc bridge already started")
)

// Role определяет сторону соединения.
type Role int

const (
	RoleNone Role = iota
	RoleServer
	RoleClient
)

func (r Role) String() string {
	switch r {
	case RoleServer:
		return "server"
	case RoleClient:
		return "client"
	default:
		return "none"
	}
}

// Reply: ответ удаленного обработчика.
type Reply struct {
	Payload string
	// Terminal передает клиенту признак завершения сеанса.
	Terminal bool
}

// Handler обрабатывает входящий запрос на стороне сервера.
type Handler func(ctx context.Context, payload string) (Reply, error)

// RemoteError: ошибка, которую вернул обработчик на другой стороне.
// Текст ошибки передается без изменений.
type RemoteError struct {
	Topic   string
	Message string
}

func (e *RemoteError) Error() string { return e.Message }

// Bridge реализует IPC поверх unix-сокета в роли сервера или клиента.
type Bridge struct {
	role        Role
	path        string
	dialTimeout time.Duration
	logger      *slog.Logger

	handlerMu sync.RWMutex
	handlers  map[string]Handler

	mu       sync.Mutex
	started  bool
	listener net.Listener
	peers    map[*peer]struct{}
	client   *peer
	cancel   context.CancelFunc

	pendingMu sync.Mutex
	pending   map[string]chan envelope

	connected atomic.Bool
	wg        sync.WaitGroup
}

type peer struct {
	conn    net.Conn
	writeMu sync.Mutex
}

func (p *peer) write(e envelope) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return writeFrame(p.conn, e)
}

// NewServer создает сервер, слушающий unix-сокет по пути path.
func NewServer(path string, logger *slog.Logger) *Bridge {
	return newBridge(RoleServer, path, 0, logger)
}

// NewClient создает клиента; Start ждет сокет не дольше dialTimeout.
func NewClient(path string, dialTimeout time.Duration, logger *slog.Logger) *Bridge {
	if dialTimeout <= 0 {
		dialTimeout = time.Second
	}
	return newBridge(RoleClient, path, dialTimeout, logger)
}

// Disabled возвращает мост без соединения: не сервер, не клиент, не подключен.
func Disabled() *Bridge {
	return newBridge(RoleNone, "", 0, nil)
}

func newBridge(role Role, path string, dialTimeout time.Duration, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		role:        role,
		path:        path,
		dialTimeout: dialTimeout,
		logger:      logger,
		handlers:    make(map[string]Handler),
		peers:       make(map[*peer]struct{}),
		pending:     make(map[string]chan envelope),
	}
}

func (b *Bridge) Name() string { return "ipc" }

func (b *Bridge) Role() Role { return b.role }

func (b *Bridge) IsServer() bool { return b.role == RoleServer }

func (b *Bridge) IsClient() bool { return b.role == RoleClient }

// Connected истинно только для клиента с живым соединением.
func (b *Bridge) Connected() bool { return b.connected.Load() }

// On регистрирует обработчик входящих запросов темы.
func (b *Bridge) On(topic string, h Handler) {
	if h == nil {
		return
	}
	b.handlerMu.Lock()
	defer b.handlerMu.Unlock()
	b.handlers[topic] = h
}

func (b *Bridge) handler(topic string) (Handler, bool) {
	b.handlerMu.RLock()
	defer b.handlerMu.RUnlock()
	h, ok := b.handlers[topic]
	return h, ok
}

// Start поднимает listener (сервер) или подключается к серверу (клиент).
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return errAlreadyStarted
	}
	b.started = true
	b.mu.Unlock()

	switch b.role {
	case RoleServer:
		return b.listen(ctx)
	case RoleClient:
		return b.dial(ctx)
	default:
		return nil
	}
}

func (b *Bridge) listen(ctx context.Context) error {
	// сокет мог остаться от аварийно завершенного процесса
	_ = os.Remove(b.path)
	ln, err := net.Listen("unix", b.path)
	if err != nil {
		return fmt.Errorf("listen %s: %w", b.path, err)
	}
	serveCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	b.mu.Lock()
	b.listener = ln
	b.cancel = cancel
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				if !errors.Is(err, net.ErrClosed) {
					b.logger.Warn("ipc accept failed", "err", err)
				}
				return
			}
			p := &peer{conn: conn}
			b.mu.Lock()
			b.peers[p] = struct{}{}
			b.mu.Unlock()

			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.serve(serveCtx, p)
			}()
		}
	}()
	b.logger.Info("ipc server listening", "path", b.path)
	return nil
}

func (b *Bridge) serve(ctx context.Context, p *peer) {
	defer func() {
		b.mu.Lock()
		delete(b.peers, p)
		b.mu.Unlock()
		_ = p.conn.Close()
	}()

	var inflight sync.WaitGroup
	defer inflight.Wait()
	for {
		req, err := readFrame(p.conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				b.logger.Debug("ipc read failed", "err", err)
			}
			return
		}
		if req.Kind != kindRequest {
			continue
		}
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			resp := b.dispatch(ctx, req)
			if err := p.write(resp); err != nil {
				b.logger.Warn("ipc reply not delivered", "id", req.ID, "topic", req.Topic, "err", err)
				// клиент ждет ответ с этим id, отвечаем хотя бы ошибкой
				failed := envelope{ID: req.ID, Kind: kindResponse, Topic: req.Topic, Error: "encode reply: " + err.Error()}
				if err := p.write(failed); err != nil {
					b.logger.Debug("ipc write failed", "id", req.ID, "err", err)
				}
			}
		}()
	}
}

func (b *Bridge) dispatch(ctx context.Context, req envelope) envelope {
	resp := envelope{ID: req.ID, Kind: kindResponse, Topic: req.Topic}
	h, ok := b.handler(req.Topic)
	if !ok {
		resp.Error = fmt.Sprintf("%s: %s", req.Topic, ErrUnknownTopic)
		return resp
	}
	reply, err := h(ctx, req.Payload)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	resp.Payload = reply.Payload
	resp.Terminal = reply.Terminal
	return resp
}

func (b *Bridge) dial(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, b.dialTimeout)
	defer cancel()

	var d net.Dialer
	var conn net.Conn
	for {
		var err error
		conn, err = d.DialContext(dialCtx, "unix", b.path)
		if err == nil {
			break
		}
		select {
		case <-dialCtx.Done():
			return fmt.Errorf("connect %s: %w", b.path, err)
		case <-time.After(100 * time.Millisecond):
		}
	}

	p := &peer{conn: conn}
	b.mu.Lock()
	b.client = p
	b.mu.Unlock()
	b.connected.Store(true)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.readResponses(p)
	}()
	b.logger.Info("ipc client connected", "path", b.path)
	return nil
}

func (b *Bridge) readResponses(p *peer) {
	defer func() {
		b.connected.Store(false)
		b.pendingMu.Lock()
		for id, ch := range b.pending {
			close(ch)
			delete(b.pending, id)
		}
		b.pendingMu.Unlock()
	}()
	for {
		resp, err := readFrame(p.conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				b.logger.Warn("ipc connection lost", "err", err)
			}
			return
		}
		if resp.Kind != kindResponse {
			continue
		}
		b.pendingMu.Lock()
		ch, ok := b.pending[resp.ID]
		delete(b.pending, resp.ID)
		b.pendingMu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

// Request отправляет запрос серверу и ждет ответ.
func (b *Bridge) Request(ctx context.Context, topic, payload string) (Reply, error) {
	if b.role != RoleClient {
		return Reply{}, fmt.Errorf("request as %s: %w", b.role, errWrongRole)
	}
	b.mu.Lock()
	p := b.client
	b.mu.Unlock()
	if p == nil || !b.Connected() {
		return Reply{}, ErrNotConnected
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Reply{}, fmt.Errorf("request id: %w", err)
	}
	req := envelope{ID: id.String(), Kind: kindRequest, Topic: topic, Payload: payload}
	ch := make(chan envelope, 1)

	b.pendingMu.Lock()
	b.pending[req.ID] = ch
	b.pendingMu.Unlock()
	defer func() {
		b.pendingMu.Lock()
		delete(b.pending, req.ID)
		b.pendingMu.Unlock()
	}()
	// соединение могло оборваться до регистрации ожидания
	if !b.Connected() {
		return Reply{}, ErrNotConnected
	}

	if err := p.write(req); err != nil {
		return Reply{}, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return Reply{}, fmt.Errorf("%s: %w", topic, ErrNotConnected)
		}
		if resp.Error != "" {
			return Reply{}, &RemoteError{Topic: topic, Message: resp.Error}
		}
		return Reply{Payload: resp.Payload, Terminal: resp.Terminal}, nil
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}

// Stop закрывает соединения и ждет завершения горутин.
func (b *Bridge) Stop(ctx context.Context) error {
	b.mu.Lock()
	ln := b.listener
	b.listener = nil
	client := b.client
	b.client = nil
	cancel := b.cancel
	peers := make([]*peer, 0, len(b.peers))
	for p := range b.peers {
		peers = append(peers, p)
	}
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ln != nil {
		_ = ln.Close()
		_ = os.Remove(b.path)
	}
	for _, p := range peers {
		_ = p.conn.Close()
	}
	if client != nil {
		_ = client.conn.Close()
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
