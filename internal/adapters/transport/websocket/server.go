package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/bnema/walletctl/internal/application"
	"github.com/bnema/walletctl/internal/domain"
	"github.com/bnema/walletctl/internal/ports"
	gws "github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pingInterval  = 30 * time.Second
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
	sendBuffer    = 64
)

// Bridge is the part of the event bridge the transport drives.
type Bridge interface {
	HandleEvent(ctx context.Context, event application.InboundEvent) (any, error)
	Subscribe(fn func(domain.Notification)) func()
	View() application.SessionView
}

// Prober reports extension presence, polling the host at most once per
// window however many clients ask.
type Prober interface {
	PollOnce(ctx context.Context) (present bool, polled bool)
}

// Server relays wallet events between websocket clients and the bridge.
// Every notification is broadcast to every client; request results go only to
// the client that asked.
type Server struct {
	bridge Bridge
	prober Prober
	clock  ports.Clock
	logger *zap.Logger

	upgrader gws.Upgrader
	mux      *http.ServeMux

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	unsubscribe func()
	clientsMu   sync.RWMutex
	clients     map[*client]struct{}
}

type client struct {
	conn   *gws.Conn
	send   chan []byte
	server *Server
	once   sync.Once
}

type Option func(*Server)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithClock(clock ports.Clock) Option {
	return func(s *Server) {
		s.clock = clock
	}
}

// WithProber adds extensionPresent to the greeting and to GET /session.
func WithProber(prober Prober) Option {
	return func(s *Server) {
		s.prober = prober
	}
}

// WithHandler mounts an extra route, such as a metrics endpoint.
func WithHandler(pattern string, handler http.Handler) Option {
	return func(s *Server) {
		s.mux.Handle(pattern, handler)
	}
}

// WithCheckOrigin replaces the origin policy. The default accepts any origin.
func WithCheckOrigin(check func(*http.Request) bool) Option {
	return func(s *Server) {
		s.upgrader.CheckOrigin = check
	}
}

func NewServer(bridge Bridge, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		bridge:  bridge,
		clock:   ports.SystemClock{},
		logger:  zap.NewNop(),
		mux:     http.NewServeMux(),
		ctx:     ctx,
		cancel:  cancel,
		clients: make(map[*client]struct{}),
		upgrader: gws.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("websocket")

	s.mux.HandleFunc("/ws", s.handleWebSocket)
	s.mux.HandleFunc("GET /session", s.handleSession)

	s.unsubscribe = bridge.Subscribe(s.onNotification)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Clients reports the number of connected websocket clients.
func (s *Server) Clients() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// Close stops broadcasting, closes every client and waits for in-flight
// requests to finish.
func (s *Server) Close() {
	s.unsubscribe()
	s.cancel()

	s.clientsMu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.Unlock()

	for _, c := range clients {
		s.removeClient(c)
	}
	s.wg.Wait()
}

type sessionPayload struct {
	application.SessionView
	ExtensionPresent *bool `json:"extensionPresent,omitempty"`
}

type statePayload struct {
	domain.Notification
	ExtensionPresent *bool `json:"extensionPresent,omitempty"`
}

func (s *Server) extensionPresent(ctx context.Context) *bool {
	if s.prober == nil {
		return nil
	}
	present, _ := s.prober.PollOnce(ctx)
	return &present
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	payload := sessionPayload{
		SessionView:      s.bridge.View(),
		ExtensionPresent: s.extensionPresent(r.Context()),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("encode session view", zap.Error(err))
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade", zap.Error(err))
		return
	}

	c := &client{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		server: s,
	}

	s.clientsMu.Lock()
	s.clients[c] = struct{}{}
	s.clientsMu.Unlock()

	s.sendCurrentState(r.Context(), c)

	go c.writePump()
	go c.readPump()
}

// sendCurrentState greets a new client with the session as it stands.
func (s *Server) sendCurrentState(ctx context.Context, c *client) {
	view := s.bridge.View()
	payload := statePayload{
		Notification: domain.Notification{
			Event:       domain.EventState,
			State:       view.Session.State,
			Address:     view.Session.Address,
			AdapterName: view.Session.AdapterName,
			Error:       view.Session.LastError,
			At:          s.clock.Now(),
		},
		ExtensionPresent: s.extensionPresent(ctx),
	}
	s.sendTo(c, string(domain.EventState), payload)
}

func (s *Server) onNotification(n domain.Notification) {
	msg, err := NewMessage(string(n.Event), domain.EventPayload(n), s.clock.Now())
	if err != nil {
		s.logger.Warn("encode notification", zap.Error(err))
		return
	}
	s.broadcast(msg)
}

func (s *Server) broadcast(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			s.logger.Debug("client buffer full, dropping frame", zap.String("type", msg.Type))
		}
	}
}

func (s *Server) handleMessage(c *client, raw []byte) {
	msg, err := ParseMessage(raw)
	if err != nil {
		s.sendError(c, ErrInvalidMessage, err.Error())
		return
	}

	event := application.InboundEvent{Name: domain.EventName(msg.Type), Payload: msg.Payload}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.dispatch(c, event)
	}()
}

func (s *Server) dispatch(c *client, event application.InboundEvent) {
	result, err := s.bridge.HandleEvent(s.ctx, event)

	if reply, ok := application.ReplyFor(event.Name, result, err, s.clock.Now()); ok {
		s.sendTo(c, string(reply.Event), reply)
		return
	}

	switch {
	case err == nil:
	case errors.Is(err, application.ErrUnknownEvent):
		s.sendError(c, ErrUnknownEvent, err.Error())
	case domain.KindOf(err) == "":
		// Classified connect failures already reached every client as
		// wallet-error notifications.
		s.sendError(c, ErrRequestFailed, err.Error())
	}
}

func (s *Server) sendTo(c *client, msgType string, payload any) {
	msg, err := NewMessage(msgType, payload, s.clock.Now())
	if err != nil {
		s.logger.Warn("encode message", zap.String("type", msgType), zap.Error(err))
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.enqueue(data)
}

func (s *Server) sendError(c *client, code, message string) {
	s.sendTo(c, TypeError, ErrorPayload{Code: code, Message: message})
}

func (s *Server) removeClient(c *client) {
	s.clientsMu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	s.clientsMu.Unlock()

	if ok {
		c.once.Do(func() { close(c.send) })
	}
}

// enqueue drops the frame when the client is gone or its buffer is full.
func (c *client) enqueue(data []byte) {
	c.server.clientsMu.RLock()
	defer c.server.clientsMu.RUnlock()

	if _, ok := c.server.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *client) readPump() {
	defer func() {
		c.server.removeClient(c)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if gws.IsUnexpectedCloseError(err, gws.CloseGoingAway, gws.CloseNormalClosure) {
				c.server.logger.Debug("websocket read", zap.Error(err))
			}
			return
		}
		c.server.handleMessage(c, message)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				_ = c.conn.WriteMessage(gws.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(gws.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(gws.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
