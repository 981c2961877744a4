package notifications

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dermashop/dermashop-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/multierr"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// ErrRegistryClosed is returned once Close has torn the registry down.
var ErrRegistryClosed = errors.New("notification registry closed")

// Conn is the subset of *websocket.Conn the registry writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type peer struct {
	conn Conn
	mu   sync.Mutex
}

func (p *peer) write(messageType int, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.conn.WriteMessage(messageType, data)
}

// Registry tracks the live sockets of each user. It is owned by the process
// wiring and torn down with Close.
type Registry struct {
	mu     sync.RWMutex
	peers  map[uuid.UUID]map[*peer]struct{}
	closed bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{peers: map[uuid.UUID]map[*peer]struct{}{}}
}

// Register adds conn under userID. The returned func unregisters it.
func (r *Registry) Register(userID uuid.UUID, conn Conn) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	p := &peer{conn: conn}
	set, ok := r.peers[userID]
	if !ok {
		set = map[*peer]struct{}{}
		r.peers[userID] = set
	}
	set[p] = struct{}{}
	return func() { r.unregister(userID, p) }, nil
}

func (r *Registry) unregister(userID uuid.UUID, p *peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.peers[userID]
	if !ok {
		return
	}
	delete(set, p)
	if len(set) == 0 {
		delete(r.peers, userID)
	}
}

// Connections reports how many sockets userID has open.
func (r *Registry) Connections(userID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers[userID])
}

// Send writes payload as JSON to every socket of userID and returns how many
// writes succeeded. A user without sockets is not an error.
func (r *Registry) Send(userID uuid.UUID, payload any) (int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("encode payload: %w", err)
	}

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return 0, ErrRegistryClosed
	}
	targets := make([]*peer, 0, len(r.peers[userID]))
	for p := range r.peers[userID] {
		targets = append(targets, p)
	}
	r.mu.RUnlock()

	delivered := 0
	var sendErr error
	for _, p := range targets {
		if err := p.write(websocket.TextMessage, data); err != nil {
			sendErr = multierr.Append(sendErr, err)
			continue
		}
		delivered++
	}
	return delivered, sendErr
}

// Close closes every registered socket and rejects further registrations.
func (r *Registry) Close() error {
	r.mu.Lock()
	peers := r.peers
	r.peers = map[uuid.UUID]map[*peer]struct{}{}
	r.closed = true
	r.mu.Unlock()

	var closeErr error
	for _, set := range peers {
		for p := range set {
			p.mu.Lock()
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = p.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			closeErr = multierr.Append(closeErr, p.conn.Close())
			p.mu.Unlock()
		}
	}
	return closeErr
}

// Gateway upgrades HTTP requests to sockets and keeps them registered until
// the peer goes away.
type Gateway struct {
	registry *Registry
	upgrader websocket.Upgrader
	logg     *logger.Logger
}

// NewGateway builds the socket gateway around registry.
func NewGateway(registry *Registry, logg *logger.Logger) (*Gateway, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry required")
	}
	return &Gateway{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logg: logg,
	}, nil
}

// Serve upgrades the request and blocks until the socket closes. Inbound
// frames are discarded; the channel is server-to-client only.
func (g *Gateway) Serve(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrade websocket: %w", err)
	}

	unregister, err := g.registry.Register(userID, conn)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer func() {
		unregister()
		_ = conn.Close()
	}()

	ctx := r.Context()
	if g.logg != nil {
		ctx = g.logg.WithUserID(ctx, userID.String())
		g.logg.Info(ctx, "notifications.ws.connected")
	}

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go g.keepAlive(conn, done)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if g.logg != nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logg.Warn(g.logg.WithField(ctx, "error", err.Error()), "notifications.ws.read_failed")
			}
			return nil
		}
	}
}

func (g *Gateway) keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
