package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/protocorn/launchway/internal/platform/logger"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  32 * 1024,
	WriteBufferSize: 32 * 1024,
	// The viewer is served from a different origin than the bridge port.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Bridge tunnels a WebSocket connection to the session's VNC TCP stream.
// Bytes pass through untouched; framing is binary in both directions.
type Bridge struct {
	Port     int
	vncAddr  string
	server   *http.Server
	log      *logger.Logger
	mu       sync.Mutex
	conns    map[*websocket.Conn]struct{}
}

// New prepares a bridge listening on port and dialing vncAddr
func New(port int, vncAddr string, log *logger.Logger) *Bridge {
	return &Bridge{
		Port:    port,
		vncAddr: vncAddr,
		log:     log,
		conns:   make(map[*websocket.Conn]struct{}),
	}
}

// Start begins accepting viewer connections
func (b *Bridge) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", b.handle)

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", b.Port))
	if err != nil {
		return fmt.Errorf("unable to bind websocket bridge: %w", err)
	}

	b.server = &http.Server{Handler: mux}
	go func() {
		if err := b.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			b.log.Warn("websocket bridge stopped", zap.Error(err))
		}
	}()
	b.log.Info("websocket bridge started", zap.Int("port", b.Port), zap.String("vnc", b.vncAddr))
	return nil
}

func (b *Bridge) handle(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	b.mu.Lock()
	b.conns[ws] = struct{}{}
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.conns, ws)
		b.mu.Unlock()
	}()

	if err := Tunnel(r.Context(), ws, b.vncAddr); err != nil {
		b.log.Debug("vnc tunnel closed", zap.Error(err))
	}
}

// Stop closes the listener and every live tunnel
func (b *Bridge) Stop() {
	if b.server == nil {
		return
	}
	b.mu.Lock()
	for ws := range b.conns {
		_ = ws.Close()
	}
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = b.server.Shutdown(ctx)
	b.server = nil
	b.log.Info("websocket bridge stopped", zap.Int("port", b.Port))
}

// Tunnel copies framebuffer bytes between a websocket and a VNC TCP
// endpoint until either side closes. Shared by the per-session bridge and
// the API's /vnc-stream route.
func Tunnel(ctx context.Context, ws *websocket.Conn, vncAddr string) error {
	tcp, err := net.DialTimeout("tcp", vncAddr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("unable to reach vnc server: %w", err)
	}
	defer tcp.Close()

	errc := make(chan error, 2)

	// viewer -> vnc
	go func() {
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				errc <- err
				return
			}
			if _, err := tcp.Write(data); err != nil {
				errc <- err
				return
			}
		}
	}()

	// vnc -> viewer
	go func() {
		buf := make([]byte, 32*1024)
		for {
			n, err := tcp.Read(buf)
			if n > 0 {
				if werr := ws.WriteMessage(websocket.BinaryMessage, buf[:n]); werr != nil {
					errc <- werr
					return
				}
			}
			if err != nil {
				errc <- err
				return
			}
		}
	}()

	select {
	case err := <-errc:
		if errors.Is(err, io.EOF) || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
