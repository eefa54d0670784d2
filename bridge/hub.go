package bridge

import (
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/itskum47/mirrorblade/observability"
)

const maxHubClients = 16

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1 << 10,
	WriteBufferSize: 16 << 10,
	// Local-only listener; browser origin checks don't apply.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub fans the diagnostic snapshot out to connected websocket clients once
// a second. Single broadcaster, register/unregister through channels.
type Hub struct {
	snapshot func() string

	clients    map[*websocket.Conn]struct{}
	register   chan *websocket.Conn
	unregister chan *websocket.Conn

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewHub returns a stopped hub fed by the snapshot function.
func NewHub(snapshot func() string) *Hub {
	return &Hub{
		snapshot:   snapshot,
		clients:    make(map[*websocket.Conn]struct{}),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Run drives the broadcast loop until Stop.
func (h *Hub) Run() {
	defer close(h.done)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			for conn := range h.clients {
				conn.Close()
			}
			observability.HubClients.Set(0)
			return

		case conn := <-h.register:
			if len(h.clients) >= maxHubClients {
				conn.Close()
				continue
			}
			h.clients[conn] = struct{}{}
			observability.HubClients.Set(float64(len(h.clients)))

		case conn := <-h.unregister:
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			observability.HubClients.Set(float64(len(h.clients)))

		case <-ticker.C:
			if len(h.clients) == 0 {
				continue
			}
			payload := []byte(h.snapshot())
			for conn := range h.clients {
				conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					delete(h.clients, conn)
					conn.Close()
				}
			}
			observability.HubClients.Set(float64(len(h.clients)))
		}
	}
}

// Stop closes every client and ends the loop. Idempotent.
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.stop) })
	<-h.done
}

// ServeWS upgrades an HTTP request and attaches the client to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	select {
	case h.register <- conn:
	case <-h.stop:
		conn.Close()
		return
	}

	// Drain control frames; any read error unregisters the client.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				select {
				case h.unregister <- conn:
				case <-h.stop:
					conn.Close()
				}
				return
			}
		}
	}()
}

// startDiagnostics exposes /metrics and /ws/diag on addr.
func (b *Bridge) startDiagnostics(addr string) {
	b.hub = NewHub(b.DiagDump)
	go b.hub.Run()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws/diag", b.hub.ServeWS)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		b.log.Errorf("Diagnostics listener %s failed: %v", addr, err)
		b.hub.Stop()
		b.hub = nil
		return
	}
	b.httpSrv = &http.Server{Handler: mux}
	b.diagAddr = ln.Addr().String()
	b.log.Infof("Diagnostics on http://%s (metrics, ws/diag)", b.diagAddr)
	go func() {
		if err := b.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			b.log.Warnf("Diagnostics server ended: %v", err)
		}
	}()
}

func readFileIfPresent(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}
