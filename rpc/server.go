package rpc

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/itskum47/mirrorblade/config"
	"github.com/itskum47/mirrorblade/logging"
	"github.com/itskum47/mirrorblade/observability"
	"github.com/itskum47/mirrorblade/ops"
)

const (
	listenBackoff = 500 * time.Millisecond

	// Per-session request limiter: generous for local tooling, tight enough
	// to absorb a runaway client loop.
	defaultSessionRate  = 200.0
	defaultSessionBurst = 50
)

// Server accepts one client at a time on the local pipe endpoint and runs
// the session loop: read one framed request, dispatch, write one reply.
type Server struct {
	reg *ops.Registry
	cfg *config.Store
	log *logging.Logger

	sessionRate  float64
	sessionBurst int

	mu       sync.Mutex
	listener net.Listener
	conn     net.Conn
	stopping bool

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewServer returns a stopped server.
func NewServer(reg *ops.Registry, cfg *config.Store, log *logging.Logger) *Server {
	return &Server{
		reg:          reg,
		cfg:          cfg,
		log:          log,
		sessionRate:  defaultSessionRate,
		sessionBurst: defaultSessionBurst,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// SetSessionRate overrides the per-session limiter (requests/second, burst).
// Call before Start.
func (s *Server) SetSessionRate(perSecond float64, burst int) {
	if perSecond > 0 {
		s.sessionRate = perSecond
	}
	if burst > 0 {
		s.sessionBurst = burst
	}
}

// Endpoint returns the resolved socket path for the configured pipe name.
func (s *Server) Endpoint() string {
	return PipePath(s.cfg.PipeName())
}

// Start launches the accept loop.
func (s *Server) Start() {
	go s.run()
}

// Stop unblocks the accept loop and any in-flight read, then waits for the
// server goroutine to exit. Idempotent.
func (s *Server) Stop() {
	s.once.Do(func() {
		close(s.stop)
		s.mu.Lock()
		s.stopping = true
		if s.listener != nil {
			s.listener.Close()
		}
		if s.conn != nil {
			s.conn.SetDeadline(time.Now())
			s.conn.Close()
		}
		s.mu.Unlock()
	})
	<-s.done
}

func (s *Server) stopped() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

func (s *Server) run() {
	defer close(s.done)

	for !s.stopped() {
		path := s.Endpoint()
		os.Remove(path)
		ln, err := net.Listen("unix", path)
		if err != nil {
			s.log.Errorf("Pipe endpoint %s failed: %v (retrying)", path, err)
			select {
			case <-s.stop:
				return
			case <-time.After(listenBackoff):
			}
			continue
		}

		s.mu.Lock()
		if s.stopping {
			s.mu.Unlock()
			ln.Close()
			os.Remove(path)
			return
		}
		s.listener = ln
		s.mu.Unlock()
		s.log.Infof("Listening on %s", path)

		// One client at a time.
		conn, err := ln.Accept()
		ln.Close()
		s.mu.Lock()
		s.listener = nil
		s.mu.Unlock()
		if err != nil {
			if s.stopped() {
				os.Remove(path)
				return
			}
			s.log.Warnf("Accept failed: %v", err)
			continue
		}

		if !s.cfg.IPCEnabled() {
			s.log.Debugf("Session rejected: ipc disabled")
			conn.Close()
			continue
		}

		s.mu.Lock()
		if s.stopping {
			s.mu.Unlock()
			conn.Close()
			os.Remove(path)
			return
		}
		s.conn = conn
		s.mu.Unlock()
		s.session(conn)
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		conn.Close()
		os.Remove(path)
	}
}

func (s *Server) session(conn net.Conn) {
	sessionID := uuid.NewString()
	observability.RPCSessions.Inc()
	s.log.Infof("Client connected (session %s)", sessionID)
	defer s.log.Infof("Client disconnected (session %s)", sessionID)

	limiter := rate.NewLimiter(rate.Limit(s.sessionRate), s.sessionBurst)
	reader := bufio.NewReaderSize(conn, 64<<10)

	for !s.stopped() {
		line, err := readLine(reader)
		if err != nil {
			if errors.Is(err, ErrOverflow) {
				observability.RPCOverflows.Inc()
				s.log.Warnf("Session %s terminated: frame overflow", sessionID)
			} else if !errors.Is(err, io.EOF) && !s.stopped() {
				s.log.Debugf("Session %s read ended: %v", sessionID, err)
			}
			return
		}
		if len(line) == 0 {
			continue
		}
		if !utf8.Valid(line) {
			s.log.Warnf("Session %s terminated: non-UTF-8 payload", sessionID)
			return
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			if !s.writeReply(conn, Request{V: 1}, ops.ErrorEnvelope(ops.CodeBadJSON, "parse failed")) {
				return
			}
			continue
		}

		var envelope map[string]any
		switch {
		case !limiter.Allow():
			observability.RPCRateLimited.Inc()
			envelope = ops.ErrorEnvelope(ops.CodeRateLimited, "session request rate exceeded")
		case req.V != 1:
			envelope = ops.ErrorEnvelope(ops.CodeBadVersion, "Only v=1 supported")
		case req.Op == "":
			envelope = ops.ErrorEnvelope(ops.CodeBadArgs, "op required")
		default:
			envelope = s.reg.Dispatch(req.Op, ops.Args(req.Args))
		}

		if !s.writeReply(conn, req, envelope) {
			return
		}
	}
}

// writeReply frames the envelope with the protocol version and echoed id.
// Returns false when the client is gone.
func (s *Server) writeReply(conn net.Conn, req Request, envelope map[string]any) bool {
	reply := make(map[string]any, len(envelope)+2)
	reply["v"] = 1
	if len(req.ID) > 0 {
		reply["id"] = req.ID
	}
	for k, v := range envelope {
		reply[k] = v
	}

	data, err := json.Marshal(reply)
	if err != nil {
		s.log.Errorf("Reply marshal failed: %v", err)
		data = []byte(`{"v":1,"ok":false,"error":{"code":"Exception","msg":"reply marshal failed"}}`)
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		return false
	}
	return true
}
