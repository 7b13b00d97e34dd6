// Package server owns the dispatcher: it accepts connections, verifies
// and decodes request envelopes, invokes the registered handler, and
// writes response or error envelopes back.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/wirerpc/internal/auth"
	"github.com/danmuck/wirerpc/internal/logging"
	"github.com/danmuck/wirerpc/internal/observability"
	"github.com/danmuck/wirerpc/internal/protocol"
	"github.com/danmuck/wirerpc/internal/protocol/frame"
	"github.com/danmuck/wirerpc/internal/transport"
)

var ErrHandlerRequired = errors.New("server: handler required")

// internalErrorMessage is what remote callers see for any handler fault
// that is not an explicit AppError. Internal detail never crosses the
// wire.
const internalErrorMessage = "internal server error"

// Handler maps one decoded request payload to a result payload or an
// error. Returning an AppError forwards its message verbatim to the
// remote caller; any other error is sanitized.
type Handler func(ctx context.Context, payload any) (any, error)

// AppError is an application-level failure the handler signals
// deliberately for the remote caller to see.
type AppError struct {
	Message string
}

func (e *AppError) Error() string {
	return e.Message
}

// Fail builds an AppError with a formatted message.
func Fail(format string, args ...any) *AppError {
	return &AppError{Message: fmt.Sprintf(format, args...)}
}

// Config defines one server instance.
type Config struct {
	Host         string
	Port         int
	TLSCertFile  string
	TLSKeyFile   string
	AuthSecret   string
	Metrics      bool
	MetricsPort  int
	Debug        bool
	Limits       frame.Limits
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Host:        "0.0.0.0",
		Port:        9090,
		MetricsPort: observability.DefaultMetricsPort,
		Limits:      frame.DefaultLimits(),
	}
}

// Server dispatches requests from many connections to one handler.
type Server struct {
	cfg         Config
	handler     Handler
	handlerName string
	tlsEnabled  bool

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
}

func New(cfg Config, handler Handler) (*Server, error) {
	if handler == nil {
		return nil, ErrHandlerRequired
	}
	if cfg.Limits.MaxFrameBytes == 0 {
		cfg.Limits = frame.DefaultLimits()
	}
	if cfg.MetricsPort == 0 {
		cfg.MetricsPort = observability.DefaultMetricsPort
	}
	if cfg.Debug {
		logging.ConfigureDebug()
	} else {
		logging.ConfigureRuntime()
	}
	return &Server{
		cfg:         cfg,
		handler:     handler,
		handlerName: handlerName(handler),
		tlsEnabled:  cfg.TLSCertFile != "" && cfg.TLSKeyFile != "",
		conns:       make(map[net.Conn]struct{}),
	}, nil
}

// Addr reports the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
}

// Run listens and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.Metrics {
		observability.StartMetricsServer(s.cfg.MetricsPort)
	}
	ln, err := transport.Listen(transport.ListenConfig{
		Address:     s.Addr(),
		TLSCertFile: s.cfg.TLSCertFile,
		TLSKeyFile:  s.cfg.TLSKeyFile,
	})
	if err != nil {
		return err
	}
	if s.tlsEnabled {
		log.Info().Str("addr", ln.Addr().String()).Msg("listening tcp/tls")
	} else {
		log.Info().Str("addr", ln.Addr().String()).Msg("listening tcp")
	}
	return s.Serve(ctx, ln)
}

// Serve runs the accept loop on an existing listener. One goroutine per
// connection; a failure inside one connection never affects the
// listener or sibling connections.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	go func() {
		<-ctx.Done()
		s.closeAllConns()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.trackConn(conn)
		go s.handleConn(ctx, conn)
	}
}

// handleConn loops read -> verify -> dispatch -> write until the peer
// closes or a protocol/auth failure tears the connection down.
func (s *Server) handleConn(ctx context.Context, raw net.Conn) {
	defer raw.Close()
	defer s.untrackConn(raw)
	conn := transport.Wrap(raw, s.cfg.Limits)
	remote := conn.RemoteAddr()
	log.Debug().Str("remote", remote).Msg("connection accepted")

	peer := observability.Peer{
		Remote:  remote,
		Handler: s.handlerName,
		Signed:  auth.Required(s.cfg.AuthSecret),
		TLS:     s.tlsEnabled,
	}

	for {
		if s.cfg.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		body, err := conn.ReadFrame()
		if err != nil {
			if !errors.Is(err, frame.ErrConnectionClosed) {
				log.Debug().Str("remote", remote).Err(err).Msg("read frame failed")
			}
			return
		}

		keepOpen := s.handleRequest(ctx, conn, peer, body)
		if !keepOpen {
			return
		}
	}
}

func (s *Server) handleRequest(ctx context.Context, conn *transport.Conn, peer observability.Peer, body []byte) bool {
	start := time.Now()
	remote := peer.Remote

	env, err := protocol.DecodeEnvelope(body)
	if err != nil {
		log.Warn().Str("remote", remote).Err(err).Msg("malformed envelope")
		s.recordError(peer, "protocol")
		return false
	}

	if auth.Required(s.cfg.AuthSecret) {
		if err := auth.Verify(env.Payload, env.Sig, s.cfg.AuthSecret); err != nil {
			log.Warn().Str("remote", remote).Uint64("id", env.ID).Msg("signature verification failed")
			s.recordError(peer, "auth")
			// One error envelope back, then drop the connection. No
			// further frames are read from a peer that failed auth.
			s.writeEnvelope(conn, mustErrorEnvelope(env.ID, protocol.ReasonAuth, "signature missing or invalid"))
			return false
		}
	}

	if env.Kind != protocol.KindRequest {
		log.Warn().Str("remote", remote).Str("kind", env.Kind).Msg("unexpected envelope kind")
		s.recordError(peer, "protocol")
		return false
	}

	payload, err := protocol.DecodePayload(env)
	if err != nil {
		log.Warn().Str("remote", remote).Uint64("id", env.ID).Err(err).Msg("malformed payload")
		s.recordError(peer, "protocol")
		return false
	}

	response := s.dispatch(ctx, env.ID, peer, payload)
	if err := s.writeEnvelope(conn, response); err != nil {
		log.Warn().Str("remote", remote).Uint64("id", env.ID).Err(err).Msg("write response failed")
		s.recordError(peer, "write")
		return false
	}

	observability.RecordServerRequest(peer, time.Since(start), len(body))
	log.Debug().
		Str("remote", remote).
		Uint64("id", env.ID).
		Dur("duration", time.Since(start)).
		Msg("request handled")
	return true
}

// dispatch invokes the handler and maps its outcome to a response or
// error envelope carrying the request id.
func (s *Server) dispatch(ctx context.Context, id uint64, peer observability.Peer, payload any) protocol.Envelope {
	result, err := s.invoke(ctx, payload)
	if err != nil {
		var appErr *AppError
		if errors.As(err, &appErr) {
			s.recordError(peer, "application")
			return mustErrorEnvelope(id, protocol.ReasonApplication, appErr.Message)
		}
		log.Error().Str("remote", peer.Remote).Uint64("id", id).Err(err).Msg("handler fault")
		s.recordError(peer, "internal")
		return mustErrorEnvelope(id, protocol.ReasonInternal, internalErrorMessage)
	}

	env, err := protocol.NewEnvelope(id, protocol.KindResponse, result)
	if err != nil {
		log.Error().Str("remote", peer.Remote).Uint64("id", id).Err(err).Msg("encode result failed")
		s.recordError(peer, "internal")
		return mustErrorEnvelope(id, protocol.ReasonInternal, internalErrorMessage)
	}
	return env
}

// invoke isolates handler panics to the calling connection's goroutine.
func (s *Server) invoke(ctx context.Context, payload any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return s.handler(ctx, payload)
}

func (s *Server) writeEnvelope(conn *transport.Conn, env protocol.Envelope) error {
	if auth.Required(s.cfg.AuthSecret) {
		env.Sig = auth.Sign(env.Payload, s.cfg.AuthSecret)
	}
	body, err := protocol.EncodeEnvelope(env)
	if err != nil {
		return err
	}
	if s.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	return conn.WriteFrame(body)
}

func (s *Server) recordError(peer observability.Peer, reason string) {
	observability.RecordServerError(peer, reason)
}

func (s *Server) trackConn(conn net.Conn) {
	s.connsMu.Lock()
	s.conns[conn] = struct{}{}
	s.connsMu.Unlock()
}

func (s *Server) untrackConn(conn net.Conn) {
	s.connsMu.Lock()
	delete(s.conns, conn)
	s.connsMu.Unlock()
}

func (s *Server) closeAllConns() {
	s.connsMu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.connsMu.Unlock()
}

func mustErrorEnvelope(id uint64, reason, message string) protocol.Envelope {
	env, err := protocol.NewErrorEnvelope(id, reason, message)
	if err != nil {
		// ErrorBody always encodes; reaching here means the codec
		// itself is broken.
		panic("server: encode error envelope: " + err.Error())
	}
	return env
}

func handlerName(handler Handler) string {
	name := runtime.FuncForPC(reflect.ValueOf(handler).Pointer()).Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}
