// Package client owns the request engine: per-call connection with
// bounded retry, signed request framing, timeout-governed response
// resolution, and the error taxonomy surfaced to callers.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/wirerpc/internal/auth"
	"github.com/danmuck/wirerpc/internal/logging"
	"github.com/danmuck/wirerpc/internal/observability"
	"github.com/danmuck/wirerpc/internal/protocol"
	"github.com/danmuck/wirerpc/internal/protocol/frame"
	"github.com/danmuck/wirerpc/internal/transport"
)

var (
	ErrConnect = errors.New("client: connection attempts exhausted")
	ErrAuth    = errors.New("client: authentication failed")
	ErrTimeout = errors.New("client: no response within timeout")
)

// ApplicationError carries a failure message forwarded verbatim from
// the remote handler.
type ApplicationError struct {
	Message string
}

func (e *ApplicationError) Error() string {
	return e.Message
}

// Config defines one client instance. Timeout zero means wait
// indefinitely for a response once connected.
type Config struct {
	Host               string
	Port               int
	TLSCAFile          string
	TLSSelfSigned      bool
	AuthSecret         string
	Timeout            time.Duration
	ConnectTimeout     time.Duration
	MaxConnectAttempts int
	Backoff            BackoffConfig
	Metrics            bool
	MetricsPort        int
	Debug              bool
	Limits             frame.Limits
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout:     5 * time.Second,
		MaxConnectAttempts: 5,
		Backoff:            DefaultBackoff(),
		MetricsPort:        observability.DefaultMetricsPort,
		Limits:             frame.DefaultLimits(),
	}
}

// Client issues one request/response exchange per Send call. Only
// configuration persists across calls; every call owns its connection
// end to end.
type Client struct {
	cfg        Config
	tlsEnabled bool
	nextID     atomic.Uint64
}

func New(cfg Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, errors.New("client: host required")
	}
	if cfg.MaxConnectAttempts <= 0 {
		cfg.MaxConnectAttempts = DefaultConfig().MaxConnectAttempts
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConfig().ConnectTimeout
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
	if cfg.Metrics {
		observability.StartMetricsServer(cfg.MetricsPort)
	}
	c := &Client{
		cfg:        cfg,
		tlsEnabled: cfg.TLSCAFile != "" || cfg.TLSSelfSigned,
	}
	c.nextID.Store(uint64(time.Now().UnixNano()))
	return c, nil
}

// Address reports the configured peer address.
func (c *Client) Address() string {
	return net.JoinHostPort(c.cfg.Host, fmt.Sprint(c.cfg.Port))
}

// Send performs one request/response exchange and resolves it to the
// decoded result payload or one of ErrConnect, ErrAuth, ErrTimeout, or
// an ApplicationError.
func (c *Client) Send(ctx context.Context, payload any) (any, error) {
	start := time.Now()
	peer := observability.Peer{
		Remote: c.Address(),
		Signed: auth.Required(c.cfg.AuthSecret),
		TLS:    c.tlsEnabled,
	}

	result, sentBytes, err := c.exchange(ctx, payload)
	if err != nil {
		observability.RecordClientError(peer, errorReason(err))
		return nil, err
	}
	observability.RecordClientRequest(peer, time.Since(start), sentBytes)
	return result, nil
}

func (c *Client) exchange(ctx context.Context, payload any) (any, int, error) {
	conn, err := c.connect(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer conn.Close()

	id := c.nextID.Add(1)
	env, err := protocol.NewEnvelope(id, protocol.KindRequest, payload)
	if err != nil {
		return nil, 0, err
	}
	if auth.Required(c.cfg.AuthSecret) {
		env.Sig = auth.Sign(env.Payload, c.cfg.AuthSecret)
	}
	body, err := protocol.EncodeEnvelope(env)
	if err != nil {
		return nil, 0, err
	}
	if err := conn.WriteFrame(body); err != nil {
		return nil, 0, fmt.Errorf("client: send request: %w", err)
	}
	log.Debug().Str("remote", c.Address()).Uint64("id", id).Msg("request sent")

	result, err := c.awaitResponse(conn, id)
	if err != nil {
		return nil, 0, err
	}
	return result, len(body), nil
}

// awaitResponse blocks for the correlated response frame. Timeout
// expiry surfaces ErrTimeout; the deferred close in exchange tears the
// connection down so the stale read can never resolve later.
func (c *Client) awaitResponse(conn *transport.Conn, id uint64) (any, error) {
	if c.cfg.Timeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(c.cfg.Timeout)); err != nil {
			return nil, err
		}
	}

	body, err := conn.ReadFrame()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, c.cfg.Timeout)
		}
		return nil, fmt.Errorf("client: read response: %w", err)
	}

	env, err := protocol.DecodeEnvelope(body)
	if err != nil {
		return nil, err
	}
	if auth.Required(c.cfg.AuthSecret) {
		if err := auth.Verify(env.Payload, env.Sig, c.cfg.AuthSecret); err != nil {
			return nil, fmt.Errorf("%w: response signature", ErrAuth)
		}
	}
	if env.ID != id {
		return nil, fmt.Errorf("%w: got=%d want=%d", protocol.ErrIDMismatch, env.ID, id)
	}

	switch env.Kind {
	case protocol.KindResponse:
		return protocol.DecodePayload(env)
	case protocol.KindError:
		errBody, err := protocol.DecodeErrorBody(env)
		if err != nil {
			return nil, err
		}
		if errBody.Reason == protocol.ReasonAuth {
			return nil, fmt.Errorf("%w: %s", ErrAuth, errBody.Message)
		}
		return nil, &ApplicationError{Message: errBody.Message}
	default:
		return nil, fmt.Errorf("%w: kind %q in response position", protocol.ErrInvalidKind, env.Kind)
	}
}

// connect dials with bounded retry and strictly increasing backoff.
// Once a connection is established, connection-phase retry no longer
// applies to the call.
func (c *Client) connect(ctx context.Context) (*transport.Conn, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxConnectAttempts; attempt++ {
		conn, err := transport.Dial(ctx, transport.DialConfig{
			Address:        c.Address(),
			ConnectTimeout: c.cfg.ConnectTimeout,
			TLSCAFile:      c.cfg.TLSCAFile,
			TLSSelfSigned:  c.cfg.TLSSelfSigned,
			TLSEnabled:     c.tlsEnabled,
			Limits:         c.cfg.Limits,
		})
		if err == nil {
			return conn, nil
		}
		lastErr = err
		log.Debug().
			Str("remote", c.Address()).
			Int("attempt", attempt).
			Err(err).
			Msg("connect failed")
		if attempt == c.cfg.MaxConnectAttempts {
			// No sleep after the last attempt.
			break
		}
		if err := c.sleepBackoff(ctx, attempt); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s after %d attempts: %v",
		ErrConnect, c.Address(), c.cfg.MaxConnectAttempts, lastErr)
}

func (c *Client) sleepBackoff(ctx context.Context, attempt int) error {
	delay := NextBackoffDelay(c.cfg.Backoff, attempt)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func errorReason(err error) string {
	switch {
	case errors.Is(err, ErrConnect):
		return "connect"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		var appErr *ApplicationError
		if errors.As(err, &appErr) {
			return "application"
		}
		return "protocol"
	}
}
