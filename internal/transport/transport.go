// Package transport owns one TCP or TLS connection: dialing, listening,
// and blocking framed send/receive with deadline support.
package transport

import (
	"bufio"
	"context"
	"net"
	"time"

	"github.com/danmuck/wirerpc/internal/protocol/frame"
)

// DialConfig configures one client-side connection attempt.
type DialConfig struct {
	Address        string
	ConnectTimeout time.Duration
	TLSCAFile      string
	TLSSelfSigned  bool
	TLSEnabled     bool
	Limits         frame.Limits
}

// ListenConfig configures a server listener.
type ListenConfig struct {
	Address     string
	TLSCertFile string
	TLSKeyFile  string
}

// Conn is one established connection carrying framed messages.
type Conn struct {
	raw    net.Conn
	reader *bufio.Reader
	limits frame.Limits
}

func newConn(raw net.Conn, limits frame.Limits) *Conn {
	if limits.MaxFrameBytes == 0 {
		limits = frame.DefaultLimits()
	}
	return &Conn{
		raw:    raw,
		reader: bufio.NewReader(raw),
		limits: limits,
	}
}

// Wrap adopts an already-accepted connection on the server side.
func Wrap(raw net.Conn, limits frame.Limits) *Conn {
	return newConn(raw, limits)
}

// WriteFrame sends one framed body.
func (c *Conn) WriteFrame(body []byte) error {
	return frame.Write(c.raw, body, c.limits)
}

// ReadFrame blocks until one complete framed body arrives.
func (c *Conn) ReadFrame() ([]byte, error) {
	return frame.Read(c.reader, c.limits)
}

// SetReadDeadline bounds the next ReadFrame. Zero clears the deadline.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.raw.SetReadDeadline(t)
}

// SetWriteDeadline bounds the next WriteFrame. Zero clears the deadline.
func (c *Conn) SetWriteDeadline(t time.Time) error {
	return c.raw.SetWriteDeadline(t)
}

// RemoteAddr reports the peer address.
func (c *Conn) RemoteAddr() string {
	return c.raw.RemoteAddr().String()
}

func (c *Conn) Close() error {
	return c.raw.Close()
}

// Dial establishes one connection per cfg, wrapping in TLS when enabled.
func Dial(ctx context.Context, cfg DialConfig) (*Conn, error) {
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	rawConn, err := dialer.DialContext(ctx, "tcp", cfg.Address)
	if err != nil {
		return nil, err
	}
	if !cfg.TLSEnabled {
		return newConn(rawConn, cfg.Limits), nil
	}

	tlsConn, err := wrapClientTLS(ctx, rawConn, cfg)
	if err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	return newConn(tlsConn, cfg.Limits), nil
}

// Listen builds a TCP listener, TLS-wrapped when cert and key are set.
func Listen(cfg ListenConfig) (net.Listener, error) {
	if cfg.TLSCertFile == "" || cfg.TLSKeyFile == "" {
		return net.Listen("tcp", cfg.Address)
	}
	tlsCfg, err := serverTLSConfig(cfg)
	if err != nil {
		return nil, err
	}
	return listenTLS(cfg.Address, tlsCfg)
}
