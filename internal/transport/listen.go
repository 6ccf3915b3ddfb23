package transport

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/quic-go/quic-go"
)

// Listener accepts incoming peer connections and completes their three-
// stream handshake before handing them back as a *Conn.
type Listener struct {
	ql *quic.Listener
}

// Listen binds addr and returns a Listener ready to Accept peer connections.
func Listen(addr string, tlsConf *tls.Config, quicConf *quic.Config) (*Listener, error) {
	ql, err := quic.ListenAddr(addr, tlsConf, quicConf)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	return &Listener{ql: ql}, nil
}

// Accept blocks for the next incoming connection and its stream handshake.
func (l *Listener) Accept(ctx context.Context) (*Conn, error) {
	qconn, err := l.ql.Accept(ctx)
	if err != nil {
		return nil, fmt.Errorf("transport: accept: %w", err)
	}
	return Accept(ctx, qconn)
}

// Addr returns the listener's bound address.
func (l *Listener) Addr() string {
	return l.ql.Addr().String()
}

// Close stops accepting new connections.
func (l *Listener) Close() error {
	return l.ql.Close()
}
