package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"

	"github.com/quic-go/quic-go"
)

// Conn wraps one QUIC connection carrying the three logical streams a
// Discret peer connection needs. Dial and Accept open all three up front,
// in a fixed order, so both sides agree on stream identity without an
// extra handshake.
type Conn struct {
	qconn quic.Connection

	queries io.ReadWriteCloser
	answers io.ReadWriteCloser
	events  io.ReadWriteCloser
}

// Dial opens a QUIC connection to addr and establishes the three logical
// streams, the initiating side's order (queries, then answers, then
// events) matching what Accept expects on the listening side.
func Dial(ctx context.Context, addr string, tlsConf *tls.Config, quicConf *quic.Config) (*Conn, error) {
	qconn, err := quic.DialAddr(ctx, addr, tlsConf, quicConf)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	c := &Conn{qconn: qconn}
	if c.queries, err = qconn.OpenStreamSync(ctx); err != nil {
		return nil, fmt.Errorf("transport: open query stream: %w", err)
	}
	if c.answers, err = qconn.OpenStreamSync(ctx); err != nil {
		return nil, fmt.Errorf("transport: open answer stream: %w", err)
	}
	if c.events, err = qconn.OpenStreamSync(ctx); err != nil {
		return nil, fmt.Errorf("transport: open event stream: %w", err)
	}
	return c, nil
}

// Accept completes the listening side of the handshake Dial performs,
// accepting the three streams in the same fixed order.
func Accept(ctx context.Context, qconn quic.Connection) (*Conn, error) {
	c := &Conn{qconn: qconn}
	var err error
	if c.queries, err = qconn.AcceptStream(ctx); err != nil {
		return nil, fmt.Errorf("transport: accept query stream: %w", err)
	}
	if c.answers, err = qconn.AcceptStream(ctx); err != nil {
		return nil, fmt.Errorf("transport: accept answer stream: %w", err)
	}
	if c.events, err = qconn.AcceptStream(ctx); err != nil {
		return nil, fmt.Errorf("transport: accept event stream: %w", err)
	}
	return c, nil
}

// SendQuery writes q onto the query stream.
func (c *Conn) SendQuery(q Query) error {
	b, err := EncodeQuery(q)
	if err != nil {
		return err
	}
	return WriteFrame(c.queries, KindQuery, b)
}

// RecvQuery reads the next frame off the query stream.
func (c *Conn) RecvQuery() (Query, error) {
	_, b, err := ReadFrame(c.queries)
	if err != nil {
		return Query{}, err
	}
	return DecodeQuery(b)
}

// SendAnswer writes a onto the answer stream.
func (c *Conn) SendAnswer(a Answer) error {
	b, err := EncodeAnswer(a)
	if err != nil {
		return err
	}
	return WriteFrame(c.answers, KindAnswer, b)
}

// RecvAnswer reads the next frame off the answer stream.
func (c *Conn) RecvAnswer() (Answer, error) {
	_, b, err := ReadFrame(c.answers)
	if err != nil {
		return Answer{}, err
	}
	return DecodeAnswer(b)
}

// SendEvent writes e onto the event stream.
func (c *Conn) SendEvent(e RemoteEvent) error {
	b, err := EncodeEvent(e)
	if err != nil {
		return err
	}
	return WriteFrame(c.events, KindEvent, b)
}

// RecvEvent reads the next frame off the event stream.
func (c *Conn) RecvEvent() (RemoteEvent, error) {
	_, b, err := ReadFrame(c.events)
	if err != nil {
		return RemoteEvent{}, err
	}
	return DecodeEvent(b)
}

// Close tears down all three streams and the underlying QUIC connection.
func (c *Conn) Close() error {
	c.queries.Close()
	c.answers.Close()
	c.events.Close()
	return c.qconn.CloseWithError(0, "closed")
}
