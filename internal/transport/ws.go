package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/prisma/ppg-go/pgerror"
	"github.com/prisma/ppg-go/wire"
)

const (
	// Subprotocol identifies the framed query protocol during the handshake.
	Subprotocol = "prisma-postgres-1.0"

	websocketPath = "/db/websocket"

	// maxBufferedAmount is the send-buffer high-water mark. Sends wait for
	// the buffer to drain below it when the platform exposes its size.
	maxBufferedAmount = 1 << 20

	drainInitialWait = 5 * time.Millisecond
	drainMaxWait     = 100 * time.Millisecond

	handshakeTimeout = 45 * time.Second
	closeGracePeriod = 5 * time.Second
)

// WSConfig configures the WebSocket transport.
type WSConfig struct {
	Endpoint *url.URL
	User     string
	Password string
	Database string

	// BufferedAmount reports the number of unsent bytes buffered on the
	// socket, for platforms that track it. When nil, sends never wait.
	BufferedAmount func() int

	Dialer *websocket.Dialer
	Logger *log.Logger
}

// authMessage is the first text message after the socket opens. There is no
// explicit success frame; an open socket that is not closed with an error is
// considered authenticated.
type authMessage struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// WS is a single long-lived connection shared by all concurrent statements
// of a session. The send mutex is the only writer of the wire; the query
// queue is the only mutator of per-query state.
type WS struct {
	conn  *websocket.Conn
	queue *queryQueue
	log   *log.Logger

	sendMu         sync.Mutex
	bufferedAmount func() int

	closed  atomic.Bool
	failMu  sync.Mutex
	connErr error
}

// DialWS establishes the connection and sends the authentication frame.
func DialWS(ctx context.Context, cfg WSConfig) (*WS, error) {
	u := *cfg.Endpoint
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, pgerror.Validationf("unsupported endpoint scheme %q", u.Scheme)
	}
	u.Path = websocketPath
	if cfg.Database != "" {
		q := u.Query()
		q.Set("database", cfg.Database)
		u.RawQuery = q.Encode()
	}

	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		}
	}
	dialer.Subprotocols = []string{Subprotocol}

	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			return nil, pgerror.NewWebSocketError(string(body), resp.StatusCode, "", err)
		}
		return nil, pgerror.NewWebSocketError("dial failed", 0, "", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	t := &WS{
		conn:           conn,
		queue:          &queryQueue{},
		log:            logger,
		bufferedAmount: cfg.BufferedAmount,
	}

	auth, err := json.Marshal(authMessage{Username: cfg.User, Password: cfg.Password})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("marshal auth: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, auth); err != nil {
		conn.Close()
		return nil, pgerror.NewWebSocketError("send auth", 0, "", err)
	}

	t.log.Debug("websocket connected", "url", u.Redacted())
	go t.readLoop()
	return t, nil
}

// Active reports whether the socket is still open.
func (t *WS) Active() bool {
	return !t.closed.Load()
}

// Close performs a normal closure. Pending transactions are rolled back by
// the server when the connection drops.
func (t *WS) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.setErr(pgerror.ErrClosed)
	t.queue.abortAll(pgerror.ErrClosed)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "Normal closure")
	_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
	return t.conn.Close()
}

// Statement enqueues a query and sends its frames, then waits for the
// server's row description (or terminal frame).
func (t *WS) Statement(ctx context.Context, kind wire.Kind, sql string, params []wire.Param) (*Response, error) {
	await, err := t.StatementAsync(ctx, kind, sql, params)
	if err != nil {
		return nil, err
	}
	return await(ctx)
}

// StatementAsync sends the statement's frames without waiting for the
// response, so callers can pipeline several statements on one connection.
// The returned function waits for this statement's response.
func (t *WS) StatementAsync(ctx context.Context, kind wire.Kind, sql string, params []wire.Param) (func(context.Context) (*Response, error), error) {
	if t.closed.Load() {
		return nil, t.err()
	}

	desc, extended, err := wire.Encode(kind, sql, params)
	if err != nil {
		if errors.Is(err, wire.ErrUnsupportedParam) {
			return nil, pgerror.Validationf("%s", err)
		}
		return nil, err
	}
	// Streams collapse into single messages on this transport; materialize
	// them before taking the send lock so slow readers cannot stall the wire.
	for i := range extended {
		if err := extended[i].Materialize(); err != nil {
			return nil, err
		}
	}

	q := newRunningQuery()

	// The send mutex serializes whole statements: frames of two concurrent
	// statements never interleave, and queue order matches wire order.
	t.sendMu.Lock()
	if t.closed.Load() {
		t.sendMu.Unlock()
		return nil, t.err()
	}
	t.queue.push(q)
	err = t.sendFrames(ctx, desc, extended)
	t.sendMu.Unlock()

	if err != nil {
		t.queue.remove(q)
		q.abort(err)
		return nil, err
	}

	return func(ctx context.Context) (*Response, error) {
		select {
		case res := <-q.resultc:
			return res.resp, res.err
		case <-ctx.Done():
			// The protocol has no cancel frame; the query stays queued and
			// its rows are dropped when they arrive.
			return nil, ctx.Err()
		}
	}, nil
}

// sendFrames writes the descriptor and extended-parameter frames. Each frame
// is a URN header message followed by its payload message.
func (t *WS) sendFrames(ctx context.Context, desc wire.Descriptor, extended []wire.ExtendedParam) error {
	payload, err := json.Marshal(desc)
	if err != nil {
		return fmt.Errorf("marshal descriptor: %w", err)
	}
	if err := t.sendFrame(ctx, desc.URN(), websocket.TextMessage, payload); err != nil {
		return err
	}
	for _, ext := range extended {
		mt := websocket.TextMessage
		if ext.Format == wire.FormatBinary {
			mt = websocket.BinaryMessage
		}
		if err := t.sendFrame(ctx, ext.URN(), mt, ext.Data); err != nil {
			return err
		}
	}
	return nil
}

func (t *WS) sendFrame(ctx context.Context, urn string, payloadType int, payload []byte) error {
	if err := t.waitForDrain(ctx); err != nil {
		return err
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, []byte(urn)); err != nil {
		return pgerror.NewWebSocketError("send frame header", 0, "", err)
	}
	if err := t.waitForDrain(ctx); err != nil {
		return err
	}
	if err := t.conn.WriteMessage(payloadType, payload); err != nil {
		return pgerror.NewWebSocketError("send frame payload", 0, "", err)
	}
	return nil
}

// waitForDrain blocks while the platform-reported send buffer is above the
// high-water mark, backing off exponentially from 5ms up to 100ms per wait.
func (t *WS) waitForDrain(ctx context.Context) error {
	if t.bufferedAmount == nil {
		return nil
	}
	boff := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(drainInitialWait),
		backoff.WithMaxInterval(drainMaxWait),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxElapsedTime(0),
	)
	for t.bufferedAmount() > maxBufferedAmount {
		timer := time.NewTimer(boff.NextBackOff())
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	return nil
}

// readLoop demultiplexes inbound frames. The read path is text-only: a URN
// header message alternates with a payload message, and any binary message
// is a protocol violation.
func (t *WS) readLoop() {
	var urn string
	expectingURN := true

	for {
		mt, data, err := t.conn.ReadMessage()
		if err != nil {
			t.fail(closeError(err))
			return
		}
		if mt == websocket.BinaryMessage {
			t.protocolViolation("binary message received")
			return
		}
		if mt != websocket.TextMessage {
			continue
		}

		if expectingURN {
			urn = string(data)
			expectingURN = false
			continue
		}
		expectingURN = true

		frame, err := wire.DecodeByURN(urn, data)
		if err != nil {
			t.protocolViolation(err.Error())
			return
		}
		if !t.dispatch(frame) {
			return
		}
	}
}

// dispatch applies one inbound frame to the head of the queue. Returns false
// when the connection must stop reading.
func (t *WS) dispatch(frame wire.Inbound) bool {
	head := t.queue.head()
	if head == nil {
		switch f := frame.(type) {
		case wire.ErrorFrame:
			// An error with no query in flight: treat as a connection-level
			// failure (the auth open question resolves here).
			t.fail(pgerror.NewWebSocketError(f.Message, 0, "", databaseError(f)))
			return false
		default:
			t.protocolViolation("frame received with no query in flight")
			return false
		}
	}

	switch f := frame.(type) {
	case wire.RowDescription:
		head.onDescription(f.Columns)
	case wire.DataRow:
		head.onRow(f.Values)
	case wire.CommandComplete:
		t.queue.pop()
		head.onComplete()
	case wire.ErrorFrame:
		// Query-local failure: reject this statement, keep the connection.
		t.queue.pop()
		head.onError(databaseError(f))
	default:
		t.protocolViolation(fmt.Sprintf("unexpected frame %T", frame))
		return false
	}
	return true
}

// fail terminates the connection: every queued query aborts and later
// statements observe the connection error.
func (t *WS) fail(err error) {
	first := !t.closed.Swap(true)
	if first {
		t.setErr(err)
	}
	// Abort unconditionally: a statement racing with the closure may have
	// enqueued after the flag was set.
	t.queue.abortAll(t.err())
	if first {
		t.conn.Close()
		t.log.Debug("websocket failed", "err", err)
	}
}

// protocolViolation aborts all queued queries and closes the socket with the
// protocol-error close code.
func (t *WS) protocolViolation(msg string) {
	err := pgerror.NewWebSocketError(msg, websocket.CloseProtocolError, msg,
		fmt.Errorf("%w: %s", pgerror.ErrProtocol, msg))
	first := !t.closed.Swap(true)
	if first {
		t.setErr(err)
	}
	t.queue.abortAll(t.err())
	if !first {
		return
	}
	closeMsg := websocket.FormatCloseMessage(websocket.CloseProtocolError, msg)
	_ = t.conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(closeGracePeriod))
	t.conn.Close()
	t.log.Debug("protocol violation", "reason", msg)
}

func (t *WS) setErr(err error) {
	t.failMu.Lock()
	if t.connErr == nil {
		t.connErr = err
	}
	t.failMu.Unlock()
}

func (t *WS) err() error {
	t.failMu.Lock()
	defer t.failMu.Unlock()
	if t.connErr != nil {
		return t.connErr
	}
	return pgerror.ErrClosed
}

// closeError maps a read failure to the transport error type, keeping the
// close code and reason when the peer sent a close frame.
func closeError(err error) error {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return pgerror.NewWebSocketError("connection closed", ce.Code, ce.Text, err)
	}
	return pgerror.NewWebSocketError(err.Error(), 0, "", err)
}
