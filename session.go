package ppg

import (
	"context"

	"github.com/prisma/ppg-go/internal/transport"
)

// Session owns one WebSocket connection. Statements on a session are
// pipelined: concurrent calls interleave at the statement boundary, never
// within one statement, and responses arrive in submission order.
type Session struct {
	client *Client
	ws     *transport.WS
}

// Session dials the WebSocket endpoint and authenticates.
func (c *Client) Session(ctx context.Context) (*Session, error) {
	ws, err := transport.DialWS(ctx, transport.WSConfig{
		Endpoint: c.endpoint,
		User:     c.info.User,
		Password: c.info.Password,
		Database: c.info.Database,
		Logger:   c.logger,
	})
	if err != nil {
		return nil, err
	}
	return &Session{client: c, ws: ws}, nil
}

// Query runs a statement on this session and returns its row stream.
func (s *Session) Query(ctx context.Context, sql string, args ...any) (*Rows, error) {
	return s.client.query(ctx, s.ws, sql, args)
}

// Exec runs a statement on this session and returns the affected row count.
func (s *Session) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	return s.client.exec(ctx, s.ws, sql, args)
}

// Active reports whether the underlying socket is still open.
func (s *Session) Active() bool {
	return s.ws.Active()
}

// Close closes the socket with a normal closure. The server rolls back any
// transaction still open on the connection. Close is idempotent.
func (s *Session) Close() error {
	return s.ws.Close()
}

// Transaction opens a session, runs fn inside BEGIN/COMMIT and closes the
// session on every exit path. When fn returns an error the transaction is
// rolled back and the error is returned unchanged.
func (c *Client) Transaction(ctx context.Context, fn func(ctx context.Context, s *Session) error) error {
	s, err := c.Session(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.Exec(ctx, "BEGIN"); err != nil {
		return err
	}
	if err := fn(ctx, s); err != nil {
		// Best effort: the session close would roll back anyway.
		_, _ = s.Exec(ctx, "ROLLBACK")
		return err
	}
	if _, err := s.Exec(ctx, "COMMIT"); err != nil {
		return err
	}
	return nil
}
