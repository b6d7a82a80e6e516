// Package ppg is a Go client for Prisma Postgres serverless endpoints. It
// speaks a framed query protocol over two interchangeable transports: a
// request/response HTTP transport and a pipelined WebSocket session.
package ppg

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/charmbracelet/log"

	"github.com/prisma/ppg-go/internal/transport"
	"github.com/prisma/ppg-go/pgerror"
	"github.com/prisma/ppg-go/wire"
)

// Client executes statements against one database. Plain Query and Exec
// calls use the stateless HTTP transport; Session opens a WebSocket for
// pipelined statements, transactions and batches.
type Client struct {
	info     *ConnInfo
	endpoint *url.URL
	http     *transport.HTTP

	serializers []Serializer
	userParsers []Parser
	parsers     *parserTable
	logger      *log.Logger

	httpClient *http.Client
	keepalive  bool
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides the transport endpoint derived from the connection
// string, e.g. for a local development server.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if u, err := url.Parse(endpoint); err == nil {
			c.endpoint = u
		}
	}
}

// WithHTTPClient sets a custom HTTP client for the HTTP transport.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithKeepalive controls HTTP connection reuse across statements.
func WithKeepalive(keepalive bool) Option {
	return func(c *Client) {
		c.keepalive = keepalive
	}
}

// WithSerializers prepends user serializers; they are probed before the
// defaults.
func WithSerializers(serializers ...Serializer) Option {
	return func(c *Client) {
		c.serializers = append(c.serializers, serializers...)
	}
}

// WithParsers prepends user parsers; they take precedence over the defaults
// for their OIDs.
func WithParsers(parsers ...Parser) Option {
	return func(c *Client) {
		c.userParsers = append(c.userParsers, parsers...)
	}
}

// WithLogger sets the logger used by the client and its transports.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New parses the connection string and builds a client. No I/O happens
// until the first statement.
func New(connString string, opts ...Option) (*Client, error) {
	info, err := ParseConnString(connString)
	if err != nil {
		return nil, err
	}

	c := &Client{
		info:     info,
		endpoint: info.Endpoint,
		logger:   log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.parsers = newParserTable(c.userParsers)
	c.http = transport.NewHTTP(transport.HTTPConfig{
		Endpoint:  c.endpoint,
		User:      info.User,
		Password:  info.Password,
		Database:  info.Database,
		Keepalive: c.keepalive,
		Client:    c.httpClient,
		Logger:    c.logger,
	})
	return c, nil
}

// Query runs a statement over HTTP and returns its row stream.
func (c *Client) Query(ctx context.Context, sql string, args ...any) (*Rows, error) {
	return c.query(ctx, c.http, sql, args)
}

// Exec runs a statement over HTTP and returns the affected row count.
func (c *Client) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	return c.exec(ctx, c.http, sql, args)
}

func (c *Client) query(ctx context.Context, tr transport.Transport, sql string, args []any) (*Rows, error) {
	resp, err := c.statement(ctx, tr, wire.KindQuery, sql, args)
	if err != nil {
		return nil, err
	}
	return newRows(resp, c.parsers), nil
}

func (c *Client) exec(ctx context.Context, tr transport.Transport, sql string, args []any) (int64, error) {
	resp, err := c.statement(ctx, tr, wire.KindExec, sql, args)
	if err != nil {
		return 0, err
	}
	return affectedCount(ctx, resp)
}

func (c *Client) statement(ctx context.Context, tr transport.Transport, kind wire.Kind, sql string, args []any) (*transport.Response, error) {
	params, err := serialize(c.serializers, args)
	if err != nil {
		return nil, err
	}
	return tr.Statement(ctx, kind, sql, params)
}

// affectedCount reads the synthetic single-column exec result: one row whose
// only value is the decimal affected-row count.
func affectedCount(ctx context.Context, resp *transport.Response) (int64, error) {
	defer resp.Rows.Close()

	row, err := resp.Rows.Read(ctx)
	if err == io.EOF {
		return 0, fmt.Errorf("%w: exec returned no rows", pgerror.ErrProtocol)
	}
	if err != nil {
		return 0, err
	}
	if len(row) != 1 || row[0] == nil {
		return 0, fmt.Errorf("%w: malformed exec row", pgerror.ErrProtocol)
	}
	n, err := strconv.ParseInt(*row[0], 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: affected count %q is not a nonnegative integer", pgerror.ErrProtocol, *row[0])
	}

	// Drain to the terminal frame so a trailing error still surfaces.
	for {
		_, err := resp.Rows.Read(ctx)
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return 0, err
		}
	}
}
