package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/prisma/ppg-go/pgerror"
	"github.com/prisma/ppg-go/wire"
)

const queryPath = "/db/query_v2"

// HTTPConfig configures the HTTP transport.
type HTTPConfig struct {
	Endpoint *url.URL
	User     string
	Password string
	Database string

	// Keepalive controls HTTP connection reuse across statements.
	Keepalive bool

	// Client overrides the HTTP client. Transport settings derived from
	// Keepalive are only applied to the default client.
	Client *http.Client

	Logger *log.Logger
}

// HTTP is the stateless request/response transport. Each statement is an
// independent POST with a streaming multipart body and an NDJSON response.
type HTTP struct {
	endpoint *url.URL
	user     string
	password string
	database string
	client   *http.Client
	log      *log.Logger
}

// NewHTTP creates the HTTP transport.
func NewHTTP(cfg HTTPConfig) *HTTP {
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				Proxy:             http.ProxyFromEnvironment,
				DisableKeepAlives: !cfg.Keepalive,
			},
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &HTTP{
		endpoint: cfg.Endpoint,
		user:     cfg.User,
		password: cfg.Password,
		database: cfg.Database,
		client:   client,
		log:      logger,
	}
}

// Statement encodes the statement into frames, posts them as a streaming
// multipart body and returns the parsed response. The NDJSON stream is
// primed so that the column set is available before this call returns.
func (t *HTTP) Statement(ctx context.Context, kind wire.Kind, sql string, params []wire.Param) (*Response, error) {
	desc, extended, err := wire.Encode(kind, sql, params)
	if err != nil {
		if errors.Is(err, wire.ErrUnsupportedParam) {
			return nil, pgerror.Validationf("%s", err)
		}
		return nil, err
	}

	body, contentType := multipartBody(desc, extended)
	u := t.endpoint.JoinPath(queryPath)
	if t.database != "" {
		q := u.Query()
		q.Set("db", t.database)
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), body)
	if err != nil {
		body.Close()
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(t.user, t.password)
	req.Header.Set("Content-Type", contentType)

	t.log.Debug("statement request", "kind", kind, "extended", len(extended))

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post statement: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		return nil, &pgerror.HTTPResponseError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(respBody)),
		}
	}
	if resp.Body == nil {
		return nil, fmt.Errorf("%w: response has no body", pgerror.ErrProtocol)
	}

	result, err := newNDJSONRows(resp.Body)
	if err != nil {
		resp.Body.Close()
		return nil, err
	}
	return result, nil
}

// multipartBody assembles the outbound frames into a streaming multipart
// body. The request is sent half-duplex: parts are written into a pipe as
// the HTTP client consumes it.
func multipartBody(desc wire.Descriptor, extended []wire.ExtendedParam) (io.ReadCloser, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	boundary := newBoundary()
	// The boundary is chosen so it cannot collide with JSON or opaque payloads.
	_ = mw.SetBoundary(boundary)

	go func() {
		err := writeParts(mw, desc, extended)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if err := mw.Close(); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.Close()
	}()

	contentType := fmt.Sprintf("multipart/form-data; profile=%q; boundary=%s", wire.URNQuery, boundary)
	return pr, contentType
}

func writeParts(mw *multipart.Writer, desc wire.Descriptor, extended []wire.ExtendedParam) error {
	data, err := desc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal descriptor: %w", err)
	}
	part, err := createPart(mw, wire.URNDescriptor, fmt.Sprintf("application/json; profile=%q", wire.URNDescriptor))
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("write descriptor: %w", err)
	}

	for i, ext := range extended {
		urn := ext.URN()
		contentType := fmt.Sprintf("application/octet-stream; profile=%q", urn)
		if ext.Format == wire.FormatText {
			contentType = fmt.Sprintf("text/plain; charset=utf-8; profile=%q", urn)
		}
		part, err := createPart(mw, urn, contentType)
		if err != nil {
			return err
		}
		// Streamed payloads are forwarded chunk by chunk.
		if _, err := io.Copy(part, ext.Payload()); err != nil {
			return fmt.Errorf("write parameter %d: %w", i, err)
		}
	}
	return nil
}

func createPart(mw *multipart.Writer, urn, contentType string) (io.Writer, error) {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q`, urn))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("create part %s: %w", urn, err)
	}
	return part, nil
}

func newBoundary() string {
	return fmt.Sprintf("----PPG%d%08x", time.Now().UnixNano(), rand.Uint32())
}
