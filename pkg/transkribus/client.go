// Package transkribus is a REST client for the Transkribus document-analysis
// service. It implements the remote interfaces of pkg/core.
package transkribus

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/core"
	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/security"
)

// DefaultBaseURL is the public TrpServer REST endpoint.
const DefaultBaseURL = "https://transkribus.eu/TrpServer/rest"

const (
	sessionCookie   = "JSESSIONID"
	maxResponseSize = 32 << 20
)

var _ core.Remote = (*Client)(nil)

// Client talks to the Transkribus REST API. A Client holds one session and
// is safe for concurrent use once logged in.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger

	layout    LayoutParams
	ocrEngine OCREngine

	mu      sync.RWMutex
	session string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides DefaultBaseURL.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithLayoutParams overrides DefaultLayoutParams.
func WithLayoutParams(p LayoutParams) Option {
	return func(c *Client) {
		c.layout = p
	}
}

// WithOCREngine selects the recognition engine, OCRLegacy by default.
func WithOCREngine(e OCREngine) Option {
	return func(c *Client) {
		if e != "" {
			c.ocrEngine = e
		}
	}
}

// WithSession reuses an existing session id instead of logging in.
func WithSession(id string) Option {
	return func(c *Client) {
		c.session = id
	}
}

// New creates a client. Call Login before any other method unless
// WithSession was given.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		http:      &http.Client{Timeout: 2 * time.Minute},
		logger:    slog.Default(),
		layout:    DefaultLayoutParams(),
		ocrEngine: OCRLegacy,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type loginResponse struct {
	SessionID string `xml:"sessionId"`
}

// Login authenticates and stores the session id for later requests.
func (c *Client) Login(ctx context.Context, user, password string) error {
	form := url.Values{"user": {user}, "pw": {password}}
	body, err := c.request(ctx, requestSpec{
		op:          "login",
		method:      http.MethodPost,
		path:        "/auth/login",
		body:        strings.NewReader(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
		accept:      "application/xml",
		anonymous:   true,
	})
	if err != nil {
		return fmt.Errorf("transkribus: %s", security.Redact(err.Error(), password))
	}

	var lr loginResponse
	if err := xml.Unmarshal(body, &lr); err != nil {
		return &core.ParseError{What: "login response", Err: err}
	}
	if strings.TrimSpace(lr.SessionID) == "" {
		return &core.ParseError{What: "login response", Raw: string(body)}
	}

	c.mu.Lock()
	c.session = strings.TrimSpace(lr.SessionID)
	c.mu.Unlock()
	c.logger.Info("transkribus login succeeded", "user", user)
	return nil
}

// SessionID returns the current session id.
func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

type requestSpec struct {
	op          string
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	accept      string
	anonymous   bool
}

// request performs one API call and returns the response body of a 2xx
// response. Other statuses become *core.HTTPError.
func (c *Client) request(ctx context.Context, rs requestSpec) ([]byte, error) {
	u := c.baseURL + rs.path
	if len(rs.query) > 0 {
		u += "?" + rs.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, rs.method, u, rs.body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", rs.op, err)
	}
	if rs.contentType != "" {
		req.Header.Set("Content-Type", rs.contentType)
	}
	if rs.accept != "" {
		req.Header.Set("Accept", rs.accept)
	} else {
		req.Header.Set("Accept", "application/json")
	}
	if !rs.anonymous {
		session := c.SessionID()
		if session == "" {
			return nil, core.ErrNotLoggedIn
		}
		req.AddCookie(&http.Cookie{Name: sessionCookie, Value: session})
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rs.op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", rs.op, err)
	}

	c.logger.Debug("transkribus request",
		"op", rs.op,
		"method", rs.method,
		"path", rs.path,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return nil, &core.HTTPError{
			Op:         rs.op,
			StatusCode: resp.StatusCode,
			Body:       security.SanitizeErrorMessage(string(bytes.TrimSpace(raw))),
		}
	}
	return raw, nil
}
