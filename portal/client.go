package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://my.telegram.org"
	DefaultTimeout = 4 * time.Second

	maxResponseBytes = 10 << 20 // 10 MiB
	formContentType  = "application/x-www-form-urlencoded; charset=UTF-8"
)

// Client talks to my.telegram.org. It keeps no session state: the token
// returned by SignIn is passed back by the caller on every later call.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

type options struct {
	baseURL    string
	timeout    time.Duration
	proxy      *url.URL
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*options)

// WithBaseURL points the client at another portal host, e.g. a test server.
func WithBaseURL(baseURL string) Option {
	return func(o *options) { o.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithTimeout sets the deadline applied to every request.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithProxy routes all requests through proxyURL.
func WithProxy(proxyURL *url.URL) Option {
	return func(o *options) { o.proxy = proxyURL }
}

// WithHTTPClient replaces the underlying client. Timeout and proxy options are
// ignored when it is set.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// NewClient creates a portal client. Environment proxy variables are not
// consulted; only WithProxy enables a proxy.
func NewClient(opts ...Option) *Client {
	o := options{
		baseURL: DefaultBaseURL,
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	httpClient := o.httpClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.Proxy = nil
		if o.proxy != nil {
			transport.Proxy = http.ProxyURL(o.proxy)
		}
		httpClient = &http.Client{
			Timeout:   o.timeout,
			Transport: transport,
		}
	}

	return &Client{
		baseURL: o.baseURL,
		http:    httpClient,
		log:     o.logger,
	}
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (r *response) ok() bool {
	return r.status >= 200 && r.status < 300
}

func (r *response) text() string {
	return string(r.body)
}

func (r *response) isJSON() bool {
	mediaType, _, err := mime.ParseMediaType(r.header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

// do sends one request. form is sent urlencoded when non-nil; token is
// attached as the session cookie when non-empty.
func (c *Client) do(ctx context.Context, op, method, path string, form url.Values, token string) (*response, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("portal: create %s request: %w", op, err)
	}
	if form != nil {
		req.Header.Set("Content-Type", formContentType)
	}
	if token != "" {
		req.Header.Set("Cookie", SessionCookieName+"="+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, NewTransportError(op, 0, err)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	_ = resp.Body.Close()
	if err != nil {
		return nil, NewTransportError(op, 0, fmt.Errorf("read response: %w", err))
	}

	return &response{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

// RequestConfirmationCode asks the portal to send a login code to the phone's
// Telegram account. It returns the random hash needed by SignIn, or an empty
// string when the portal answered without one (unknown phone, too many tries).
func (c *Client) RequestConfirmationCode(ctx context.Context, phone string) (string, error) {
	number, err := NormalizePhone(phone)
	if err != nil {
		return "", err
	}

	c.log.Debug("portal.RequestConfirmationCode called", zap.String("phone", number.Masked()))

	resp, err := c.do(ctx, "send_password", http.MethodPost, routeSendPassword, url.Values{"phone": {number.String()}}, "")
	if err != nil {
		return "", err
	}
	if !resp.ok() {
		return "", NewTransportError("send_password", resp.status, nil)
	}

	var payload struct {
		RandomHash string `json:"random_hash"`
	}
	if err := json.Unmarshal(resp.body, &payload); err != nil || payload.RandomHash == "" {
		c.log.Warn("portal.RequestConfirmationCode response has no random_hash",
			zap.String("phone", number.Masked()),
			zap.String("body", truncate(resp.text(), 200)),
		)
		return "", nil
	}

	c.log.Debug("portal.RequestConfirmationCode succeeded", zap.String("phone", number.Masked()))
	return payload.RandomHash, nil
}

// SignIn exchanges the confirmation code for the stel_token session cookie.
func (c *Client) SignIn(ctx context.Context, phone, randomHash, code string) (string, error) {
	number, err := NormalizePhone(phone)
	if err != nil {
		return "", err
	}

	c.log.Debug("portal.SignIn called", zap.String("phone", number.Masked()))

	form := url.Values{
		"phone":       {number.String()},
		"random_hash": {randomHash},
		"password":    {code},
	}
	resp, err := c.do(ctx, "login", http.MethodPost, routeLogin, form, "")
	if err != nil {
		return "", err
	}

	if resp.text() == invalidCodeBody {
		return "", NewAuthenticationError("invalid confirmation code or hash")
	}
	if !resp.ok() {
		return "", NewTransportError("login", resp.status, nil)
	}

	cookies := resp.header.Values("Set-Cookie")
	if len(cookies) == 0 {
		return "", NewSessionError("no Set-Cookie header in login response")
	}

	token, ok := sessionCookieValue(cookies, SessionCookieName)
	if !ok {
		return "", NewSessionError(SessionCookieName + " cookie not found in login response")
	}

	c.log.Debug("portal.SignIn succeeded", zap.String("phone", number.Masked()))
	return token, nil
}

// sessionCookieValue scans raw Set-Cookie values for name. Only the first
// attribute of each value (the name=value pair) is considered.
func sessionCookieValue(setCookies []string, name string) (string, bool) {
	for _, raw := range setCookies {
		pair, _, _ := strings.Cut(raw, ";")
		key, value, found := strings.Cut(strings.TrimSpace(pair), "=")
		if !found || strings.TrimSpace(key) != name {
			continue
		}
		if value = strings.TrimSpace(value); value != "" {
			return value, true
		}
	}
	return "", false
}

// CreateApplication loads the apps page for its form hash and submits app.
// On success the submitted app is returned unchanged; the portal does not
// echo the created registration.
func (c *Client) CreateApplication(ctx context.Context, token string, app App) (App, error) {
	c.log.Debug("portal.CreateApplication called",
		zap.String("app_shortname", app.ShortName),
		zap.String("app_platform", string(app.Platform)),
	)

	doc, err := c.appsPage(ctx, token)
	if err != nil {
		return App{}, err
	}

	hash, ok := findFormFieldValue(doc, "hash")
	if !ok || hash == "" {
		return App{}, NewScrapeError("hash", "creation form not found on apps page")
	}

	resp, err := c.do(ctx, "create_app", http.MethodPost, routeCreateApp, app.formValues(hash), token)
	if err != nil {
		return App{}, err
	}
	if err := creationResult(resp); err != nil {
		return App{}, err
	}

	c.log.Debug("portal.CreateApplication succeeded", zap.String("app_shortname", app.ShortName))
	return app, nil
}

// creationResult interprets the /apps/create response. The portal answers
// with an HTML fragment: an empty body means no form errors, any text that
// mentions "incorrect" or "error" is a rejection.
func creationResult(resp *response) error {
	if !resp.isJSON() {
		lowered := strings.ToLower(resp.text())
		if strings.Contains(lowered, "incorrect") || strings.Contains(lowered, "error") {
			return NewAppCreationError(lowered)
		}
	}
	if !resp.ok() {
		return NewTransportError("create_app", resp.status, nil)
	}
	return nil
}

// GetCredentials scrapes api_id and api_hash from the apps page.
func (c *Client) GetCredentials(ctx context.Context, token string) (Credentials, error) {
	c.log.Debug("portal.GetCredentials called")

	doc, err := c.appsPage(ctx, token)
	if err != nil {
		return Credentials{}, err
	}

	creds := findCredentialFields(doc)
	if creds.APIID == "" {
		return Credentials{}, NewScrapeError(fieldAppID, "api_id not found on apps page")
	}
	if creds.APIHash == "" {
		return Credentials{}, NewScrapeError(fieldAppHash, "api_hash not found on apps page")
	}

	c.log.Debug("portal.GetCredentials succeeded", zap.String("api_id", creds.APIID))
	return creds, nil
}

func (c *Client) appsPage(ctx context.Context, token string) (*goquery.Document, error) {
	resp, err := c.do(ctx, "apps", http.MethodGet, routeApps, nil, token)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, NewTransportError("apps", resp.status, nil)
	}

	doc, err := parseDocument(bytes.NewReader(resp.body))
	if err != nil {
		return nil, NewScrapeError("apps", fmt.Sprintf("parse page: %v", err))
	}
	return doc, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
