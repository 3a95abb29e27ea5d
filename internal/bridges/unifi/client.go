package unifi

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/nerrad567/gray-logic-unifi/internal/jsontree"
)

// HTTP client constants.
const (
	// defaultRequestTimeout applies when ClientConfig.Timeout is zero.
	defaultRequestTimeout = 30 * time.Second

	// maxResponseBytes bounds a single controller response.
	maxResponseBytes = 64 << 20
)

// ClientConfig configures an HTTPClient.
type ClientConfig struct {
	// Host and Port locate the controller.
	Host string
	Port int

	// BaseURL overrides Host and Port, e.g. "https://unifi.local/proxy/network".
	BaseURL string

	// InsecureSkipVerify disables TLS certificate verification.
	// Controllers usually ship self-signed certificates.
	InsecureSkipVerify bool

	// Timeout bounds each request.
	Timeout time.Duration
}

// HTTPClient talks to a UniFi Network controller over its JSON API.
//
// Sessions are cookie based: Login stores the session cookie in the client's
// jar and Logout discards it on the controller side.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient creates a controller client.
func NewHTTPClient(cfg ClientConfig) (*HTTPClient, error) {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		if cfg.Host == "" {
			return nil, fmt.Errorf("controller host is required")
		}
		baseURL = "https://" + net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone() //nolint:errcheck // DefaultTransport is always *http.Transport
	transport.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // Opt-in for self-signed controller certificates
		MinVersion:         tls.VersionTLS12,
	}

	return &HTTPClient{
		baseURL: baseURL,
		http: &http.Client{
			Jar:       jar,
			Timeout:   timeout,
			Transport: transport,
		},
	}, nil
}

// Login implements Controller.
func (c *HTTPClient) Login(ctx context.Context, username, password string) error {
	body, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return fmt.Errorf("encoding login: %w", err)
	}

	if _, err := c.call(ctx, http.MethodPost, "/api/login", body); err != nil {
		return fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}
	return nil
}

// SiteStats implements Controller.
func (c *HTTPClient) SiteStats(ctx context.Context) ([]jsontree.Node, error) {
	data, err := c.call(ctx, http.MethodGet, "/api/stat/sites", nil)
	if err != nil {
		return nil, err
	}
	arr, ok := data.([]jsontree.Node)
	if !ok {
		return nil, fmt.Errorf("%w: site list is %s, not an array", ErrControllerResponse, jsontree.KindOf(data))
	}
	return arr, nil
}

// SiteSysinfo implements Controller.
func (c *HTTPClient) SiteSysinfo(ctx context.Context, sites []string) ([]jsontree.Node, error) {
	return c.perSite(ctx, sites, "stat/sysinfo")
}

// ClientDevices implements Controller.
func (c *HTTPClient) ClientDevices(ctx context.Context, sites []string) ([]jsontree.Node, error) {
	return c.perSite(ctx, sites, "stat/sta")
}

// AccessDevices implements Controller.
func (c *HTTPClient) AccessDevices(ctx context.Context, sites []string) ([]jsontree.Node, error) {
	return c.perSite(ctx, sites, "stat/device")
}

// Logout implements Controller.
func (c *HTTPClient) Logout(ctx context.Context) error {
	_, err := c.call(ctx, http.MethodPost, "/logout", nil)
	return err
}

// perSite fetches /api/s/<site>/<endpoint> for each site in order.
func (c *HTTPClient) perSite(ctx context.Context, sites []string, endpoint string) ([]jsontree.Node, error) {
	out := make([]jsontree.Node, 0, len(sites))
	for _, site := range sites {
		data, err := c.call(ctx, http.MethodGet, "/api/s/"+url.PathEscape(site)+"/"+endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("site %s: %w", site, err)
		}
		out = append(out, data)
	}
	return out, nil
}

// call performs one request and returns the envelope's data member.
// A response without an envelope (logout) yields Undefined.
func (c *HTTPClient) call(ctx context.Context, method, path string, body []byte) (jsontree.Node, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: building %s %s: %w", ErrRequestFailed, method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrRequestFailed, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrRequestFailed, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if msg := gjson.GetBytes(raw, "meta.msg").String(); msg != "" {
			return nil, fmt.Errorf("%w: %s %s: %s (%s)", ErrRequestFailed, method, path, resp.Status, msg)
		}
		return nil, fmt.Errorf("%w: %s %s: %s", ErrRequestFailed, method, path, resp.Status)
	}

	return parseEnvelope(raw)
}

// parseEnvelope unwraps {"meta":{"rc":"ok"},"data":...}.
func parseEnvelope(raw []byte) (jsontree.Node, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return jsontree.Undefined, nil
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: response is not valid JSON", ErrControllerResponse)
	}

	env := gjson.ParseBytes(raw)
	if rc := env.Get("meta.rc"); rc.Exists() && rc.String() != "ok" {
		msg := env.Get("meta.msg").String()
		return nil, fmt.Errorf("%w: rc=%s msg=%s", ErrControllerResponse, rc.String(), msg)
	}
	return jsontree.FromResult(env.Get("data")), nil
}
