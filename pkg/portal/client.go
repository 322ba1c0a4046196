// Package portal provides HTTP access to the upstream academic portal.
// The portal exposes no documented API: outcomes are communicated through
// status codes, redirect locations and incidental HTML markers, so the
// client never follows redirects and always surfaces the raw response.
package portal

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	// loginPath is both the login form endpoint and the reachability probe.
	loginPath = "/jsxsd/xk/LoginToXk"

	// profilePath serves the personal information page.
	profilePath = "/jsxsd/grxx/xsxx"

	// gradesPath serves the grade query result table.
	gradesPath = "/jsxsd/kscj/cjcx_list"

	// schedulePath serves the weekly timetable grid.
	schedulePath = "/jsxsd/xskb/xskb_list.do"

	// semesterParam is the term selector field used across portal pages.
	semesterParam = "xnxq01id"

	// sampleLimit bounds HTML samples carried in diagnostics.
	sampleLimit = 200
)

// Config configures the portal client.
type Config struct {
	BaseURL            string
	HealthPath         string
	ConnectTimeout     time.Duration
	ReadTimeout        time.Duration
	InsecureSkipVerify bool
	UserAgent          string
	Encoder            CredentialEncoder
}

// Client executes requests against the upstream portal. It holds no session
// state; callers thread cookie maps through explicitly.
type Client struct {
	baseURL    string
	healthPath string
	userAgent  string
	encode     CredentialEncoder
	httpClient *http.Client
}

// Page is a raw upstream response.
type Page struct {
	StatusCode int
	URL        string
	Location   string
	Body       string
	Cookies    map[string]string

	contentType string
}

// Sample returns a bounded prefix of the page body for diagnostics.
func (p *Page) Sample() string {
	return truncate(p.Body, sampleLimit)
}

// HealthResult describes one reachability probe of the portal.
type HealthResult struct {
	StatusCode    int
	URL           string
	Location      string
	Sample        string
	ContentLength int
	ContentType   string
}

// Reachable reports whether the portal answered at all. Redirects and
// auth rejections still mean the site is up.
func (h *HealthResult) Reachable() bool {
	return h.StatusCode >= 200 && h.StatusCode < 500
}

// NewClient creates a portal client from config.
func NewClient(cfg Config) *Client {
	if cfg.HealthPath == "" {
		cfg.HealthPath = loginPath
	}
	if cfg.Encoder == nil {
		cfg.Encoder = EncodeCredentials
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		TLSClientConfig: &tls.Config{
			// #nosec G402 -- the institution's certificate is periodically
			// expired; the bypass is opt-in via config.
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		healthPath: cfg.HealthPath,
		userAgent:  cfg.UserAgent,
		encode:     cfg.Encoder,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.ConnectTimeout + cfg.ReadTimeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				// Location headers carry the login outcome; never follow.
				return http.ErrUseLastResponse
			},
		},
	}
}

// Health probes the portal's login entry point and reports the raw outcome.
func (c *Client) Health(ctx context.Context, requestID string) (*HealthResult, error) {
	page, err := c.get(ctx, c.healthPath, nil, nil, requestID)
	if err != nil {
		return nil, err
	}

	return &HealthResult{
		StatusCode:    page.StatusCode,
		URL:           page.URL,
		Location:      page.Location,
		Sample:        page.Sample(),
		ContentLength: len(page.Body),
		ContentType:   page.contentType,
	}, nil
}

// FetchProfile retrieves the personal information page.
func (c *Client) FetchProfile(ctx context.Context, cookies map[string]string, requestID string) (*Page, error) {
	return c.get(ctx, profilePath, url.Values{"xx": {"1"}}, cookies, requestID)
}

// FetchGrades retrieves the grade table, optionally scoped to one semester.
func (c *Client) FetchGrades(ctx context.Context, cookies map[string]string, semester, requestID string) (*Page, error) {
	form := url.Values{
		"kksj": {semester},
		"kcxz": {""},
		"kcmc": {""},
		"xsfs": {"all"},
	}
	return c.postForm(ctx, gradesPath, form, cookies, requestID)
}

// FetchSchedule retrieves the weekly timetable, optionally scoped to one term.
func (c *Client) FetchSchedule(ctx context.Context, cookies map[string]string, term, requestID string) (*Page, error) {
	query := url.Values{}
	if term != "" {
		query.Set(semesterParam, term)
	}
	return c.get(ctx, schedulePath, query, cookies, requestID)
}

// FetchSemesterOptions retrieves a page carrying the term dropdown. The
// timetable page always embeds it.
func (c *Client) FetchSemesterOptions(ctx context.Context, cookies map[string]string, requestID string) (*Page, error) {
	return c.get(ctx, schedulePath, nil, cookies, requestID)
}

func (c *Client) get(ctx context.Context, path string, query url.Values, cookies map[string]string, requestID string) (*Page, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(req, cookies, requestID)

	return c.do(req)
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, cookies map[string]string, requestID string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(req, cookies, requestID)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.do(req)
}

func (c *Client) setHeaders(req *http.Request, cookies map[string]string, requestID string) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	if requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}
	for _, name := range sortedKeys(cookies) {
		req.AddCookie(&http.Cookie{Name: name, Value: cookies[name]})
	}
}

func (c *Client) do(req *http.Request) (*Page, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("portal request %s: %w", req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading portal response: %w", err)
	}

	cookies := make(map[string]string)
	for _, ck := range resp.Cookies() {
		cookies[ck.Name] = ck.Value
	}

	return &Page{
		StatusCode:  resp.StatusCode,
		URL:         req.URL.String(),
		Location:    resp.Header.Get("Location"),
		Body:        string(body),
		Cookies:     cookies,
		contentType: resp.Header.Get("Content-Type"),
	}, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
