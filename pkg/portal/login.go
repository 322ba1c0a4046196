package portal

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// LoginResult is the outcome of one authentication handshake.
type LoginResult struct {
	Success    bool
	StatusCode int
	Location   string
	Cookies    map[string]string
	Sample     string
}

// Login drives the portal authentication handshake: a warm-up GET of the
// login page (the portal issues its session cookie there), then a POST of
// the encoded credentials, both sharing one cookie set.
//
// Success is heuristic. A redirect that does not land back on the login
// flow is success; a 200 whose body carries the authenticated main-frame
// markers is success; everything else is a rejection. Network failures are
// returned as errors so callers can distinguish "unreachable" from
// "rejected".
func (c *Client) Login(ctx context.Context, username, password, requestID string) (*LoginResult, error) {
	warm, err := c.get(ctx, loginPath, nil, nil, requestID)
	if err != nil {
		return nil, fmt.Errorf("login warm-up: %w", err)
	}

	// Cookies issued during warm-up must accompany the credential POST.
	jar := make(map[string]string, len(warm.Cookies))
	for k, v := range warm.Cookies {
		jar[k] = v
	}

	form := url.Values{
		"userAccount":  {username},
		"userPassword": {""},
		"encoded":      {c.encode(username, password)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+loginPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building login request: %w", err)
	}
	c.setHeaders(req, jar, requestID)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	page, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("login submit: %w", err)
	}

	for k, v := range page.Cookies {
		jar[k] = v
	}

	return &LoginResult{
		Success:    loginSucceeded(page),
		StatusCode: page.StatusCode,
		Location:   page.Location,
		Cookies:    jar,
		Sample:     page.Sample(),
	}, nil
}

// loginSucceeded interprets the credential POST response.
func loginSucceeded(page *Page) bool {
	if page.StatusCode >= 300 && page.StatusCode < 400 {
		return !IsLoginLocation(page.Location)
	}
	if page.StatusCode == http.StatusOK {
		return LooksAuthenticated(page.Body)
	}
	return false
}
