package portal

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-shiori/dom"
	"golang.org/x/net/html"
)

// Session carries the cookie captured from a successful login. The
// CSRF token used during login is scoped to that one attempt and never
// leaves this file.
type Session struct {
	Cookie string
}

// Login authenticates against the portal: fetch the login page, lift
// the anti-forgery token from its hidden form field, then post the
// credentials form. The Set-Cookie headers of the final response are
// joined into the session cookie.
func (c *Client) Login(ctx context.Context, username, password string) (Session, error) {
	token, err := c.fetchLoginToken(ctx)
	if err != nil {
		return Session{}, err
	}

	form := url.Values{}
	form.Set("login_id", username)
	form.Set("password", password)
	form.Set("_token", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.LoginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Session{}, fmt.Errorf("portal: build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.setCommonHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return Session{}, fmt.Errorf("portal: login post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Session{}, fmt.Errorf("%w: status %d", ErrLoginFailed, resp.StatusCode)
	}

	cookie := strings.Join(resp.Header.Values("Set-Cookie"), "; ")
	return Session{Cookie: cookie}, nil
}

func (c *Client) fetchLoginToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.LoginURL, nil)
	if err != nil {
		return "", fmt.Errorf("portal: build login page request: %w", err)
	}
	c.setCommonHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("portal: fetch login page: %w", err)
	}
	defer resp.Body.Close()

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return "", fmt.Errorf("portal: parse login page: %w", err)
	}

	for _, input := range dom.GetElementsByTagName(doc, "input") {
		if dom.GetAttribute(input, "name") != "_token" {
			continue
		}
		if v := strings.TrimSpace(dom.GetAttribute(input, "value")); v != "" {
			return v, nil
		}
	}
	return "", ErrTokenNotFound
}
