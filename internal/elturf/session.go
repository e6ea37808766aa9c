package elturf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoCredentials = errors.New("elturf: ELTURF_USUARIO and ELTURF_CLAVE are required to log in")
	ErrLoginFailed   = errors.New("elturf: login did not yield a session cookie")
)

const (
	userInputID     = "form_contacto_usuario"
	passwordInputID = "form_contacto_passwd2"
)

func (c *Client) hasCredentials() bool {
	return strings.TrimSpace(c.cfg.ElturfUser) != "" && strings.TrimSpace(c.cfg.ElturfPassword) != ""
}

func (c *Client) hasSession() bool {
	for _, ck := range c.httpClient.Jar.Cookies(c.base) {
		if ck.Name == sessionCookie && ck.Value != "" {
			return true
		}
	}
	return false
}

// Login submits the site login form and caches the resulting cookies.
func (c *Client) Login(ctx context.Context) error {
	if !c.hasCredentials() {
		return ErrNoCredentials
	}
	loginURL := c.cfg.ElturfLoginURL
	if strings.TrimSpace(loginURL) == "" {
		loginURL = c.resolve("login")
	}

	action, form, err := c.loginForm(ctx, loginURL)
	if err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, action, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", loginURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("login request: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("login status %d: %w", resp.StatusCode, ErrLoginFailed)
	}
	if !c.hasSession() {
		return ErrLoginFailed
	}

	log.Info().Str("user", c.cfg.ElturfUser).Msg("elturf login ok")
	if err := c.saveCookies(); err != nil {
		log.Warn().Err(err).Str("path", c.cfg.CookiesPath).Msg("could not cache cookies")
	}
	return nil
}

// loginForm reads the login page and returns the form action with the
// credential fields and every hidden input filled in. When the page cannot
// be parsed it falls back to posting the bare credentials to the login URL.
func (c *Client) loginForm(ctx context.Context, loginURL string) (string, url.Values, error) {
	form := url.Values{}
	userField, passField := "usuario", "passwd2"
	action := loginURL

	if err := c.limiter.Wait(ctx); err != nil {
		return "", nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loginURL, nil)
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("login page: %w", err)
	}
	defer resp.Body.Close()

	if doc, err := goquery.NewDocumentFromReader(resp.Body); err == nil {
		user := doc.Find("#" + userInputID)
		formSel := user.Closest("form")
		if formSel.Length() > 0 {
			if href, ok := formSel.Attr("action"); ok && strings.TrimSpace(href) != "" {
				if base, err := url.Parse(loginURL); err == nil {
					if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
						action = base.ResolveReference(ref).String()
					}
				}
			}
			formSel.Find("input[type=hidden][name]").Each(func(_ int, in *goquery.Selection) {
				name, _ := in.Attr("name")
				value, _ := in.Attr("value")
				form.Set(name, value)
			})
		}
		if name, ok := user.Attr("name"); ok && name != "" {
			userField = name
		}
		if name, ok := doc.Find("#" + passwordInputID).Attr("name"); ok && name != "" {
			passField = name
		}
	}

	form.Set(userField, c.cfg.ElturfUser)
	form.Set(passField, c.cfg.ElturfPassword)
	return action, form, nil
}

// loadCookies seeds the jar from the cookie cache, a flat name/value object.
func (c *Client) loadCookies() error {
	if c.cfg.CookiesPath == "" {
		return nil
	}
	raw, err := os.ReadFile(c.cfg.CookiesPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var values map[string]string
	if err := json.Unmarshal(raw, &values); err != nil {
		return err
	}
	if values[sessionCookie] == "" {
		return nil
	}
	cookies := make([]*http.Cookie, 0, len(values))
	for name, value := range values {
		cookies = append(cookies, &http.Cookie{Name: name, Value: value, Path: "/"})
	}
	c.httpClient.Jar.SetCookies(c.base, cookies)
	return nil
}

func (c *Client) saveCookies() error {
	if c.cfg.CookiesPath == "" {
		return nil
	}
	values := map[string]string{}
	for _, ck := range c.httpClient.Jar.Cookies(c.base) {
		values[ck.Name] = ck.Value
	}
	blob, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.cfg.CookiesPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(c.cfg.CookiesPath, blob, 0o600)
}
