// Package weather fetches a short current-conditions report.
package weather

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultBaseURL = "https://wttr.in"

var ErrMalformed = errors.New("weather: malformed response")

type Report struct {
	Temperature string `json:"temperature"`
	Condition   string `json:"condition"`
}

// Source returns today's weather.
type Source interface {
	Current(ctx context.Context) (Report, error)
}

// Message renders the daily notification text.
func Message(r Report) string {
	return fmt.Sprintf("Today's forecast: %s, temperature %s. Have a nice day!", r.Condition, r.Temperature)
}

// WttrClient reads the one-line format of wttr.in.
type WttrClient struct {
	baseURL string
	city    string
	http    *http.Client
}

type Option func(*WttrClient)

func WithBaseURL(u string) Option {
	return func(c *WttrClient) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *WttrClient) { c.http = h }
}

func NewWttrClient(city string, opts ...Option) *WttrClient {
	c := &WttrClient{
		baseURL: DefaultBaseURL,
		city:    city,
		http:    newHTTPClient(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newHTTPClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Client{
		Transport: &http.Transport{
			DialContext:           dialer.DialContext,
			MaxIdleConnsPerHost:   2,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 15 * time.Second,
		},
		Timeout: 20 * time.Second,
	}
}

func (c *WttrClient) Current(ctx context.Context) (Report, error) {
	u := fmt.Sprintf("%s/%s?format=%s", c.baseURL, url.PathEscape(c.city), url.QueryEscape("%t|%C"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Report{}, fmt.Errorf("build weather request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Report{}, fmt.Errorf("fetch weather: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Report{}, fmt.Errorf("fetch weather: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return Report{}, fmt.Errorf("read weather: %w", err)
	}
	return Parse(string(body))
}

// Parse splits a "temperature|condition" line.
func Parse(s string) (Report, error) {
	temp, cond, ok := strings.Cut(strings.TrimSpace(s), "|")
	if !ok {
		return Report{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	r := Report{Temperature: strings.TrimSpace(temp), Condition: strings.TrimSpace(cond)}
	if r.Temperature == "" || r.Condition == "" {
		return Report{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	return r, nil
}

// Static is a fixed Source, used in tests and offline mode.
type Static struct {
	Report Report
	Err    error
}

func (s Static) Current(context.Context) (Report, error) {
	return s.Report, s.Err
}
