// Package google writes month reports to a Google Sheets spreadsheet.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"famledger/internal/log"
	ports "famledger/internal/sheets"
)

// Credentials locate the OAuth client and the token produced by oauth-init.
// Inline JSON wins over a file path.
type Credentials struct {
	ClientFile string
	ClientJSON string
	TokenFile  string
	TokenJSON  string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// base sheet name without year, e.g. "Summary"; the report year is prefixed
	sheetBase string
	logger    *log.Logger
}

var _ ports.SummaryWriter = (*Client)(nil)

// New creates a Sheets client authorized with a stored OAuth token.
func New(ctx context.Context, creds Credentials, spreadsheetID, sheetBase string, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if logger == nil {
		logger = log.Default()
	}
	if strings.TrimSpace(sheetBase) == "" {
		sheetBase = "Summary"
	}

	httpClient, err := oauthClient(ctx, creds)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx, goption.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     sheetBase,
		logger:        logger.WithComponent(log.ComponentSheets),
	}, nil
}

// OAuthConfig loads the OAuth client for the spreadsheets scope.
func OAuthConfig(creds Credentials) (*oauth2.Config, error) {
	clientJSON, err := readSecret(creds.ClientJSON, creds.ClientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client: %w", err)
	}
	cfg, err := googleoauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	return cfg, nil
}

// WriteToken stores tok at path, readable by the owner only.
func WriteToken(path string, tok *oauth2.Token) error {
	b, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode oauth token: %w", err)
	}
	if err := os.WriteFile(path, b, 0600); err != nil {
		return fmt.Errorf("write oauth token: %w", err)
	}
	return nil
}

func oauthClient(ctx context.Context, creds Credentials) (*http.Client, error) {
	cfg, err := OAuthConfig(creds)
	if err != nil {
		return nil, err
	}
	tokenJSON, err := readSecret(creds.TokenJSON, creds.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(tokenJSON, &tok); err != nil {
		return nil, fmt.Errorf("decode oauth token: %w", err)
	}

	// token refreshes go through the pooled client too
	ctx = context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling())
	return cfg.Client(ctx, &tok), nil
}

func readSecret(inline, path string) ([]byte, error) {
	switch {
	case strings.TrimSpace(inline) != "":
		return []byte(inline), nil
	case strings.TrimSpace(path) != "":
		return os.ReadFile(path)
	default:
		return nil, errors.New("neither inline JSON nor file path set")
	}
}

// newHTTPClientWithPooling creates an HTTP client for the Sheets API with
// connection pooling and bounded timeouts.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

// WriteMonthSummary overwrites the report block for the month. Each month
// gets its own column band on the "<year> <base>" sheet so rewriting one
// month leaves the others intact.
func (c *Client) WriteMonthSummary(ctx context.Context, r ports.Report) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	rows := ports.Rows(r)
	rng, err := reportRange(c.sheetBase, r.Summary.Year, r.Summary.Month, len(rows))
	if err != nil {
		return "", err
	}

	vr := &gsheet.ValueRange{Values: rows}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("update %s: %w", rng, err)
	}

	c.logger.DebugContext(ctx, "Sheet range written", "range", rng, "rows", len(rows))
	return rng, nil
}

// reportRange returns the A1 range holding month's report: four columns per
// month starting at A for January, rows 1..n.
func reportRange(base string, year, month, n int) (string, error) {
	if month < 1 || month > 12 {
		return "", fmt.Errorf("invalid month: %d", month)
	}
	if n < 1 {
		n = 1
	}
	first := (month - 1) * 5
	from, to := columnName(first), columnName(first+3)
	sheet := yearPrefixedName(base, year)
	return fmt.Sprintf("'%s'!%s1:%s%d", sheet, from, to, n), nil
}

// columnName converts a zero-based column index to its A1 letters.
func columnName(i int) string {
	name := ""
	for i >= 0 {
		name = string(rune('A'+i%26)) + name
		i = i/26 - 1
	}
	return name
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
