package pos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	maxBodyBytes     = 32 << 20
	maxErrorBodySize = 2048
)

// Options configures the HTTP transport shared by all adapters.
type Options struct {
	Timeout    time.Duration
	UserAgent  string
	HTTPClient *http.Client
}

type transport struct {
	vendor     string
	authHeader string
	authPrefix string
	userAgent  string
	httpClient *http.Client
}

func newTransport(vendor, authHeader, authPrefix string, opts Options) transport {
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = "possync/1.0"
	}
	return transport{
		vendor:     vendor,
		authHeader: authHeader,
		authPrefix: authPrefix,
		userAgent:  ua,
		httpClient: client,
	}
}

func (t transport) pageURL(target Target, page int) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(target.BaseURL), "/")
	if base == "" {
		return "", fmt.Errorf("pos %s: base url required", t.vendor)
	}
	u, err := url.Parse(base + "/products")
	if err != nil {
		return "", fmt.Errorf("pos %s: invalid base url: %w", t.vendor, err)
	}
	q := u.Query()
	q.Set("location", target.PosID)
	q.Set("page", strconv.Itoa(page))
	if target.RoomID != "" {
		q.Set("roomId", target.RoomID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// getPage performs the GET for one page and decodes the body into dest.
func (t transport) getPage(ctx context.Context, target Target, page int, dest any) error {
	endpoint, err := t.pageURL(target, page)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", t.userAgent)
	if target.APIKey != "" {
		req.Header.Set(t.authHeader, t.authPrefix+target.APIKey)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return &TransportError{Vendor: t.vendor, URL: redact(endpoint), Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &TransportError{Vendor: t.vendor, URL: redact(endpoint), Err: err}
	}
	if resp.StatusCode >= 400 {
		return &RemoteHTTPError{
			Vendor:     t.vendor,
			URL:        redact(endpoint),
			StatusCode: resp.StatusCode,
			Body:       truncate(string(bytes.TrimSpace(body)), maxErrorBodySize),
		}
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("%w: %s page %d: %v", ErrMalformedResponse, t.vendor, page, err)
	}
	return nil
}

// pageEnvelope is the paging wrapper shared by every vendor inventory endpoint.
type pageEnvelope struct {
	Data        []json.RawMessage `json:"data"`
	CurrentPage *int              `json:"current_page"`
	LastPage    *int              `json:"last_page"`
	Total       int               `json:"total"`
}

// result validates the cursor. A body without one cannot tell the runner
// where the catalog ends, so it is malformed rather than a single page.
func (e pageEnvelope) result(vendor string, page int) (PageResult, error) {
	if e.CurrentPage == nil || e.LastPage == nil {
		return PageResult{}, fmt.Errorf("%w: %s page %d: missing current_page/last_page", ErrMalformedResponse, vendor, page)
	}
	return PageResult{
		CurrentPage: *e.CurrentPage,
		LastPage:    *e.LastPage,
		Total:       e.Total,
		Records:     make([]Record, 0, len(e.Data)),
	}, nil
}

// checkFirstPage rejects an empty first page so callers never mistake a
// vendor hiccup for an empty catalog.
func checkFirstPage(vendor string, page int, result PageResult) error {
	if page == 0 && len(result.Records) == 0 {
		return fmt.Errorf("%w (%s, total=%d)", ErrEmptyFirstPage, vendor, result.Total)
	}
	return nil
}

func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.User = nil
	return u.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// flexID accepts identifiers encoded either as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.New("pos: id must be a string or number")
	}
	*f = flexID(n.String())
	return nil
}
