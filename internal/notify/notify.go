// Package notify delivers operator alerts when a location sync fails.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/greenline/possync/internal/pos"
)

// Error kinds carried by SerializedError.
const (
	KindTransport  = "transport"
	KindRemoteHTTP = "remote_http"
	KindEmptyPage  = "empty_first_page"
	KindMalformed  = "malformed_response"
	KindPageLimit  = "page_limit"
	KindCanceled   = "canceled"
	KindInternal   = "internal"
)

// SerializedError is the wire form of a sync failure.
type SerializedError struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	Vendor     string `json:"vendor,omitempty"`
	LocationID int64  `json:"location_id,omitempty"`
	RunID      string `json:"run_id,omitempty"`
	URL        string `json:"url,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	Body       string `json:"body,omitempty"`
}

// Serialize classifies err and captures the remote details it carries.
func Serialize(err error) SerializedError {
	if err == nil {
		return SerializedError{Kind: KindInternal}
	}
	out := SerializedError{Kind: KindInternal, Message: err.Error()}

	var httpErr *pos.RemoteHTTPError
	var transportErr *pos.TransportError
	switch {
	case errors.As(err, &httpErr):
		out.Kind = KindRemoteHTTP
		out.Vendor = httpErr.Vendor
		out.URL = httpErr.URL
		out.StatusCode = httpErr.StatusCode
		out.Body = httpErr.Body
	case errors.As(err, &transportErr):
		out.Kind = KindTransport
		out.Vendor = transportErr.Vendor
		out.URL = transportErr.URL
	case errors.Is(err, pos.ErrEmptyFirstPage):
		out.Kind = KindEmptyPage
	case errors.Is(err, pos.ErrMalformedResponse):
		out.Kind = KindMalformed
	case errors.Is(err, pos.ErrPageLimit):
		out.Kind = KindPageLimit
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		out.Kind = KindCanceled
	}
	return out
}

// Text renders the error as a plain-text message body.
func (e SerializedError) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "kind: %s\n", e.Kind)
	if e.Vendor != "" {
		fmt.Fprintf(&b, "vendor: %s\n", e.Vendor)
	}
	if e.LocationID != 0 {
		fmt.Fprintf(&b, "location: %d\n", e.LocationID)
	}
	if e.RunID != "" {
		fmt.Fprintf(&b, "run: %s\n", e.RunID)
	}
	if e.URL != "" {
		fmt.Fprintf(&b, "url: %s\n", e.URL)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, "status: %d\n", e.StatusCode)
	}
	fmt.Fprintf(&b, "message: %s\n", e.Message)
	if e.Body != "" {
		fmt.Fprintf(&b, "\n%s\n", e.Body)
	}
	return b.String()
}

// Notifier is the fire-and-forget alert sink.
type Notifier interface {
	Notify(ctx context.Context, subject string, serr SerializedError) error
}

// LogNotifier writes alerts to the structured log.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(ctx context.Context, subject string, serr SerializedError) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	payload, _ := json.Marshal(serr)
	logger.ErrorContext(ctx, "catalog sync alert", slog.String("subject", subject), slog.String("error", string(payload)))
	return nil
}

// MailQueue enqueues an outbound email.
type MailQueue interface {
	EnqueueMail(ctx context.Context, to, subject, body string) error
}

// EmailNotifier queues one email per recipient.
type EmailNotifier struct {
	Queue      MailQueue
	Recipients []string
}

// Notify implements Notifier.
func (n EmailNotifier) Notify(ctx context.Context, subject string, serr SerializedError) error {
	if n.Queue == nil {
		return errors.New("notify: mail queue not configured")
	}
	body := serr.Text()
	var errs []error
	for _, to := range n.Recipients {
		to = strings.TrimSpace(to)
		if to == "" {
			continue
		}
		if err := n.Queue.EnqueueMail(ctx, to, subject, body); err != nil {
			errs = append(errs, fmt.Errorf("notify %s: %w", to, err))
		}
	}
	return errors.Join(errs...)
}

// Multi fans an alert out to every notifier.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, subject string, serr SerializedError) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, subject, serr); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
