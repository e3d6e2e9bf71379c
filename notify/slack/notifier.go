package slack

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	auth "github.com/goliatone/go-auth-guard"
	"github.com/goliatone/go-errors"
)

const (
	colorSuccess = "#2eb886"
	colorWarning = "#daa038"
	colorDanger  = "#a30200"

	defaultTimeout = 5 * time.Second
)

// Message is the incoming webhook payload
type Message struct {
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

type Attachment struct {
	Color  string  `json:"color,omitempty"`
	Title  string  `json:"title,omitempty"`
	Fields []Field `json:"fields,omitempty"`
	Footer string  `json:"footer,omitempty"`
	Ts     int64   `json:"ts,omitempty"`
}

type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// Notifier posts security events to a Slack incoming webhook. It makes a
// single attempt per event.
type Notifier struct {
	webhookURL string
	client     *resty.Client
	threshold  int
	source     string
}

type Option func(*Notifier)

// WithThreshold sets the attempt count at which failure alerts escalate
func WithThreshold(n int) Option {
	return func(s *Notifier) {
		if n > 0 {
			s.threshold = n
		}
	}
}

// WithSource names the system in the message footer
func WithSource(source string) Option {
	return func(s *Notifier) {
		s.source = source
	}
}

// WithClient replaces the HTTP client
func WithClient(c *resty.Client) Option {
	return func(s *Notifier) {
		if c != nil {
			s.client = c
		}
	}
}

// New returns a notifier posting to webhookURL. An empty URL returns a nil
// notifier, which disables notifications.
func New(webhookURL string, opts ...Option) *Notifier {
	if strings.TrimSpace(webhookURL) == "" {
		return nil
	}

	n := &Notifier{
		webhookURL: webhookURL,
		client: resty.New().
			SetTimeout(defaultTimeout).
			SetHeader("Content-Type", "application/json"),
		threshold: auth.DefaultLockThreshold,
		source:    "auth-guard",
	}

	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}

	return n
}

// Notify implements auth.Notifier.
func (s *Notifier) Notify(ctx context.Context, event auth.SecurityEvent) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(s.Format(event)).
		Post(s.webhookURL)
	if err != nil {
		return err
	}

	if resp.IsError() {
		return errors.New("slack webhook rejected message", errors.CategoryOperation).
			WithCode(resp.StatusCode()).
			WithMetadata(map[string]any{
				"status": resp.StatusCode(),
				"body":   resp.String(),
			})
	}

	return nil
}

// Format renders event as a Slack message
func (s *Notifier) Format(event auth.SecurityEvent) Message {
	at := event.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}

	fields := []Field{
		{Title: "User", Value: event.Identity, Short: true},
		{Title: "IP address", Value: orUnknown(event.SourceAddress), Short: true},
		{Title: "Device", Value: event.Device.String(), Short: true},
		{Title: "Time", Value: at.UTC().Format(time.RFC1123), Short: true},
	}

	attachment := Attachment{
		Footer: s.source,
		Ts:     at.Unix(),
	}

	var text string
	switch {
	case event.Type == auth.EventLoginSucceeded:
		text = fmt.Sprintf(":white_check_mark: Successful login for *%s*", event.Identity)
		attachment.Color = colorSuccess
		attachment.Title = "Login succeeded"
	case event.Escalated(s.threshold):
		text = fmt.Sprintf(":rotating_light: *SECURITY ALERT* %d failed login attempts for *%s*, account locked",
			event.Attempts, event.Identity)
		attachment.Color = colorDanger
		attachment.Title = "Account locked"
		fields = append(fields, Field{Title: "Attempts", Value: fmt.Sprint(event.Attempts), Short: true})
	default:
		text = fmt.Sprintf(":warning: Failed login attempt for *%s*", event.Identity)
		attachment.Color = colorWarning
		attachment.Title = "Login failed"
		fields = append(fields, Field{Title: "Attempts", Value: fmt.Sprint(event.Attempts), Short: true})
	}

	attachment.Fields = fields
	return Message{Text: text, Attachments: []Attachment{attachment}}
}

func orUnknown(v string) string {
	if strings.TrimSpace(v) == "" {
		return "unknown"
	}
	return v
}
