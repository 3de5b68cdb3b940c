package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	authgate "github.com/tradewire/authgate"
)

const mailgunAPIBase = "https://api.mailgun.net/v3"

// MailgunSender implements [authgate.MailSender] over the Mailgun messages
// REST API.
type MailgunSender struct {
	domain  string
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewMailgunSender describes the newmailgunsender operation and its observable behavior.
//
// NewMailgunSender may return an error when input validation, dependency calls, or security checks fail.
func NewMailgunSender(domain, apiKey string, client *http.Client) (*MailgunSender, error) {
	if domain == "" || apiKey == "" {
		return nil, errors.New("messaging: mailgun credentials required")
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &MailgunSender{
		domain:  domain,
		apiKey:  apiKey,
		baseURL: mailgunAPIBase,
		client:  client,
	}, nil
}

// Send describes the send operation and its observable behavior.
//
// Send may return an error when input validation, dependency calls, or security checks fail.
// Send does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *MailgunSender) Send(ctx context.Context, msg authgate.EmailMessage) error {
	form := url.Values{}
	form.Set("from", msg.From)
	form.Set("to", msg.To)
	form.Set("subject", msg.Subject)
	if msg.Text != "" {
		form.Set("text", msg.Text)
	}
	if msg.HTML != "" {
		form.Set("html", msg.HTML)
	}

	endpoint := fmt.Sprintf("%s/%s/messages", m.baseURL, m.domain)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth("api", m.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("messaging: mailgun returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
