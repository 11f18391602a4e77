// Package mailer sends transactional email.
package mailer

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
)

type Message struct {
	To      []string
	Subject string
	HTML    string
	Text    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Resend sends messages through the Resend email API.
type Resend struct {
	client *resend.Client
	from   string
}

// NewResend returns a Resend sender. baseURL overrides the API endpoint and
// may be empty.
func NewResend(apiKey, baseURL, from string) (*Resend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend: API key not set")
	}
	if from == "" {
		return nil, fmt.Errorf("resend: from address not set")
	}
	client := resend.NewCustomClient(&http.Client{Timeout: 15 * time.Second}, apiKey)
	if baseURL != "" {
		u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("resend: base url: %w", err)
		}
		client.BaseURL = u
	}
	return &Resend{client: client, from: from}, nil
}

func (r *Resend) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("resend: no recipients")
	}
	sent, err := r.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    r.from,
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	log.Printf("[mail] sent %s to %s", sent.Id, strings.Join(msg.To, ","))
	return nil
}

// Log writes messages to the process log instead of sending them.
type Log struct{}

func (Log) Send(ctx context.Context, msg Message) error {
	text := msg.Text
	if text == "" {
		text = msg.HTML
	}
	log.Printf("[mail] to=%s subject=%q\n%s", strings.Join(msg.To, ","), msg.Subject, text)
	return nil
}
