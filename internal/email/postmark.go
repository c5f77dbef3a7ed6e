package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const defaultAPIURL = "https://api.postmarkapp.com/email"

// Client sends billing notices through Postmark. Notices are best-effort:
// callers log failures and move on, entitlement state never depends on them.
type Client struct {
	serverToken string
	fromEmail   string
	portalURL   string
	apiURL      string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithAPIURL points the client at a different Postmark endpoint, for tests.
func WithAPIURL(url string) Option {
	return func(cl *Client) {
		cl.apiURL = url
	}
}

// NewClient creates a Postmark client. portalURL is the billing page users
// are sent to when a payment needs attention.
func NewClient(serverToken, fromEmail, portalURL string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		portalURL:   portalURL,
		apiURL:      defaultAPIURL,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

// PaymentFailed tells the user their renewal charge failed and their
// subscription is in the grace period.
func (c *Client) PaymentFailed(ctx context.Context, toEmail string) error {
	textBody := fmt.Sprintf(
		"We couldn't process your NewsLens subscription payment.\n\n"+
			"Your Pro access continues for now, but please update your payment method:\n\n%s\n\n"+
			"If the next attempt also fails, your account will move to the free tier.",
		c.portalURL,
	)
	htmlBody := fmt.Sprintf(
		`<p>We couldn't process your NewsLens subscription payment.</p>`+
			`<p>Your Pro access continues for now, but please <a href="%s">update your payment method</a>.</p>`+
			`<p>If the next attempt also fails, your account will move to the free tier.</p>`,
		c.portalURL,
	)
	return c.send(ctx, toEmail, "Action needed: NewsLens payment failed", htmlBody, textBody)
}

// SubscriptionEnded confirms the downgrade after a cancellation takes effect.
func (c *Client) SubscriptionEnded(ctx context.Context, toEmail string) error {
	textBody := fmt.Sprintf(
		"Your NewsLens subscription has ended and your account is on the free tier.\n\n"+
			"You can resubscribe any time:\n\n%s",
		c.portalURL,
	)
	htmlBody := fmt.Sprintf(
		`<p>Your NewsLens subscription has ended and your account is on the free tier.</p>`+
			`<p>You can <a href="%s">resubscribe any time</a>.</p>`,
		c.portalURL,
	)
	return c.send(ctx, toEmail, "Your NewsLens subscription has ended", htmlBody, textBody)
}

func (c *Client) send(ctx context.Context, toEmail, subject, htmlBody, textBody string) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing server token")
	}

	payload := postmarkEmail{
		From:     c.fromEmail,
		To:       toEmail,
		Subject:  subject,
		HtmlBody: htmlBody,
		TextBody: textBody,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}
	return nil
}
