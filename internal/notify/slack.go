package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/yuxishi/aws-quota-monitor/internal/logging"
	"github.com/yuxishi/aws-quota-monitor/internal/model"
)

const (
	colorOK      = "#36a64f"
	colorWarn    = "#eaea3c"
	colorError   = "#bf3e2d"
	colorUnknown = "#93938f"

	quotaConsoleURL = "https://console.aws.amazon.com/servicequotas/home"
	docsURL         = "https://aws.amazon.com/solutions/implementations/quota-monitor/"
)

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAction struct {
	Text string `json:"text"`
	Type string `json:"type"`
	URL  string `json:"url"`
}

type slackAttachment struct {
	Color      string        `json:"color"`
	Fields     []slackField  `json:"fields"`
	Pretext    string        `json:"pretext"`
	Fallback   string        `json:"fallback"`
	AuthorName string        `json:"author_name"`
	Title      string        `json:"title"`
	TitleLink  string        `json:"title_link"`
	Footer     string        `json:"footer"`
	Actions    []slackAction `json:"actions"`
}

type SlackMessage struct {
	Attachments []slackAttachment `json:"attachments"`
}

// HookSource resolves the Slack webhook URL, normally from a secure SSM
// parameter.
type HookSource func(ctx context.Context) (string, error)

// Slack posts notifications to an incoming webhook.
type Slack struct {
	hook       HookSource
	client     *http.Client
	maxRetries uint64
	newBackOff func() backoff.BackOff
}

func NewSlack(hook HookSource, client *http.Client) *Slack {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Slack{
		hook:       hook,
		client:     client,
		maxRetries: 3,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
}

func (s *Slack) Name() string { return "slack" }

// Notify posts env to the webhook. Server errors are retried; client errors
// are not.
func (s *Slack) Notify(ctx context.Context, env model.Envelope) error {
	url, err := s.hook(ctx)
	if err != nil {
		return fmt.Errorf("slack hook: %w", err)
	}
	body, err := json.Marshal(BuildSlackMessage(env))
	if err != nil {
		return fmt.Errorf("encode slack message: %w", err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), s.maxRetries), ctx)
	return backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		switch {
		case resp.StatusCode < 400:
			logging.Entry(ctx).Debug("Message posted successfully")
			return nil
		case resp.StatusCode < 500:
			logging.Entry(ctx).Warnf("Error posting message to Slack API: %d - %s", resp.StatusCode, http.StatusText(resp.StatusCode))
			return backoff.Permanent(fmt.Errorf("slack: %s", resp.Status))
		default:
			return fmt.Errorf("slack server error: %s", resp.Status)
		}
	}, b)
}

// BuildSlackMessage renders env as a Slack attachment.
func BuildSlackMessage(env model.Envelope) SlackMessage {
	d := env.Detail

	color, status := colorUnknown, string(d.Status)
	switch d.Status {
	case model.StatusOK:
		color, status = colorOK, "🆗"
	case model.StatusWarn:
		color, status = colorWarn, "⚠️"
	case model.StatusError:
		color, status = colorError, "🔥"
	}

	ts := env.Time
	if !d.Timestamp.IsZero() {
		ts = d.Timestamp
	}

	return SlackMessage{Attachments: []slackAttachment{{
		Color: color,
		Fields: []slackField{
			{Title: "AccountId", Value: env.Account, Short: true},
			{Title: "Status", Value: status, Short: true},
			{Title: "TimeStamp", Value: ts.UTC().Format(time.RFC3339), Short: true},
			{Title: "Region", Value: d.Region, Short: true},
			{Title: "Service", Value: d.Service, Short: true},
			{Title: "LimitName", Value: d.LimitName, Short: true},
			{Title: "CurrentUsage", Value: d.CurrentUsage, Short: true},
			{Title: "LimitAmount", Value: d.LimitAmount, Short: true},
		},
		Pretext:    "*Quota Monitor for AWS Update*",
		Fallback:   "new notification from Quota Monitor for AWS",
		AuthorName: "@quota-monitor-for-aws",
		Title:      "Quota Monitor for AWS Documentation",
		TitleLink:  docsURL,
		Footer:     "Take Action?",
		Actions:    []slackAction{{Text: "Request Limit Increase", Type: "button", URL: quotaConsoleURL}},
	}}}
}
