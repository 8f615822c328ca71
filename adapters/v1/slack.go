package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dysonhq/dyson/core/domain"
	"github.com/dysonhq/dyson/core/ports"
	"github.com/dysonhq/dyson/internal/tools"
	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/otel"
)

const (
	colorGood    = "#36a64f"
	colorWarning = "#ecb22e"
	colorDanger  = "#e01e5a"
	maxFieldSize = 2000
)

// SlackOptions configure an incoming webhook
type SlackOptions struct {
	WebhookURL string
	Username   string
	Channel    string
	IconURL    string
	RetryMax   int
	RetryWait  time.Duration
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Fields []slackField `json:"fields"`
}

type slackPayload struct {
	Username    string            `json:"username,omitempty"`
	Channel     string            `json:"channel,omitempty"`
	IconURL     string            `json:"icon_url,omitempty"`
	Attachments []slackAttachment `json:"attachments"`
}

// SlackNotifier implements Notifier by posting attachments to a Slack incoming webhook
type SlackNotifier struct {
	opts   SlackOptions
	client *retryablehttp.Client
}

var _ ports.Notifier = (*SlackNotifier)(nil)

func NewSlackNotifier(opts SlackOptions) *SlackNotifier {
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = 3
	if opts.RetryMax > 0 {
		client.RetryMax = opts.RetryMax
	}
	if opts.RetryWait > 0 {
		client.RetryWaitMin = opts.RetryWait
		client.RetryWaitMax = opts.RetryWait
	}
	return &SlackNotifier{opts: opts, client: client}
}

func (s *SlackNotifier) Name() string {
	return "slack"
}

func (s *SlackNotifier) Notify(ctx context.Context, summary domain.Summary) error {
	ctx, span := otel.Tracer("").Start(ctx, "SlackNotifier.Notify")
	defer span.End()

	body, err := json.Marshal(s.payload(summary))
	if err != nil {
		return err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.opts.WebhookURL, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %s: %s", resp.Status, bytes.TrimSpace(msg))
	}
	return nil
}

func (s *SlackNotifier) payload(summary domain.Summary) slackPayload {
	color := colorGood
	switch {
	case summary.Failed > 0:
		color = colorDanger
	case len(summary.Warnings) > 0:
		color = colorWarning
	}

	counts := fmt.Sprintf("images: %d, keep: %d, delete: %d", summary.Entries, summary.ByDecision[domain.Keep], summary.ByDecision[domain.Delete])
	if summary.Applied {
		counts += fmt.Sprintf("\ndeleted: %d, failed: %d, skipped: %d", summary.Deleted, summary.Failed, summary.Skipped)
	}
	var reasons []string
	for _, r := range domain.Reasons {
		if n := summary.ByReason[r]; n > 0 {
			reasons = append(reasons, fmt.Sprintf("%s: %d", r, n))
		}
	}
	fields := []slackField{
		{Title: "Registry", Value: summary.Registry, Short: true},
		{Title: "Run", Value: summary.RunID, Short: true},
		{Title: "Counts", Value: counts},
	}
	if len(reasons) > 0 {
		fields = append(fields, slackField{Title: "Reasons", Value: strings.Join(reasons, "\n")})
	}
	if len(summary.Repositories) > 0 {
		var b strings.Builder
		b.WriteString("Repo | Tags | Total\n----------------\n")
		for _, r := range summary.Repositories {
			fmt.Fprintf(&b, "%s | %d | %d\n", r.Repository, r.Tags, r.Images)
		}
		fields = append(fields, slackField{Title: "Repositories", Value: codeBlock(b.String())})
	}
	if len(summary.Failures) > 0 {
		lines := make([]string, 0, len(summary.Failures))
		for _, f := range summary.Failures {
			lines = append(lines, fmt.Sprintf("%s: %s", f.ID, f.Reason))
		}
		fields = append(fields, slackField{Title: "Failures", Value: codeBlock(strings.Join(lines, "\n"))})
	}
	if len(summary.Warnings) > 0 {
		lines := make([]string, 0, len(summary.Warnings))
		for _, w := range summary.Warnings {
			lines = append(lines, formatWarning(w))
		}
		fields = append(fields, slackField{Title: "Warnings", Value: codeBlock(strings.Join(lines, "\n"))})
	}
	return slackPayload{
		Username: s.opts.Username,
		Channel:  s.opts.Channel,
		IconURL:  s.opts.IconURL,
		Attachments: []slackAttachment{{
			Color:  color,
			Title:  summary.Title,
			Fields: fields,
		}},
	}
}

func codeBlock(s string) string {
	return "```" + tools.JoinTruncated([]string{strings.TrimRight(s, "\n")}, "", maxFieldSize) + "```"
}
