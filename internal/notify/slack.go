package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SlackNotifier posts run notices to an incoming-webhook URL. An empty
// URL disables it.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
	now        func() time.Time
}

// SlackMessage is the webhook payload.
type SlackMessage struct {
	Text        string            `json:"text"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

// SlackAttachment colors the notice and carries the run counters as
// columned fields.
type SlackAttachment struct {
	Color     string       `json:"color"`
	Text      string       `json:"text,omitempty"`
	Fields    []SlackField `json:"fields,omitempty"`
	Footer    string       `json:"footer,omitempty"`
	Timestamp int64        `json:"ts,omitempty"`
}

// SlackField is one short label/value pair inside an attachment.
type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// NewSlackNotifier creates a Slack webhook notifier.
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
}

// SlackColor returns the attachment color for a notification type.
func SlackColor(t NotificationType) string {
	switch t {
	case NotifySuccess:
		return "good"
	case NotifyWarning:
		return "warning"
	case NotifyError:
		return "danger"
	default:
		return "#439FE0"
	}
}

// buildMessage maps a notification onto the webhook shape. The title is
// the fallback text for clients that do not render attachments; counters
// become fields so Slack lays them out in columns.
func (s *SlackNotifier) buildMessage(n Notification) SlackMessage {
	att := SlackAttachment{
		Color:     SlackColor(n.Type),
		Footer:    footerFor(n),
		Timestamp: s.now().Unix(),
	}
	for _, f := range n.Fields {
		att.Fields = append(att.Fields, SlackField{Title: f.Label, Value: f.Value, Short: true})
	}
	if len(att.Fields) == 0 {
		att.Text = n.Message
	}
	return SlackMessage{Text: n.Title, Attachments: []SlackAttachment{att}}
}

func footerFor(n Notification) string {
	footer := "scribe"
	if n.Command != "" {
		footer += " " + n.Command
	}
	if n.RunID != "" {
		footer += " | run " + n.RunID
	}
	return footer
}

// Send posts the notification to the webhook.
func (s *SlackNotifier) Send(n Notification) error {
	if s.webhookURL == "" {
		return nil // Disabled
	}

	payload, err := json.Marshal(s.buildMessage(n))
	if err != nil {
		return err
	}

	resp, err := s.client.Post(s.webhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack webhook: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return nil
}
