// Package notify delivers run completion notices to Slack and the desktop.
package notify

import "fmt"

// NotificationType represents the type of notification
type NotificationType int

const (
	NotifyInfo NotificationType = iota
	NotifySuccess
	NotifyWarning
	NotifyError
)

// Notification represents a notification to be sent
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
	Command string // Optional command reference (generate, update, rebuild)
	RunID   string // Optional run reference
	Fields  []Field
}

// Field is one labeled counter attached to a notification. Slack renders
// fields in columns; the desktop notifier folds them into the body text.
type Field struct {
	Label string
	Value string
}

// RunSummary holds the counters a finished run reports.
type RunSummary struct {
	Command   string
	RunID     string
	Processed int
	Failed    int
	Skipped   int
	CostUSD   float64
}

// FromRunSummary builds a notification for a finished run.
func FromRunSummary(s RunSummary) Notification {
	typ := NotifySuccess
	title := fmt.Sprintf("scribe %s finished", s.Command)
	if s.Failed > 0 {
		typ = NotifyWarning
		title = fmt.Sprintf("scribe %s finished with %d failure(s)", s.Command, s.Failed)
	}

	msg := fmt.Sprintf("%d processed, %d failed, %d skipped", s.Processed, s.Failed, s.Skipped)
	if s.CostUSD > 0 {
		msg += fmt.Sprintf(" ($%.4f)", s.CostUSD)
	}

	fields := []Field{
		{Label: "Processed", Value: fmt.Sprintf("%d", s.Processed)},
		{Label: "Failed", Value: fmt.Sprintf("%d", s.Failed)},
		{Label: "Skipped", Value: fmt.Sprintf("%d", s.Skipped)},
	}
	if s.CostUSD > 0 {
		fields = append(fields, Field{Label: "Cost", Value: fmt.Sprintf("$%.4f", s.CostUSD)})
	}

	return Notification{
		Title:   title,
		Message: msg,
		Type:    typ,
		Command: s.Command,
		RunID:   s.RunID,
		Fields:  fields,
	}
}

// Notifier is the interface for sending notifications
type Notifier interface {
	Send(n Notification) error
}

// MultiNotifier sends to multiple notifiers
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send sends the notification to all notifiers
func (m *MultiNotifier) Send(n Notification) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(n); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// NoopNotifier does nothing (for testing or disabled notifications)
type NoopNotifier struct{}

func (NoopNotifier) Send(n Notification) error { return nil }
