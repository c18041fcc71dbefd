package model

import (
	"fmt"
	"time"
)

// Credentials identify the sending account. Secret is the provider password
// or app-specific authorization code.
type Credentials struct {
	Address string `json:"address" yaml:"address"`
	Secret  string `json:"-" yaml:"-"`
}

// TimeOfDay is a wall-clock hour and minute.
type TimeOfDay struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// ParseTimeOfDay parses an "HH:mm" string.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// Matches reports whether t falls inside this hour and minute, in t's own
// location. Seconds are ignored.
func (d TimeOfDay) Matches(t time.Time) bool {
	return t.Hour() == d.Hour && t.Minute() == d.Minute
}

func (d TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", d.Hour, d.Minute)
}

// SendJob is everything one pass needs. It lives for the duration of the pass.
type SendJob struct {
	Sender     Credentials
	Subject    string
	Body       string
	Attachment string // path, empty for none
	Recipients []string
	DailyLimit int
	TargetTime TimeOfDay
}

// Delivery returns the single-recipient delivery for this job.
func (j SendJob) Delivery(recipient string) Delivery {
	return Delivery{
		Sender:     j.Sender,
		Recipient:  recipient,
		Subject:    j.Subject,
		Body:       j.Body,
		Attachment: j.Attachment,
	}
}

// Delivery is one message addressed to one recipient.
type Delivery struct {
	Sender     Credentials
	Recipient  string
	Subject    string
	Body       string
	Attachment string
}

// DeliveryOutcome is the result of a single delivery. It is never retained.
type DeliveryOutcome struct {
	Recipient string
	Success   bool
	Err       error
}

// RunResult is the final tally of a pass.
type RunResult struct {
	EmailsSent int `json:"emails_sent"`
}

// Summary is the line shown when a pass ends.
func (r RunResult) Summary() string {
	return fmt.Sprintf("sent %d emails", r.EmailsSent)
}
