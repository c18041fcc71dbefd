package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrValidation matches every *ValidationError.
var ErrValidation = errors.New("validation failed")

// ValidationError reports a missing or malformed form field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Form field names, as used by the web form and the send command.
const (
	FieldSender         = "sender"
	FieldSecret         = "secret"
	FieldSubject        = "subject"
	FieldBody           = "body"
	FieldAttachment     = "attachment"
	FieldRecipientsFile = "recipients_file"
	FieldDailyLimit     = "daily_limit"
	FieldSendTime       = "send_time"
)

// JobRequest is the form as the user filled it in.
type JobRequest struct {
	Sender         string `yaml:"sender"`
	Secret         string `yaml:"secret"`
	Subject        string `yaml:"subject"`
	Body           string `yaml:"body"`
	Attachment     string `yaml:"attachment"`
	RecipientsFile string `yaml:"recipients_file"`
	DailyLimit     string `yaml:"daily_limit"`
	SendTime       string `yaml:"send_time"`
}

// Validate checks the required fields in form order and returns the first
// problem as a *ValidationError. The attachment is optional.
func (r JobRequest) Validate() error {
	required := []struct {
		field, value string
	}{
		{FieldSender, r.Sender},
		{FieldSecret, r.Secret},
		{FieldSubject, r.Subject},
		{FieldBody, r.Body},
		{FieldRecipientsFile, r.RecipientsFile},
		{FieldDailyLimit, r.DailyLimit},
		{FieldSendTime, r.SendTime},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return &ValidationError{Field: f.field, Message: "is required"}
		}
	}

	if _, err := r.dailyLimit(); err != nil {
		return err
	}
	if _, err := ParseTimeOfDay(strings.TrimSpace(r.SendTime)); err != nil {
		return &ValidationError{Field: FieldSendTime, Message: "must be HH:mm"}
	}
	return nil
}

// Job validates the request and combines it with the loaded recipients.
func (r JobRequest) Job(recipients []string) (SendJob, error) {
	if err := r.Validate(); err != nil {
		return SendJob{}, err
	}
	limit, _ := r.dailyLimit()
	target, _ := ParseTimeOfDay(strings.TrimSpace(r.SendTime))

	return SendJob{
		Sender:     Credentials{Address: strings.TrimSpace(r.Sender), Secret: r.Secret},
		Subject:    r.Subject,
		Body:       r.Body,
		Attachment: strings.TrimSpace(r.Attachment),
		Recipients: recipients,
		DailyLimit: limit,
		TargetTime: target,
	}, nil
}

func (r JobRequest) dailyLimit() (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(r.DailyLimit))
	if err != nil {
		return 0, &ValidationError{Field: FieldDailyLimit, Message: "must be a whole number"}
	}
	if n <= 0 {
		return 0, &ValidationError{Field: FieldDailyLimit, Message: "must be greater than zero"}
	}
	return n, nil
}
