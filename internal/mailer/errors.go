package mailer

import (
	"errors"
	"fmt"
)

// Delivery stages, reported in DeliveryError.Stage.
const (
	StageProvider = "provider"
	StageCompose  = "compose"
	StageConnect  = "connect"
	StageAuth     = "auth"
	StageSubmit   = "submit"
)

var (
	// ErrNoRecipient indicates an empty recipient address.
	ErrNoRecipient = errors.New("recipient address is empty")

	// ErrStartTLSUnsupported indicates the server did not offer STARTTLS on
	// a provider that requires it.
	ErrStartTLSUnsupported = errors.New("server does not support STARTTLS")
)

// DeliveryError describes why one recipient could not be sent to.
type DeliveryError struct {
	Recipient string
	Stage     string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s: %s: %v", e.Recipient, e.Stage, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// DeliveryStage returns the stage at which delivery failed.
func (e *DeliveryError) DeliveryStage() string {
	return e.Stage
}
