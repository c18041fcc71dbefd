package mailer

import (
	"fmt"
	"strings"
)

// Transport is how the SMTP connection is secured.
type Transport int

const (
	// ImplicitTLS opens the connection inside TLS (SMTPS).
	ImplicitTLS Transport = iota
	// StartTLS connects in plaintext and upgrades with STARTTLS.
	StartTLS
)

func (t Transport) String() string {
	switch t {
	case ImplicitTLS:
		return "implicit-tls"
	case StartTLS:
		return "starttls"
	default:
		return fmt.Sprintf("transport(%d)", int(t))
	}
}

// Provider is an SMTP submission endpoint.
type Provider struct {
	Host      string
	Port      int
	Transport Transport
}

// Providers maps a sender's mail domain to its submission endpoint.
type Providers map[string]Provider

// DefaultProviders is the built-in provider table.
func DefaultProviders() Providers {
	return Providers{
		"qq.com":    {Host: "smtp.qq.com", Port: 465, Transport: ImplicitTLS},
		"163.com":   {Host: "smtp.163.com", Port: 465, Transport: ImplicitTLS},
		"gmail.com": {Host: "smtp.gmail.com", Port: 587, Transport: StartTLS},
	}
}

// UnsupportedProviderError is returned when the sender's domain has no entry
// in the provider table.
type UnsupportedProviderError struct {
	Sender string
	Domain string
}

func (e *UnsupportedProviderError) Error() string {
	if e.Domain == "" {
		return fmt.Sprintf("unsupported email provider for sender %q", e.Sender)
	}
	return fmt.Sprintf("unsupported email provider %q", e.Domain)
}

// Lookup returns the provider for sender. Only the exact domain after the
// last "@" is matched, case-insensitively.
func (p Providers) Lookup(sender string) (Provider, error) {
	at := strings.LastIndex(sender, "@")
	if at < 0 || at == len(sender)-1 {
		return Provider{}, &UnsupportedProviderError{Sender: sender}
	}
	domain := strings.ToLower(strings.TrimSpace(sender[at+1:]))

	provider, ok := p[domain]
	if !ok {
		return Provider{}, &UnsupportedProviderError{Sender: sender, Domain: domain}
	}
	return provider, nil
}
