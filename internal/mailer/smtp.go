package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/dailysend/internal/model"
)

// Mailer delivers one message to one recipient over SMTP, choosing the
// provider from the sender's address.
type Mailer struct {
	providers Providers
	tlsConfig *tls.Config
	logger    *slog.Logger
	now       func() time.Time

	// sendFn submits a rendered message. Tests replace it to capture output.
	sendFn func(ctx context.Context, p Provider, creds model.Credentials, to string, msg []byte) error
}

// Option configures a Mailer.
type Option func(*Mailer)

// WithProviders replaces the built-in provider table.
func WithProviders(p Providers) Option {
	return func(m *Mailer) { m.providers = p }
}

// WithTLSConfig sets the base TLS configuration. ServerName is always set to
// the provider host.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(m *Mailer) { m.tlsConfig = cfg }
}

// WithLogger sets the logger used for failed deliveries.
func WithLogger(l *slog.Logger) Option {
	return func(m *Mailer) { m.logger = l }
}

// New returns a Mailer using DefaultProviders.
func New(opts ...Option) *Mailer {
	m := &Mailer{
		providers: DefaultProviders(),
		logger:    slog.Default(),
		now:       time.Now,
	}
	m.sendFn = m.send
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Deliver composes d and submits it. It never returns an error: every
// failure is logged and reported as an unsuccessful outcome whose Err is a
// *DeliveryError.
func (m *Mailer) Deliver(ctx context.Context, d model.Delivery) model.DeliveryOutcome {
	err := m.deliver(ctx, d)
	if err != nil {
		m.logger.Error("mailer: send failed", "to", d.Recipient, "err", err)
		return model.DeliveryOutcome{Recipient: d.Recipient, Err: err}
	}
	m.logger.Debug("mailer: sent", "to", d.Recipient)
	return model.DeliveryOutcome{Recipient: d.Recipient, Success: true}
}

func (m *Mailer) deliver(ctx context.Context, d model.Delivery) error {
	msg, err := buildMessage(d, m.now())
	if err != nil {
		return &DeliveryError{Recipient: d.Recipient, Stage: StageCompose, Err: err}
	}

	provider, err := m.providers.Lookup(d.Sender.Address)
	if err != nil {
		return &DeliveryError{Recipient: d.Recipient, Stage: StageProvider, Err: err}
	}

	if err := m.sendFn(ctx, provider, d.Sender, d.Recipient, msg); err != nil {
		var de *DeliveryError
		if errors.As(err, &de) {
			return err
		}
		return &DeliveryError{Recipient: d.Recipient, Stage: StageSubmit, Err: err}
	}
	return nil
}

// send runs one SMTP session: connect, secure, authenticate, submit, quit.
// No deadline is applied; a provider that stops responding blocks the caller.
func (m *Mailer) send(ctx context.Context, p Provider, creds model.Credentials, to string, msg []byte) error {
	fail := func(stage string, err error) error {
		return &DeliveryError{Recipient: to, Stage: stage, Err: err}
	}

	c, err := m.dial(ctx, p)
	if err != nil {
		return fail(StageConnect, err)
	}
	defer c.Close()

	if p.Transport == StartTLS {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			return fail(StageConnect, ErrStartTLSUnsupported)
		}
		if err := c.StartTLS(m.tlsFor(p.Host)); err != nil {
			return fail(StageConnect, err)
		}
	}

	if err := c.Auth(smtp.PlainAuth("", creds.Address, creds.Secret, p.Host)); err != nil {
		return fail(StageAuth, err)
	}

	if err := c.Mail(creds.Address); err != nil {
		return fail(StageSubmit, err)
	}
	if err := c.Rcpt(to); err != nil {
		return fail(StageSubmit, err)
	}
	w, err := c.Data()
	if err != nil {
		return fail(StageSubmit, err)
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return fail(StageSubmit, err)
	}
	if err := w.Close(); err != nil {
		return fail(StageSubmit, err)
	}

	// The message is accepted once DATA completes; a failed QUIT is not a
	// delivery failure.
	if err := c.Quit(); err != nil {
		m.logger.Debug("mailer: quit failed", "host", p.Host, "err", err)
	}
	return nil
}

func (m *Mailer) dial(ctx context.Context, p Provider) (*smtp.Client, error) {
	addr := net.JoinHostPort(p.Host, strconv.Itoa(p.Port))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	if p.Transport == ImplicitTLS {
		tlsConn := tls.Client(conn, m.tlsFor(p.Host))
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		conn = tlsConn
	}

	c, err := smtp.NewClient(conn, p.Host)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func (m *Mailer) tlsFor(host string) *tls.Config {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if m.tlsConfig != nil {
		cfg = m.tlsConfig.Clone()
	}
	cfg.ServerName = host
	return cfg
}
