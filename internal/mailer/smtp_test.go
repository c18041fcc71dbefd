package mailer

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dailysend/internal/model"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type captured struct {
	provider Provider
	creds    model.Credentials
	to       string
	msg      string
}

func captureSend(t *testing.T, m *Mailer, err error) *captured {
	t.Helper()
	var c captured
	m.sendFn = func(_ context.Context, p Provider, creds model.Credentials, to string, msg []byte) error {
		c = captured{provider: p, creds: creds, to: to, msg: string(msg)}
		return err
	}
	return &c
}

func TestDeliverSelectsProviderFromSender(t *testing.T) {
	m := New(WithLogger(quietLogger()))
	got := captureSend(t, m, nil)

	out := m.Deliver(context.Background(), model.Delivery{
		Sender:    model.Credentials{Address: "a@gmail.com", Secret: "s3cret"},
		Recipient: "x@a.com",
		Subject:   "Hi",
		Body:      "Hello",
	})

	require.True(t, out.Success)
	assert.NoError(t, out.Err)
	assert.Equal(t, "x@a.com", out.Recipient)
	assert.Equal(t, Provider{Host: "smtp.gmail.com", Port: 587, Transport: StartTLS}, got.provider)
	assert.Equal(t, "s3cret", got.creds.Secret)
	assert.Equal(t, "x@a.com", got.to)
	assert.Contains(t, got.msg, "To: x@a.com\r\n")
}

func TestDeliverUnsupportedProvider(t *testing.T) {
	m := New(WithLogger(quietLogger()))
	called := false
	m.sendFn = func(context.Context, Provider, model.Credentials, string, []byte) error {
		called = true
		return nil
	}

	out := m.Deliver(context.Background(), model.Delivery{
		Sender:    model.Credentials{Address: "a@unknown.example"},
		Recipient: "x@a.com",
	})

	assert.False(t, out.Success)
	assert.False(t, called)

	var unsupported *UnsupportedProviderError
	assert.True(t, errors.As(out.Err, &unsupported))
	var de *DeliveryError
	require.True(t, errors.As(out.Err, &de))
	assert.Equal(t, StageProvider, de.Stage)
}

func TestDeliverWrapsSubmitFailure(t *testing.T) {
	m := New(WithLogger(quietLogger()))
	captureSend(t, m, errors.New("connection reset"))

	out := m.Deliver(context.Background(), model.Delivery{
		Sender:    model.Credentials{Address: "a@qq.com"},
		Recipient: "x@a.com",
	})

	assert.False(t, out.Success)
	var de *DeliveryError
	require.True(t, errors.As(out.Err, &de))
	assert.Equal(t, StageSubmit, de.Stage)
	assert.Equal(t, "x@a.com", de.Recipient)
}

func TestDeliverComposeFailure(t *testing.T) {
	m := New(WithLogger(quietLogger()))
	captureSend(t, m, nil)

	out := m.Deliver(context.Background(), model.Delivery{
		Sender:     model.Credentials{Address: "a@qq.com"},
		Recipient:  "x@a.com",
		Attachment: "/nonexistent/attachment.bin",
	})

	assert.False(t, out.Success)
	var de *DeliveryError
	require.True(t, errors.As(out.Err, &de))
	assert.Equal(t, StageCompose, de.Stage)
}

// fakeSMTP is a minimal submission server good for one session at a time.
type fakeSMTP struct {
	addr      *net.TCPAddr
	tlsConfig *tls.Config
	secret    string
	startTLS  bool // plaintext listener that offers STARTTLS

	mu       sync.Mutex
	user     string
	mailFrom string
	rcptTo   string
	data     string
}

func selfSignedTLS(t *testing.T) (*tls.Config, *x509.CertPool) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "127.0.0.1"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		IsCA:                  true,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	pool := x509.NewCertPool()
	pool.AddCert(leaf)

	cfg := &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}},
		MinVersion:   tls.VersionTLS12,
	}
	return cfg, pool
}

func startFakeSMTP(t *testing.T, startTLS bool, offerStartTLS bool) (*fakeSMTP, *x509.CertPool) {
	t.Helper()

	serverTLS, pool := selfSignedTLS(t)

	var (
		ln  net.Listener
		err error
	)
	if startTLS {
		ln, err = net.Listen("tcp", "127.0.0.1:0")
	} else {
		ln, err = tls.Listen("tcp", "127.0.0.1:0", serverTLS)
	}
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	s := &fakeSMTP{
		addr:      ln.Addr().(*net.TCPAddr),
		tlsConfig: serverTLS,
		secret:    "s3cret",
		startTLS:  startTLS && offerStartTLS,
	}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go s.serve(conn)
		}
	}()
	return s, pool
}

func (s *fakeSMTP) serve(conn net.Conn) {
	defer func() { conn.Close() }()
	tp := textproto.NewConn(conn)
	_ = tp.PrintfLine("220 127.0.0.1 ESMTP fake")

	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		verb := strings.ToUpper(line)

		switch {
		case strings.HasPrefix(verb, "EHLO"):
			if s.startTLS {
				_ = tp.PrintfLine("250-127.0.0.1")
				_ = tp.PrintfLine("250 STARTTLS")
			} else {
				_ = tp.PrintfLine("250-127.0.0.1")
				_ = tp.PrintfLine("250 AUTH PLAIN")
			}
		case verb == "STARTTLS" && s.startTLS:
			_ = tp.PrintfLine("220 ready to start TLS")
			tlsConn := tls.Server(conn, s.tlsConfig)
			if err := tlsConn.Handshake(); err != nil {
				return
			}
			conn = tlsConn
			tp = textproto.NewConn(conn)
			s.startTLS = false
		case strings.HasPrefix(verb, "AUTH PLAIN "):
			raw, _ := base64.StdEncoding.DecodeString(strings.TrimSpace(line[len("AUTH PLAIN "):]))
			fields := strings.Split(string(raw), "\x00")
			if len(fields) == 3 && fields[2] == s.secret {
				s.mu.Lock()
				s.user = fields[1]
				s.mu.Unlock()
				_ = tp.PrintfLine("235 2.7.0 authentication successful")
			} else {
				_ = tp.PrintfLine("535 5.7.8 authentication failed")
			}
		case strings.HasPrefix(verb, "MAIL FROM:"):
			s.mu.Lock()
			s.mailFrom = line[len("MAIL FROM:"):]
			s.mu.Unlock()
			_ = tp.PrintfLine("250 ok")
		case strings.HasPrefix(verb, "RCPT TO:"):
			s.mu.Lock()
			s.rcptTo = line[len("RCPT TO:"):]
			s.mu.Unlock()
			_ = tp.PrintfLine("250 ok")
		case verb == "DATA":
			_ = tp.PrintfLine("354 end data with <CR><LF>.<CR><LF>")
			data, err := tp.ReadDotBytes()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.data = string(data)
			s.mu.Unlock()
			_ = tp.PrintfLine("250 queued")
		case verb == "QUIT":
			_ = tp.PrintfLine("221 bye")
			return
		default:
			_ = tp.PrintfLine("502 command not implemented")
		}
	}
}

func (s *fakeSMTP) mailer(pool *x509.CertPool, transport Transport) *Mailer {
	return New(
		WithLogger(quietLogger()),
		WithTLSConfig(&tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}),
		WithProviders(Providers{
			"example.test": {Host: "127.0.0.1", Port: s.addr.Port, Transport: transport},
		}),
	)
}

func TestDeliverOverImplicitTLS(t *testing.T) {
	srv, pool := startFakeSMTP(t, false, false)
	m := srv.mailer(pool, ImplicitTLS)

	out := m.Deliver(context.Background(), model.Delivery{
		Sender:    model.Credentials{Address: "me@example.test", Secret: "s3cret"},
		Recipient: "you@example.org",
		Subject:   "Over TLS",
		Body:      "hello over tls",
	})
	require.True(t, out.Success, "outcome error: %v", out.Err)

	srv.mu.Lock()
	defer srv.mu.Unlock()
	assert.Equal(t, "me@example.test", srv.user)
	assert.Equal(t, "<me@example.test>", srv.mailFrom)
	assert.Equal(t, "<you@example.org>", srv.rcptTo)
	assert.Contains(t, srv.data, "Subject: Over TLS")
	assert.Contains(t, srv.data, "hello over tls")
}

func TestDeliverOverStartTLS(t *testing.T) {
	srv, pool := startFakeSMTP(t, true, true)
	m := srv.mailer(pool, StartTLS)

	out := m.Deliver(context.Background(), model.Delivery{
		Sender:    model.Credentials{Address: "me@example.test", Secret: "s3cret"},
		Recipient: "you@example.org",
		Subject:   "Upgraded",
		Body:      "hello after starttls",
	})
	require.True(t, out.Success, "outcome error: %v", out.Err)

	srv.mu.Lock()
	defer srv.mu.Unlock()
	assert.Equal(t, "<you@example.org>", srv.rcptTo)
	assert.Contains(t, srv.data, "Subject: Upgraded")
}

func TestDeliverStartTLSRequired(t *testing.T) {
	srv, pool := startFakeSMTP(t, true, false)
	m := srv.mailer(pool, StartTLS)

	out := m.Deliver(context.Background(), model.Delivery{
		Sender:    model.Credentials{Address: "me@example.test", Secret: "s3cret"},
		Recipient: "you@example.org",
	})

	assert.False(t, out.Success)
	assert.ErrorIs(t, out.Err, ErrStartTLSUnsupported)
}

func TestDeliverAuthFailure(t *testing.T) {
	srv, pool := startFakeSMTP(t, false, false)
	m := srv.mailer(pool, ImplicitTLS)

	out := m.Deliver(context.Background(), model.Delivery{
		Sender:    model.Credentials{Address: "me@example.test", Secret: "wrong"},
		Recipient: "you@example.org",
	})

	assert.False(t, out.Success)
	var de *DeliveryError
	require.True(t, errors.As(out.Err, &de))
	assert.Equal(t, StageAuth, de.Stage)
}

func TestDeliverConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	m := New(
		WithLogger(quietLogger()),
		WithProviders(Providers{"example.test": {Host: "127.0.0.1", Port: port, Transport: ImplicitTLS}}),
	)

	out := m.Deliver(context.Background(), model.Delivery{
		Sender:    model.Credentials{Address: "me@example.test", Secret: "s3cret"},
		Recipient: "you@example.org",
	})

	assert.False(t, out.Success)
	var de *DeliveryError
	require.True(t, errors.As(out.Err, &de))
	assert.Equal(t, StageConnect, de.Stage)
}
