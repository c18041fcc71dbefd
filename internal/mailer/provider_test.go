package mailer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupDefaultProviders(t *testing.T) {
	cases := []struct {
		sender string
		want   Provider
	}{
		{"a@gmail.com", Provider{Host: "smtp.gmail.com", Port: 587, Transport: StartTLS}},
		{"a@qq.com", Provider{Host: "smtp.qq.com", Port: 465, Transport: ImplicitTLS}},
		{"a@163.com", Provider{Host: "smtp.163.com", Port: 465, Transport: ImplicitTLS}},
		{"Someone@GMAIL.COM", Provider{Host: "smtp.gmail.com", Port: 587, Transport: StartTLS}},
	}

	for _, tc := range cases {
		t.Run(tc.sender, func(t *testing.T) {
			got, err := DefaultProviders().Lookup(tc.sender)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestLookupUnsupported(t *testing.T) {
	for _, sender := range []string{"a@unknown.example", "a@mail.qq.com", "a@notqq.com", "no-at-sign", "trailing@"} {
		t.Run(sender, func(t *testing.T) {
			_, err := DefaultProviders().Lookup(sender)

			var unsupported *UnsupportedProviderError
			require.True(t, errors.As(err, &unsupported), "got %v", err)
			assert.Equal(t, sender, unsupported.Sender)
		})
	}
}

func TestTransportString(t *testing.T) {
	assert.Equal(t, "implicit-tls", ImplicitTLS.String())
	assert.Equal(t, "starttls", StartTLS.String())
}
