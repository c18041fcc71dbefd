package mailer

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dailysend/internal/model"
)

// buildMessage renders d as a multipart/mixed message: a plain-text part and,
// when d.Attachment is set, the file as a base64 part named after its base name.
func buildMessage(d model.Delivery, date time.Time) ([]byte, error) {
	if strings.TrimSpace(d.Recipient) == "" {
		return nil, ErrNoRecipient
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	// Text part
	textHeader := textproto.MIMEHeader{}
	textHeader.Set("Content-Type", "text/plain; charset=UTF-8")
	textHeader.Set("Content-Transfer-Encoding", "quoted-printable")
	textPart, err := writer.CreatePart(textHeader)
	if err != nil {
		return nil, err
	}
	qp := quotedprintable.NewWriter(textPart)
	if _, err := qp.Write([]byte(d.Body)); err != nil {
		return nil, err
	}
	if err := qp.Close(); err != nil {
		return nil, err
	}

	if d.Attachment != "" {
		if err := writeAttachment(writer, d.Attachment); err != nil {
			return nil, err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}

	var msg bytes.Buffer
	msg.WriteString(fmt.Sprintf("From: %s\r\n", headerValue(d.Sender.Address)))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", headerValue(d.Recipient)))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", headerValue(d.Subject))))
	msg.WriteString(fmt.Sprintf("Date: %s\r\n", date.Format(time.RFC1123Z)))
	msg.WriteString(fmt.Sprintf("Message-ID: <%s@%s>\r\n", uuid.NewString(), messageIDDomain(d.Sender.Address)))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString(fmt.Sprintf("Content-Type: multipart/mixed; boundary=%q\r\n", writer.Boundary()))
	msg.WriteString("\r\n")
	msg.Write(buf.Bytes())

	return msg.Bytes(), nil
}

func writeAttachment(writer *multipart.Writer, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read attachment: %w", err)
	}
	name := filepath.Base(path)

	attHeader := textproto.MIMEHeader{}
	attHeader.Set("Content-Type", mime.FormatMediaType("application/octet-stream", map[string]string{"name": name}))
	attHeader.Set("Content-Transfer-Encoding", "base64")
	attHeader.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))

	attPart, err := writer.CreatePart(attHeader)
	if err != nil {
		return err
	}

	encoded := base64.StdEncoding.EncodeToString(data)
	// 76-character lines per RFC 2045
	for i := 0; i < len(encoded); i += 76 {
		end := min(i+76, len(encoded))
		if _, err := attPart.Write([]byte(encoded[i:end] + "\r\n")); err != nil {
			return err
		}
	}
	return nil
}

// headerValue strips line breaks so a value cannot inject extra headers.
func headerValue(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

func messageIDDomain(sender string) string {
	if at := strings.LastIndex(sender, "@"); at >= 0 && at < len(sender)-1 {
		return headerValue(sender[at+1:])
	}
	return "localhost"
}
