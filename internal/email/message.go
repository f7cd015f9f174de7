package email

import (
	"fmt"
	"mime"
	"strings"
	"time"
)

// HeaderNotificationKind tags outgoing mail with the event kind.
const HeaderNotificationKind = "X-Notification-Kind"

// Message is a plain-text email before serialisation.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
	Kind    string
	Date    time.Time
}

// Raw renders m as an RFC 5322 message with CRLF line endings.
func (m Message) Raw() []byte {
	date := m.Date
	if date.IsZero() {
		date = time.Now()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "To: %s\r\n", m.To)
	fmt.Fprintf(&sb, "From: %s\r\n", m.From)
	fmt.Fprintf(&sb, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	fmt.Fprintf(&sb, "Date: %s\r\n", date.Format(time.RFC1123Z))
	if m.Kind != "" {
		fmt.Fprintf(&sb, "%s: %s\r\n", HeaderNotificationKind, m.Kind)
	}
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(strings.ReplaceAll(strings.ReplaceAll(m.Body, "\r\n", "\n"), "\n", "\r\n"))
	sb.WriteString("\r\n")
	return []byte(sb.String())
}
