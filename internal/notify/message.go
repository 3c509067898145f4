package notify

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Message is a structured outbound mail, per spec §4.9.
type Message struct {
	ID      string
	From    string
	To      []string
	Subject string
	Body    string
}

// NewMessage builds a Message with a fresh correlation-friendly ID.
func NewMessage(to []string, subject, body string) *Message {
	return &Message{
		ID:      uuid.NewString(),
		To:      to,
		Subject: subject,
		Body:    body,
	}
}

// Bytes renders the message as an RFC 5322-ish payload suitable for
// net/smtp.SendMail's msg argument.
func (m *Message) Bytes(fromHeader string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", fromHeader)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(m.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", m.Subject)
	fmt.Fprintf(&b, "Message-Id: <%s@flexsentry>\r\n", m.ID)
	b.WriteString("\r\n")
	b.WriteString(m.Body)
	return []byte(b.String())
}
