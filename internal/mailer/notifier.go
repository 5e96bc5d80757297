// Package mailer sends the verification, contact and transcript emails.
package mailer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrSnakeDoc/folio/internal/domain"
	"github.com/MrSnakeDoc/folio/internal/logger"
)

// TranscriptFilename is the name of the transcript attachment.
const TranscriptFilename = "chat_transcript.txt"

// Attachment is a plain text file attached to a message.
type Attachment struct {
	Filename string
	Content  string
}

// Message is one outbound email.
type Message struct {
	To          string
	ReplyTo     string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Transport delivers a message. Implementations must not retry.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// Notifier renders the application's emails and hands them to a Transport.
type Notifier struct {
	transport  Transport
	log        logger.Logger
	ownerName  string
	ownerEmail string
}

// NewNotifier creates a notifier. ownerEmail receives contact form relays.
func NewNotifier(transport Transport, log logger.Logger, ownerName, ownerEmail string) *Notifier {
	return &Notifier{
		transport:  transport,
		log:        log,
		ownerName:  ownerName,
		ownerEmail: ownerEmail,
	}
}

// OwnerName returns the name used in email bodies.
func (n *Notifier) OwnerName() string { return n.ownerName }

// SendEndorseCode mails the code authorizing an endorsement of skillName.
func (n *Notifier) SendEndorseCode(ctx context.Context, to, code, skillName string, ttl time.Duration) error {
	body := fmt.Sprintf(`Hi there!

Your verification code for endorsing %s's %s skills is: %s

This code will expire in %s.

Thank you for supporting %s's professional network!

Best regards,
%s's Portfolio`, n.ownerName, skillName, code, humanMinutes(ttl), n.ownerName, n.ownerName)

	return n.send(ctx, "otp_endorse", Message{
		To:      to,
		Subject: "Verify Your Portfolio Endorsement",
		Body:    body,
	})
}

// SendDeleteCode mails the code authorizing the deletion of an endorsement.
func (n *Notifier) SendDeleteCode(ctx context.Context, to, code string, ttl time.Duration) error {
	body := fmt.Sprintf(`Hi there!

Your verification code for deleting your endorsement is: %s

This code will expire in %s.

Best regards,
%s's Portfolio`, code, humanMinutes(ttl), n.ownerName)

	return n.send(ctx, "otp_delete", Message{
		To:      to,
		Subject: "Verify Endorsement Deletion",
		Body:    body,
	})
}

// SendContact relays a contact form to the owner. Replies go to the visitor.
func (n *Notifier) SendContact(ctx context.Context, c *domain.ContactSubmission) error {
	body := fmt.Sprintf(`You have received a new contact form submission:

Name: %s
Email: %s
Subject: %s

Message:
%s
`, c.Name, c.Email, c.Subject, c.Message)

	return n.send(ctx, "contact", Message{
		To:      n.ownerEmail,
		ReplyTo: c.Email,
		Subject: "New Contact Form Submission: " + c.Subject,
		Body:    body,
	})
}

// SendTranscript mails a chat transcript to a visitor. note is the visitor's
// optional message and is echoed in the greeting.
func (n *Notifier) SendTranscript(ctx context.Context, to, note string, messages []domain.Message) error {
	var echo string
	if strings.TrimSpace(note) != "" {
		echo = fmt.Sprintf("\nYour message was: '%s'\n", note)
	}

	body := fmt.Sprintf(`Hi!

You have requested to export the chat transcript.
%s
Thank you for checking out my portfolio!

Please see the attached chat transcript.

Best regards,

%s
`, echo, n.ownerName)

	return n.send(ctx, "transcript", Message{
		To:          to,
		Subject:     "Exported Chat Transcript",
		Body:        body,
		Attachments: []Attachment{{Filename: TranscriptFilename, Content: Transcript(messages)}},
	})
}

// Transcript renders messages as the plain text attachment.
func Transcript(messages []domain.Message) string {
	var b strings.Builder
	for _, m := range messages {
		ts := "-"
		if !m.Timestamp.IsZero() {
			ts = m.Timestamp.UTC().Format(time.RFC3339)
		}
		who := "You"
		if m.Role == domain.RoleAssistant {
			who = "Assistant"
		}
		fmt.Fprintf(&b, "[%s] [%s] %s\n\n\n", ts, who, m.Content)
	}
	return b.String()
}

func (n *Notifier) send(ctx context.Context, kind string, msg Message) error {
	if err := n.transport.Send(ctx, msg); err != nil {
		n.log.Error("failed to send email",
			logger.String("kind", kind),
			logger.Error(err))
		return fmt.Errorf("send %s email: %w", kind, err)
	}
	n.log.Info("email sent", logger.String("kind", kind))
	return nil
}

func humanMinutes(d time.Duration) string {
	m := int(d.Round(time.Minute) / time.Minute)
	if m == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", m)
}
