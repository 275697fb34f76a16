package mailer

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"thesisdefense_go/config"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// Message is a rendered email ready for delivery.
type Message struct {
	To      string
	ToName  string
	Subject string
	HTML    string
}

// Sender delivers one message or returns why it could not.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

// NewSender picks the sender configured by MAIL_DRIVER.
func NewSender(cfg *config.Config) Sender {
	switch cfg.MailDriver {
	case "smtp":
		return NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom, cfg.MailFromName)
	case "sendgrid":
		return NewSendGridSender(cfg.SendGridAPIKey, cfg.MailFrom, cfg.MailFromName)
	default:
		return &ConsoleSender{}
	}
}

// SMTPSender delivers through an SMTP relay such as Gmail.
type SMTPSender struct {
	dialer   *gomail.Dialer
	from     string
	fromName string
}

func NewSMTPSender(host string, port int, username, password, from, fromName string) *SMTPSender {
	return &SMTPSender{
		dialer:   gomail.NewDialer(host, port, username, password),
		from:     from,
		fromName: fromName,
	}
}

func (s *SMTPSender) Name() string { return "smtp" }

func (s *SMTPSender) Send(_ context.Context, msg Message) error {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.from, s.fromName)
	if msg.ToName != "" {
		m.SetAddressHeader("To", msg.To, msg.ToName)
	} else {
		m.SetHeader("To", msg.To)
	}
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)
	return s.dialer.DialAndSend(m)
}

var (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// SendGridSender delivers through the SendGrid v3 HTTP API.
type SendGridSender struct {
	key  string
	from *sgmail.Email
}

func NewSendGridSender(key, from, fromName string) *SendGridSender {
	return &SendGridSender{key: key, from: sgmail.NewEmail(fromName, from)}
}

func (s *SendGridSender) Name() string { return "sendgrid" }

func (s *SendGridSender) Send(_ context.Context, msg Message) error {
	p := sgmail.NewPersonalization()
	p.Subject = msg.Subject
	p.AddTos(sgmail.NewEmail(msg.ToName, msg.To))

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/html", msg.HTML))

	req := sendgrid.GetRequest(s.key, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(m)

	res, err := sendgrid.API(req)
	if err != nil {
		return err
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid returned %d: %s", res.StatusCode, res.Body)
	}
	return nil
}

// ConsoleSender logs messages instead of sending them and keeps them for inspection.
type ConsoleSender struct {
	mu   sync.Mutex
	Sent []Message
	// Fail, when set, is returned by Send.
	Fail error
}

func (s *ConsoleSender) Name() string { return "console" }

func (s *ConsoleSender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return s.Fail
	}
	s.Sent = append(s.Sent, msg)
	logrus.WithFields(logrus.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info("email (console driver)")
	return nil
}

// Messages returns a copy of what has been sent.
func (s *ConsoleSender) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.Sent...)
}
