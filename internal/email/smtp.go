package email

import (
	"crypto/tls"

	mail "github.com/go-mail/mail"

	"github.com/dropDatabas3/authkit/internal/observability/logger"
)

// SMTPSender implements Sender over SMTP with multipart/alternative bodies.
type SMTPSender struct {
	Host               string
	Port               int
	From               string
	User               string
	Pass               string
	TLSMode            string // "auto" | "starttls" | "ssl" | "none"
	InsecureSkipVerify bool
}

// NewSMTPSender builds an SMTPSender with TLS auto-negotiation.
func NewSMTPSender(host string, port int, from, user, pass string) *SMTPSender {
	return &SMTPSender{Host: host, Port: port, From: from, User: user, Pass: pass, TLSMode: "auto"}
}

// Send delivers a single message.
func (s *SMTPSender) Send(to, subject, htmlBody, textBody string) error {
	log := logger.Named("email.smtp").With(
		logger.String("host", s.Host),
		logger.String("to", to),
	)
	log.Debug("sending email", logger.String("subject", subject))

	m := mail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)

	if textBody != "" {
		m.SetBody("text/plain", textBody)
	}
	if htmlBody != "" {
		if textBody == "" {
			m.SetBody("text/html", htmlBody)
		} else {
			m.AddAlternative("text/html", htmlBody)
		}
	}

	d := mail.NewDialer(s.Host, s.Port, s.User, s.Pass)
	d.TLSConfig = &tls.Config{
		ServerName:         s.Host,
		InsecureSkipVerify: s.InsecureSkipVerify,
	}
	switch s.TLSMode {
	case "ssl":
		d.SSL = true
	case "starttls":
		d.StartTLSPolicy = mail.MandatoryStartTLS
	case "none":
		d.StartTLSPolicy = mail.NoStartTLS
	default: // auto
		d.StartTLSPolicy = mail.OpportunisticStartTLS
	}

	if err := d.DialAndSend(m); err != nil {
		log.Warn("smtp send failed", logger.Err(err))
		return err
	}
	return nil
}

// LogSender is the dev/test Sender: it logs instead of delivering.
type LogSender struct{}

func (LogSender) Send(to, subject, htmlBody, textBody string) error {
	logger.Named("email.log").Info("email (not sent)",
		logger.String("to", to),
		logger.String("subject", subject),
	)
	return nil
}
