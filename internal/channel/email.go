package channel

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/textproto"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"dailyverse/internal/model"
)

type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type mailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender sends one plain-text + HTML email per call via gomail.
type SMTPSender struct {
	dialer mailDialer
	from   string
	logger *zap.Logger
}

func NewSMTPSender(cfg EmailConfig, logger *zap.Logger) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		logger: logger,
	}
}

func (s *SMTPSender) Send(ctx context.Context, to string, msg model.GeneratedMessage) Outcome {
	if err := ctx.Err(); err != nil {
		return Transient(fmt.Sprintf("context done before send: %v", err))
	}
	if to == "" {
		return Permanent("recipient has no email address")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", msg.Title)
	m.SetBody("text/plain", renderText(msg))
	m.AddAlternative("text/html", renderHTML(msg))

	if err := s.dialer.DialAndSend(m); err != nil {
		return classifySMTPError(err)
	}
	return Success()
}

// classifySMTPError treats 5xx SMTP replies (mailbox unknown, rejected) as permanent.
func classifySMTPError(err error) Outcome {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) && tpErr.Code >= 500 {
		return Permanent(fmt.Sprintf("smtp %d: %s", tpErr.Code, tpErr.Msg))
	}
	return Transient(fmt.Sprintf("smtp: %v", err))
}

func renderText(msg model.GeneratedMessage) string {
	return fmt.Sprintf("%s\n\n\"%s\"\n- %s\n", msg.Body, msg.ScriptureText, msg.ScriptureReference)
}

func renderHTML(msg model.GeneratedMessage) string {
	return fmt.Sprintf(
		"<h2>%s</h2><p>%s</p><blockquote>%s<br><em>%s</em></blockquote>",
		html.EscapeString(msg.Title),
		html.EscapeString(msg.Body),
		html.EscapeString(msg.ScriptureText),
		html.EscapeString(msg.ScriptureReference),
	)
}
