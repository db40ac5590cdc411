package email

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"gopkg.in/gomail.v2"

	"github.com/rsyarsya/pneuscope/internal/model"
)

type Service interface {
	Send(ctx context.Context, n *model.Notification) error
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// NewService returns an SMTP sender, or a sender that only logs when no
// SMTP host is configured.
func NewService(cfg Config) Service {
	if cfg.Host == "" {
		log.Warn().Msg("SMTP host not configured, emails will only be logged")
		return logService{}
	}
	return &smtpService{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

type smtpService struct {
	dialer *gomail.Dialer
	from   string
}

func (s *smtpService) Send(ctx context.Context, n *model.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", n.To)
	m.SetHeader("Subject", n.Subject)
	if n.HTML {
		m.SetBody("text/html", n.Body)
	} else {
		m.SetBody("text/plain", n.Body)
	}

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", n.To, err)
	}
	return nil
}

type logService struct{}

func (logService) Send(_ context.Context, n *model.Notification) error {
	log.Info().Str("to", n.To).Str("subject", n.Subject).Msg("Email not sent (SMTP disabled)")
	return nil
}
