package emailsvc

import (
	"fmt"
	"net/mail"

	"github.com/pkg/errors"
	gomail "gopkg.in/mail.v2"

	"github.com/trezcool/masomo-notify/core"
)

type smtpService struct {
	from       mail.Address
	subjPrefix string
	logger     core.Logger

	dialer interface {
		DialAndSend(m ...*gomail.Message) error
	}
}

var _ core.EmailService = (*smtpService)(nil)

func NewSMTPService(conf *core.Config, logger core.Logger) core.EmailService {
	return &smtpService{
		from:       conf.DefaultFromEmail(),
		subjPrefix: "[" + conf.AppName + "] ",
		logger:     logger,
		dialer:     gomail.NewDialer(conf.Mail.SMTPHost, conf.Mail.SMTPPort, conf.Mail.SMTPUser, conf.Mail.SMTPPassword),
	}
}

func (svc *smtpService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		go func(msg *core.EmailMessage) {
			if err := svc.send(msg); err != nil {
				svc.logger.Error(err.Error(), err)
			}
		}(msg)
	}
}

func (svc *smtpService) prepare(msg core.EmailMessage) *gomail.Message {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", svc.from.Address, svc.from.Name)
	m.SetHeader("Subject", svc.subjPrefix+msg.Subject)

	headers := map[string][]mail.Address{"To": msg.To, "Cc": msg.Cc, "Bcc": msg.Bcc}
	for field, addrs := range headers {
		if len(addrs) == 0 {
			continue
		}
		formatted := make([]string, 0, len(addrs))
		for _, a := range addrs {
			formatted = append(formatted, m.FormatAddress(a.Address, a.Name))
		}
		m.SetHeader(field, formatted...)
	}

	m.SetBody("text/plain", msg.TextContent)
	if msg.HTMLContent != "" {
		m.AddAlternative("text/html", msg.HTMLContent)
	}
	return m
}

func (svc *smtpService) send(msg *core.EmailMessage) error {
	if err := msg.Render(); err != nil {
		return errors.Wrap(err, "rendering email")
	}
	if !msg.HasRecipients() || !msg.HasContent() {
		return nil
	}
	if err := svc.dialer.DialAndSend(svc.prepare(*msg)); err != nil {
		return errors.Wrap(err, fmt.Sprintf("sending email to %s", joinAddresses(msg.To)))
	}
	return nil
}
