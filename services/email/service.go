package emailsvc

import (
	"github.com/trezcool/masomo-notify/core"
)

// Backends
const (
	BackendConsole  = "console"
	BackendSendgrid = "sendgrid"
	BackendSMTP     = "smtp"
)

// New returns the email backend selected by conf.Mail.Backend, defaulting to the console.
func New(conf *core.Config, logger core.Logger) core.EmailService {
	switch conf.Mail.Backend {
	case BackendSendgrid:
		return NewSendgridService(conf, logger)
	case BackendSMTP:
		return NewSMTPService(conf, logger)
	default:
		return NewConsoleService(conf, logger)
	}
}
