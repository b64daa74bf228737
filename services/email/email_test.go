package emailsvc

import (
	"net/http"
	"net/mail"
	"strings"
	"sync"
	"testing"

	"github.com/sendgrid/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "gopkg.in/mail.v2"

	"github.com/trezcool/masomo-notify/core"
	"github.com/trezcool/masomo-notify/core/notification"
	"github.com/trezcool/masomo-notify/core/user"
	"github.com/trezcool/masomo-notify/tests"
)

func notificationEmail() *core.EmailMessage {
	n := notification.Notification{
		Title:      "Grade published",
		Message:    "Your maths grade is out.",
		Priority:   notification.PriorityUrgent,
		ActionURL:  "/grades/1",
		ActionText: "View grade",
	}
	usr := user.User{ID: "s1", Name: "Amani", Email: "amani@masomo.test"}
	return notification.EmailMessage(n, usr, "https://masomo.test")
}

func TestNew(t *testing.T) {
	conf := core.NewTestConfig()
	logger := testutil.NewLogger(t)

	tests := []struct {
		backend string
		want    interface{}
	}{
		{backend: BackendConsole, want: &consoleService{}},
		{backend: "", want: &consoleService{}},
		{backend: BackendSendgrid, want: &sendgridService{}},
		{backend: BackendSMTP, want: &smtpService{}},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			conf.Mail.Backend = tt.backend
			assert.IsType(t, tt.want, New(conf, logger))
		})
	}
}

func TestConsoleServiceMock_SendMessages(t *testing.T) {
	svc := NewConsoleServiceMock(core.NewTestConfig(), testutil.NewLogger(t))

	noRecipient := &core.EmailMessage{Subject: "nobody", BodyStr: "hi"}
	svc.SendMessages(notificationEmail(), noRecipient)

	sent := svc.SentMessages()
	require.Len(t, sent, 1)
	msg := sent[0]
	assert.Equal(t, "[URGENT] Grade published", msg.Subject)
	assert.Contains(t, msg.TextContent, "Hello Amani")
	assert.Contains(t, msg.TextContent, "View grade: https://masomo.test/grades/1")
	assert.Contains(t, msg.HTMLContent, "https://masomo.test/grades/1")

	svc.Reset()
	assert.Empty(t, svc.SentMessages())
}

func TestConsoleService_format(t *testing.T) {
	conf := core.NewTestConfig()
	svc := NewConsoleServiceMock(conf, testutil.NewLogger(t))

	msg := core.EmailMessage{
		To:          []mail.Address{{Name: "Amani", Address: "amani@masomo.test"}},
		Subject:     "Hello",
		TextContent: "plain body",
	}
	raw, err := svc.format(msg)
	require.NoError(t, err)
	assert.Contains(t, raw, "Subject: ["+conf.AppName+"] Hello\r\n")
	assert.Contains(t, raw, "To: \"Amani\" <amani@masomo.test>\r\n")
	assert.Contains(t, raw, "plain body")
	assert.NotContains(t, raw, "text/html")
	assert.NotContains(t, raw, "CC:")
}

func TestSendgridService_send(t *testing.T) {
	conf := core.NewTestConfig()
	conf.Mail.SendgridApiKey = "sg-key"
	svc := NewSendgridService(conf, testutil.NewLogger(t)).(*sendgridService)

	var (
		wg  sync.WaitGroup
		got rest.Request
	)
	wg.Add(1)
	svc.api = func(req rest.Request) (*rest.Response, error) {
		defer wg.Done()
		got = req
		return &rest.Response{StatusCode: http.StatusAccepted}, nil
	}

	svc.SendMessages(notificationEmail())
	wg.Wait()

	assert.Equal(t, rest.Post, got.Method)
	assert.Equal(t, host+endpoint, got.BaseURL)
	assert.Equal(t, "Bearer sg-key", got.Headers["Authorization"])
	body := string(got.Body)
	assert.Contains(t, body, "[URGENT] Grade published")
	assert.Contains(t, body, "amani@masomo.test")
	assert.Contains(t, body, "text/html")
}

type fakeDialer struct {
	mu   sync.Mutex
	sent []*gomail.Message
	done chan struct{}
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	d.mu.Lock()
	d.sent = append(d.sent, m...)
	d.mu.Unlock()
	close(d.done)
	return nil
}

func TestSMTPService_SendMessages(t *testing.T) {
	conf := core.NewTestConfig()
	svc := NewSMTPService(conf, testutil.NewLogger(t)).(*smtpService)
	dialer := &fakeDialer{done: make(chan struct{})}
	svc.dialer = dialer

	svc.SendMessages(notificationEmail())
	<-dialer.done

	dialer.mu.Lock()
	defer dialer.mu.Unlock()
	require.Len(t, dialer.sent, 1)
	m := dialer.sent[0]
	assert.Equal(t, []string{"[" + conf.AppName + "] [URGENT] Grade published"}, m.GetHeader("Subject"))
	require.Len(t, m.GetHeader("To"), 1)
	assert.True(t, strings.Contains(m.GetHeader("To")[0], "amani@masomo.test"))
	assert.Empty(t, m.GetHeader("Cc"))
}
