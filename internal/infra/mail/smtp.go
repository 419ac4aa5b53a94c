package mail

import (
	"context"
	"fmt"
	"time"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/arklim/moodwell/internal/core/port"
	"github.com/arklim/moodwell/internal/infra/config"
	"github.com/arklim/moodwell/internal/infra/logger"
)

type sendFunc func(ctx context.Context, msg *gomail.Msg) error

// SMTPNotifier mails reset codes through an authenticated SMTP relay.
type SMTPNotifier struct {
	from    string
	subject string
	logger  *zap.Logger
	send    sendFunc
	now     func() time.Time
}

func NewSMTPNotifier(cfg config.MailSettings, log *zap.Logger) (*SMTPNotifier, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("mail host is empty")
	}

	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	if from == "" {
		return nil, fmt.Errorf("mail sender is empty")
	}

	subject := cfg.Subject
	if subject == "" {
		subject = "Reset Password"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	opts := []gomail.Option{
		gomail.WithTimeout(timeout),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
	}
	if cfg.Port > 0 {
		opts = append(opts, gomail.WithPort(cfg.Port))
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}

	return &SMTPNotifier{
		from:    from,
		subject: subject,
		logger:  log,
		send: func(ctx context.Context, msg *gomail.Msg) error {
			return client.DialAndSendWithContext(ctx, msg)
		},
		now: time.Now,
	}, nil
}

// SendResetCode blocks until the relay accepts the message, the client
// timeout lapses or ctx is done.
func (n *SMTPNotifier) SendResetCode(ctx context.Context, email, code string) error {
	msg, err := n.compose(email, code)
	if err != nil {
		return fmt.Errorf("compose reset mail for %s: %w", logger.MaskEmail(email), err)
	}

	if err := n.send(ctx, msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", logger.MaskEmail(email), err)
	}
	n.logger.Debug("reset code mailed", zap.String("email", logger.MaskEmail(email)))
	return nil
}

func (n *SMTPNotifier) compose(to, code string) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.From(n.from); err != nil {
		return nil, fmt.Errorf("sender: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("recipient: %w", err)
	}
	msg.Subject(n.subject)
	msg.SetDateWithValue(n.now())
	msg.SetBodyString(gomail.TypeTextPlain, "Your OTP is: "+code)
	return msg, nil
}

var _ port.ResetCodeNotifier = (*SMTPNotifier)(nil)
