package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	pkglogger "github.com/BradenHooton/libgate/pkg/logger"
)

// EmailService sends the second-factor code and password reset links
type EmailService interface {
	SendSecondFactorCode(ctx context.Context, email, code string, expiresAt time.Time) error
	SendPasswordReset(ctx context.Context, email, link string, expiresAt time.Time) error
}

// SESSender is the part of the SES client used here.
type SESSender interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// AWSSESEmailService sends emails using AWS SES
type AWSSESEmailService struct {
	client      SESSender
	fromAddress string
	logger      *slog.Logger
}

// NewAWSSESEmailService creates a new AWS SES email service
func NewAWSSESEmailService(ctx context.Context, region, fromName, fromAddress string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewSESEmailServiceWithClient(ses.NewFromConfig(cfg), fromName, fromAddress, logger), nil
}

func NewSESEmailServiceWithClient(client SESSender, fromName, fromAddress string, logger *slog.Logger) *AWSSESEmailService {
	from := fromAddress
	if fromName != "" {
		from = fmt.Sprintf("%s <%s>", fromName, fromAddress)
	}
	return &AWSSESEmailService{client: client, fromAddress: from, logger: logger}
}

func (s *AWSSESEmailService) SendSecondFactorCode(ctx context.Context, email, code string, expiresAt time.Time) error {
	minutes := int(time.Until(expiresAt).Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}

	text := fmt.Sprintf(`Your sign-in code

Enter this code to finish signing in:

%s

The code expires in %d minutes. If you did not try to sign in, change your password.
`, code, minutes)

	html := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
    <h2>Your sign-in code</h2>
    <p>Enter this code to finish signing in:</p>
    <p style="font-size: 28px; letter-spacing: 6px;"><strong>%s</strong></p>
    <p>The code expires in %d minutes. If you did not try to sign in, change your password.</p>
</body>
</html>
`, code, minutes)

	return s.send(ctx, email, "Your sign-in code", html, text)
}

func (s *AWSSESEmailService) SendPasswordReset(ctx context.Context, email, link string, expiresAt time.Time) error {
	text := fmt.Sprintf(`Reset your password

Follow this link to choose a new password:

%s

The link expires at %s. If you did not ask for a reset, ignore this email.
`, link, expiresAt.UTC().Format(time.RFC1123))

	html := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
    <h2>Reset your password</h2>
    <p><a href="%s">Choose a new password</a></p>
    <p>Or copy this link into your browser:<br><code>%s</code></p>
    <p>The link expires at %s. If you did not ask for a reset, ignore this email.</p>
</body>
</html>
`, link, link, expiresAt.UTC().Format(time.RFC1123))

	return s.send(ctx, email, "Reset your password", html, text)
}

func (s *AWSSESEmailService) send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(htmlBody)},
				Text: &types.Content{Data: aws.String(textBody)},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send email via SES",
			slog.String("email", pkglogger.SanitizedEmail(to)),
			slog.String("subject", subject),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent",
		slog.String("email", pkglogger.SanitizedEmail(to)),
		slog.String("subject", subject),
		slog.String("message_id", aws.ToString(result.MessageId)))

	return nil
}

// LogEmailService stands in for SES when email is disabled. The code and
// link are written at debug level so local development can complete a flow.
type LogEmailService struct {
	logger *slog.Logger
}

func NewLogEmailService(logger *slog.Logger) *LogEmailService {
	return &LogEmailService{logger: logger}
}

func (s *LogEmailService) SendSecondFactorCode(ctx context.Context, email, code string, expiresAt time.Time) error {
	s.logger.DebugContext(ctx, "email disabled, second factor code",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("code", code),
		slog.Time("expires_at", expiresAt))
	return nil
}

func (s *LogEmailService) SendPasswordReset(ctx context.Context, email, link string, expiresAt time.Time) error {
	s.logger.DebugContext(ctx, "email disabled, password reset link",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("link", link),
		slog.Time("expires_at", expiresAt))
	return nil
}

// ResetLink builds the link the reset email points at.
func ResetLink(baseURL, email, token string) string {
	q := url.Values{}
	q.Set("token", token)
	q.Set("email", email)
	return baseURL + "?" + q.Encode()
}
