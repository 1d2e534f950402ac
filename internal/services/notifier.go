package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// Notifier delivers account-security emails. Delivery failure is reported to
// the caller but never rolls back state already committed.
type Notifier interface {
	SendVerificationLink(ctx context.Context, email, token string) error
	SendTwoFactorCode(ctx context.Context, email, code string) error
	SendUnlockLink(ctx context.Context, email, token string) error
}

// SESNotifier sends emails through AWS SES
type SESNotifier struct {
	sesClient   *ses.Client
	fromAddress string
	baseURL     string
	sendTimeout time.Duration
	logger      *slog.Logger
}

// NewSESNotifier creates a new SES-backed notifier
func NewSESNotifier(region, fromAddress, baseURL string, sendTimeout time.Duration, logger *slog.Logger) (*SESNotifier, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESNotifier{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		baseURL:     baseURL,
		sendTimeout: sendTimeout,
		logger:      logger,
	}, nil
}

func (n *SESNotifier) SendVerificationLink(ctx context.Context, email, token string) error {
	link := fmt.Sprintf("%s/auth/verify-email?token=%s", n.baseURL, token)

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
    <h1>Verify your email address</h1>
    <p>Thank you for creating an account. To finish registration, verify your email address:</p>
    <p><a href="%s" style="display: inline-block; background-color: #0066cc; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px;">Verify Email Address</a></p>
    <p>Or copy and paste this link in your browser:<br><code>%s</code></p>
    <p>This link expires in 24 hours.</p>
    <p>If you didn't sign up for this account, you can ignore this email.</p>
  </div>
</body>
</html>
`, link, link)

	textBody := fmt.Sprintf(`Verify your email address

Thank you for creating an account. To finish registration, open this link:

%s

This link expires in 24 hours. If you didn't sign up for this account, you can ignore this email.
`, link)

	return n.send(ctx, email, "Verify your email address", htmlBody, textBody)
}

func (n *SESNotifier) SendTwoFactorCode(ctx context.Context, email, code string) error {
	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
    <h1>Your verification code</h1>
    <p style="font-size: 24px; font-weight: bold; letter-spacing: 2px;">%s</p>
    <p>This code expires in 5 minutes.</p>
    <p>If you didn't request this code, ignore this email.</p>
  </div>
</body>
</html>
`, code)

	textBody := fmt.Sprintf(`Your verification code is: %s

This code expires in 5 minutes. If you didn't request this code, ignore this email.
`, code)

	return n.send(ctx, email, "Your login verification code", htmlBody, textBody)
}

func (n *SESNotifier) SendUnlockLink(ctx context.Context, email, token string) error {
	link := fmt.Sprintf("%s/auth/unlock-account?token=%s", n.baseURL, token)

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
    <h1>Unlock your account</h1>
    <p>Your account was temporarily locked after repeated failed verification attempts.</p>
    <p><a href="%s" style="display: inline-block; background-color: #0066cc; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px;">Unlock my account</a></p>
    <p>Or copy and paste this link in your browser:<br><code>%s</code></p>
  </div>
</body>
</html>
`, link, link)

	textBody := fmt.Sprintf(`Unlock your account

Your account was temporarily locked after repeated failed verification attempts.
To unlock it, open this link:

%s
`, link)

	return n.send(ctx, email, "Unlock your account", htmlBody, textBody)
}

func (n *SESNotifier) send(ctx context.Context, email, subject, htmlBody, textBody string) error {
	ctx, cancel := context.WithTimeout(ctx, n.sendTimeout)
	defer cancel()

	input := &ses.SendEmailInput{
		Source: aws.String(n.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(htmlBody),
				},
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := n.sesClient.SendEmail(ctx, input)
	if err != nil {
		n.logger.Error("failed to send email via SES",
			slog.String("subject", subject),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	n.logger.Info("email sent",
		slog.String("subject", subject),
		slog.String("message_id", *result.MessageId))

	return nil
}
