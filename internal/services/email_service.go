package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// Mailer delivers admin-provisioned initial secrets out of band. The core
// never blocks on delivery; a nil Mailer disables it entirely.
type Mailer interface {
	SendInitialSecret(ctx context.Context, recipient, profileName, secret string) error
}

// AWSSESMailer sends credential notifications through AWS SES
type AWSSESMailer struct {
	sesClient   *ses.Client
	fromAddress string
	logger      *slog.Logger
}

// NewAWSSESMailer creates an SES-backed mailer
func NewAWSSESMailer(region, fromAddress string, logger *slog.Logger) (*AWSSESMailer, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &AWSSESMailer{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

// SendInitialSecret mails the generated secret for a freshly provisioned or
// reset profile
func (m *AWSSESMailer) SendInitialSecret(ctx context.Context, recipient, profileName, secret string) error {
	textBody := fmt.Sprintf(
		"A chat profile %q has been provisioned for you.\n\n"+
			"Temporary access code: %s\n\n"+
			"Log in and change it immediately; this code expires with the password policy.\n",
		profileName, secret)

	input := &ses.SendEmailInput{
		Source: aws.String(m.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{recipient},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String("Your chat profile access code"),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(textBody),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	if _, err := m.sesClient.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("failed to send credential email: %w", err)
	}

	m.logger.Info("credential email sent", slog.String("profile", profileName))
	return nil
}
