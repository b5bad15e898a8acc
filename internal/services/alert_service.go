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
	"github.com/stagehub/pinguard/internal/models"
)

// AWSSESAlertService emails the internship coordinator when an account
// crosses the lock threshold, a strong signal of PIN guessing.
type AWSSESAlertService struct {
	sesClient   *ses.Client
	fromAddress string
	toAddress   string
	logger      *slog.Logger
}

// NewAWSSESAlertService creates a new AWS SES alert service
func NewAWSSESAlertService(region, fromAddress, toAddress string, logger *slog.Logger) (*AWSSESAlertService, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESAlertService{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		toAddress:   toAddress,
		logger:      logger,
	}, nil
}

// NotifyLockout sends a lockout alert email. Errors are logged only; the
// attempt path never depends on this succeeding.
func (s *AWSSESAlertService) NotifyLockout(ctx context.Context, entity models.SecurityEntity, lockedUntil time.Time) {
	subject := fmt.Sprintf("[pinguard] account locked: %s", entity)

	body := fmt.Sprintf(
		"The account %s was locked at %s after repeated failed PIN attempts.\n\n"+
			"The lock expires automatically at %s. If this was a legitimate user, "+
			"it can be lifted early from the administration pages.\n",
		entity,
		time.Now().Format(time.RFC1123),
		lockedUntil.Format(time.RFC1123),
	)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{s.toAddress},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(body),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	if _, err := s.sesClient.SendEmail(ctx, input); err != nil {
		s.logger.Error("failed to send lockout alert",
			slog.String("entity", entity.String()),
			slog.Any("error", err))
		return
	}

	s.logger.Info("lockout alert sent", slog.String("entity", entity.String()))
}
