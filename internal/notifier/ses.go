package notifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// sesAPI is the slice of the SES v2 client used for sending.
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender delivers mail through AWS SES.
type SESSender struct {
	client sesAPI
	from   string
}

// NewSESSender builds an SES transport from config. Static credentials take
// precedence; without them the default AWS credential chain applies.
func NewSESSender(ctx context.Context, cfg Config) (*SESSender, error) {
	if strings.TrimSpace(cfg.From) == "" {
		return nil, fmt.Errorf("from address is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.SESRegion),
	}
	if cfg.SESAccessKeyID != "" && cfg.SESSecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.SESAccessKeyID, cfg.SESSecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &SESSender{
		client: sesv2.NewFromConfig(awsCfg),
		from:   cfg.From,
	}, nil
}

// Send delivers one message through SES.
func (s *SESSender) Send(ctx context.Context, message Message) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("ses sender is not configured")
	}
	if strings.TrimSpace(message.To) == "" {
		return fmt.Errorf("recipient is required")
	}

	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses: []string{message.To},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(message.Subject)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(message.Body)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("send email via ses: %w", err)
	}
	return nil
}

var _ Sender = (*SESSender)(nil)
