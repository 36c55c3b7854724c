package zap

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/theory-cloud/musicapi/pkg/observability"
	"github.com/theory-cloud/musicapi/pkg/sanitization"
)

const (
	maxSNSSubjectLen = 100
	maxSNSMessageLen = 256 * 1024
)

type snsAPI interface {
	Publish(
		ctx context.Context,
		params *sns.PublishInput,
		optFns ...func(*sns.Options),
	) (*sns.PublishOutput, error)
}

type SNSNotifierOptions struct {
	Subject string
}

type snsNotifier struct {
	client   snsAPI
	topicARN string
	subject  string
}

var _ observability.ErrorNotifier = (*snsNotifier)(nil)

func NewSNSNotifier(client snsAPI, topicARN string, opts SNSNotifierOptions) observability.ErrorNotifier {
	return &snsNotifier{
		client:   client,
		topicARN: strings.TrimSpace(topicARN),
		subject:  strings.TrimSpace(opts.Subject),
	}
}

// WithSNSErrorNotifications publishes error-level entries to topicARN.
// An empty topic leaves notifications disabled.
func WithSNSErrorNotifications(client snsAPI, topicARN, subject string) Option {
	return func(opts *loggerOptions) {
		if strings.TrimSpace(topicARN) == "" {
			return
		}
		if client == nil {
			opts.initErr = errors.New("observability/zap: sns client is nil")
			return
		}
		opts.notifier = NewSNSNotifier(client, topicARN, SNSNotifierOptions{Subject: subject})
	}
}

func (n *snsNotifier) Notify(ctx context.Context, entry observability.LogEntry) error {
	if n == nil || n.client == nil {
		return errors.New("observability/zap: sns notifier is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if n.topicARN == "" {
		return errors.New("observability/zap: sns topic arn is empty")
	}

	body, err := json.Marshal(map[string]any{
		"entry": entry,
		"env": map[string]string{
			"aws_region":               os.Getenv("AWS_REGION"),
			"aws_lambda_function_name": os.Getenv("AWS_LAMBDA_FUNCTION_NAME"),
		},
	})
	if err != nil {
		return err
	}

	subject := n.subject
	if subject == "" {
		subject = "musicapi error"
		if entry.Service != "" {
			subject = entry.Service + " error"
		}
	}
	subject = sanitization.SanitizeLogString(subject)
	if len(subject) > maxSNSSubjectLen {
		subject = subject[:maxSNSSubjectLen]
	}

	message := string(body)
	if len(message) > maxSNSMessageLen {
		message = message[:maxSNSMessageLen]
	}

	_, err = n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
	})
	return err
}
