// Package notify sends the token-refresh alert over SNS and relays it to the administrator by
// email through SES.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

const (
	DefaultSubject = "Apple Music API Token Refresh Required"
	DefaultMessage = "Apple Music API token refresh required"

	charsetUTF8 = "UTF-8"
)

// ErrPublish is returned (wrapped) when the token-refresh topic rejects a message.
var ErrPublish = errors.New("failed to send token refresh notification")

type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// TokenRefresher asks an administrator to refresh expired Apple Music tokens.
type TokenRefresher interface {
	RequestTokenRefresh(ctx context.Context, message, subject string) (string, error)
}

// Publisher sends token-refresh messages to one SNS topic.
type Publisher struct {
	client   snsAPI
	topicARN string
}

var _ TokenRefresher = (*Publisher)(nil)

func NewPublisher(client snsAPI, topicARN string) *Publisher {
	return &Publisher{client: client, topicARN: strings.TrimSpace(topicARN)}
}

// RequestTokenRefresh publishes message with subject, substituting the defaults for blanks,
// and returns the SNS message id.
func (p *Publisher) RequestTokenRefresh(ctx context.Context, message, subject string) (string, error) {
	if p == nil || p.client == nil {
		return "", errors.New("notify: sns client is nil")
	}
	if p.topicARN == "" {
		return "", errors.New("notify: missing token refresh topic arn")
	}
	if strings.TrimSpace(message) == "" {
		message = DefaultMessage
	}
	if strings.TrimSpace(subject) == "" {
		subject = DefaultSubject
	}
	out, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(message),
		Subject:  aws.String(subject),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPublish, err)
	}
	if out == nil {
		return "", nil
	}
	return aws.ToString(out.MessageId), nil
}

// Email is a plain-text message.
type Email struct {
	To      string
	From    string
	Subject string
	Body    string
}

// Mailer sends email through SES.
type Mailer struct {
	client sesAPI
}

func NewMailer(client sesAPI) *Mailer {
	return &Mailer{client: client}
}

func (m *Mailer) Send(ctx context.Context, email Email) error {
	if m == nil || m.client == nil {
		return errors.New("notify: ses client is nil")
	}
	if strings.TrimSpace(email.To) == "" || strings.TrimSpace(email.From) == "" {
		return errors.New("notify: email requires a sender and a recipient")
	}
	subject := email.Subject
	if strings.TrimSpace(subject) == "" {
		subject = DefaultSubject
	}
	_, err := m.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(email.From),
		Destination: &sestypes.Destination{ToAddresses: []string{email.To}},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Charset: aws.String(charsetUTF8), Data: aws.String(subject)},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Charset: aws.String(charsetUTF8), Data: aws.String(email.Body)},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("notify: send email to %s: %w", email.To, err)
	}
	return nil
}
