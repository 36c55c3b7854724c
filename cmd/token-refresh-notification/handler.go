package main

import (
	"context"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/theory-cloud/musicapi/pkg/config"
	"github.com/theory-cloud/musicapi/pkg/notify"
	musicapi "github.com/theory-cloud/musicapi/runtime"
)

type mailer interface {
	Send(ctx context.Context, email notify.Email) error
}

// newHandler emails every SNS record to the admin. The first failure stops processing and is
// returned so Lambda retries the delivery.
func newHandler(m mailer, cfg *config.Config) musicapi.SNSHandler {
	return func(c *musicapi.EventContext, event events.SNSEvent) error {
		if err := cfg.RequireNotification(); err != nil {
			return err
		}
		for _, record := range event.Records {
			subject := strings.TrimSpace(record.SNS.Subject)
			if subject == "" {
				subject = notify.DefaultSubject
			}
			c.Logger().Info("Processing SNS message", map[string]any{
				"message_id": record.SNS.MessageID,
				"subject":    subject,
			})

			err := m.Send(c.Context(), notify.Email{
				To:      cfg.Notification.AdminEmail,
				From:    cfg.Notification.SourceEmail,
				Subject: subject,
				Body:    record.SNS.Message,
			})
			if err != nil {
				return err
			}
			c.Metrics().Add("EmailSent", 1)
		}
		c.Logger().Info("Token refresh notification processing completed successfully")
		return nil
	}
}
