package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/theory-cloud/musicapi/pkg/config"
	"github.com/theory-cloud/musicapi/pkg/metrics"
	"github.com/theory-cloud/musicapi/pkg/notify"
	musicapi "github.com/theory-cloud/musicapi/runtime"
	"github.com/theory-cloud/musicapi/testkit"
)

func notificationConfig() *config.Config {
	return &config.Config{Notification: config.NotificationConfig{
		AdminEmail:  "admin@example.com",
		SourceEmail: "noreply@example.com",
	}}
}

func TestHandlerSendsOneEmailPerRecord(t *testing.T) {
	env := testkit.NewWithTime(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	pub := metrics.NewMemoryPublisher()
	app := env.App(musicapi.WithMetricsPublisher(pub))
	ses := testkit.NewFakeSESClient()

	handler := app.WrapSNS(newHandler(notify.NewMailer(ses), notificationConfig()))
	err := handler(context.Background(), testkit.SNSEvent(
		testkit.SNSMessageOptions{Message: "Apple Music API token refresh required"},
		testkit.SNSMessageOptions{Subject: "Custom subject", Message: "second"},
	))
	require.NoError(t, err)

	sent := ses.Sent()
	require.Len(t, sent, 2)
	require.Equal(t, "noreply@example.com", sent[0].Source)
	require.Equal(t, []string{"admin@example.com"}, sent[0].To)
	require.Equal(t, notify.DefaultSubject, sent[0].Subject)
	require.Equal(t, "Apple Music API token refresh required", sent[0].Text)
	require.Equal(t, "Custom subject", sent[1].Subject)
	require.Equal(t, 2.0, pub.Sum("EmailSent"))
}

func TestHandlerRequiresEmailSettings(t *testing.T) {
	env := testkit.New()
	ses := testkit.NewFakeSESClient()
	handler := env.App().WrapSNS(newHandler(notify.NewMailer(ses), &config.Config{}))

	err := handler(context.Background(), testkit.SNSEvent(testkit.SNSMessageOptions{Message: "x"}))
	require.EqualError(t, err, "missing required environment variables: ADMIN_EMAIL SOURCE_EMAIL")
	require.Empty(t, ses.Sent())
}

func TestHandlerReturnsSendFailure(t *testing.T) {
	env := testkit.New()
	pub := metrics.NewMemoryPublisher()
	ses := testkit.NewFakeSESClient()
	ses.SendErr = errors.New("throttled")
	handler := env.App(musicapi.WithMetricsPublisher(pub)).WrapSNS(newHandler(notify.NewMailer(ses), notificationConfig()))

	err := handler(context.Background(), testkit.SNSEvent(
		testkit.SNSMessageOptions{Message: "a"},
		testkit.SNSMessageOptions{Message: "b"},
	))
	require.ErrorContains(t, err, "throttled")
	require.Len(t, ses.Sent(), 1)
	require.Zero(t, pub.Sum("EmailSent"))
	require.Equal(t, 1.0, pub.Sum(musicapi.MetricProcessingError))
}
