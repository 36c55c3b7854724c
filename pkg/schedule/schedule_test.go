package schedule_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/theory-cloud/musicapi/pkg/schedule"
	"github.com/theory-cloud/musicapi/testkit"
)

func TestValid(t *testing.T) {
	cases := []struct {
		expr string
		kind string
	}{
		{"rate(1 minute)", "rate"},
		{"rate(5 minutes)", "rate"},
		{"rate(12 hours)", "rate"},
		{"rate(1 day)", "rate"},
		{"cron(0 12 * * ? *)", "cron"},
		{"cron(0/15 8-17 ? * MON-FRI *)", ""},
		{"cron(15 10 * * ? 2026)", "cron"},
		{"rate(5 weeks)", ""},
		{"rate(minutes)", ""},
		{"rate(5 minutes) ", ""},
		{"every 5 minutes", ""},
		{"", ""},
		{"cron(0 12 * *)", ""},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			require.Equal(t, tc.kind != "", schedule.Valid(tc.expr))
			require.Equal(t, tc.kind, schedule.Kind(tc.expr))
		})
	}
}

func TestEventBridgeUpdater(t *testing.T) {
	client := testkit.NewFakeEventBridgeClient()
	updater := schedule.NewEventBridgeUpdater(client)

	require.NoError(t, updater.UpdateRule(context.Background(), "music-history-schedule", "rate(10 minutes)"))
	require.Equal(t, []testkit.PutRuleCall{{Name: "music-history-schedule", ScheduleExpression: "rate(10 minutes)"}}, client.Rules())

	err := updater.UpdateRule(context.Background(), "music-history-schedule", "sometimes")
	require.ErrorIs(t, err, schedule.ErrInvalidExpression)
	require.Len(t, client.Rules(), 1)

	require.Error(t, updater.UpdateRule(context.Background(), " ", "rate(1 day)"))

	client.PutErr = errors.New("AccessDenied")
	err = updater.UpdateRule(context.Background(), "music-history-schedule", "rate(1 day)")
	require.ErrorIs(t, err, client.PutErr)
}
