package main

import (
	"context"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"github.com/theory-cloud/musicapi/pkg/config"
	"github.com/theory-cloud/musicapi/pkg/metrics"
	"github.com/theory-cloud/musicapi/pkg/params"
	"github.com/theory-cloud/musicapi/pkg/schedule"
	musicapi "github.com/theory-cloud/musicapi/runtime"
	"github.com/theory-cloud/musicapi/testkit"
)

func scheduleConfig(rule string) *config.Config {
	return &config.Config{Schedule: config.ScheduleConfig{RuleName: rule}}
}

func TestHandlerUpdatesRule(t *testing.T) {
	env := testkit.New()
	pub := metrics.NewMemoryPublisher()
	store := params.NewMemoryStore(map[string]string{"/music/schedule-rate": "rate(10 minutes)"})
	eb := testkit.NewFakeEventBridgeClient()
	app := env.App(musicapi.WithParameters(store), musicapi.WithMetricsPublisher(pub))

	handler := app.WrapEventBridge(newHandler(schedule.NewEventBridgeUpdater(eb), scheduleConfig("music-fetch")))
	require.NoError(t, handler(context.Background(), testkit.ParameterChangeEvent("/music/schedule-rate")))

	require.Equal(t, []testkit.PutRuleCall{{Name: "music-fetch", ScheduleExpression: "rate(10 minutes)"}}, eb.Rules())
	require.Equal(t, 1.0, pub.Sum("SuccessCount"))
}

func TestHandlerFailures(t *testing.T) {
	cases := []struct {
		name    string
		rule    string
		values  map[string]string
		event   events.EventBridgeEvent
		wantErr string
	}{
		{
			name:    "missing rule name",
			values:  map[string]string{"/music/schedule-rate": "rate(5 minutes)"},
			event:   testkit.ParameterChangeEvent("/music/schedule-rate"),
			wantErr: "missing required environment variable: RULE_NAME",
		},
		{
			name:    "missing parameter",
			rule:    "music-fetch",
			event:   testkit.ParameterChangeEvent("/music/schedule-rate"),
			wantErr: "missing required parameter: /music/schedule-rate",
		},
		{
			name:    "invalid expression",
			rule:    "music-fetch",
			values:  map[string]string{"/music/schedule-rate": "every minute"},
			event:   testkit.ParameterChangeEvent("/music/schedule-rate"),
			wantErr: "schedule",
		},
		{
			name:    "no parameter name",
			rule:    "music-fetch",
			event:   testkit.EventBridgeEvent(testkit.EventBridgeEventOptions{Detail: map[string]string{}}),
			wantErr: "no parameter name",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			eb := testkit.NewFakeEventBridgeClient()
			app := testkit.New().App(musicapi.WithParameters(params.NewMemoryStore(tc.values)))
			handler := app.WrapEventBridge(newHandler(schedule.NewEventBridgeUpdater(eb), scheduleConfig(tc.rule)))

			err := handler(context.Background(), tc.event)
			require.ErrorContains(t, err, tc.wantErr)
			require.Empty(t, eb.Rules())
		})
	}
}
