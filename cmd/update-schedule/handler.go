package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/theory-cloud/musicapi/pkg/config"
	"github.com/theory-cloud/musicapi/pkg/schedule"
	musicapi "github.com/theory-cloud/musicapi/runtime"
)

type parameterChange struct {
	Name      string `json:"name"`
	Operation string `json:"operation"`
}

func newHandler(updater schedule.RuleUpdater, cfg *config.Config) musicapi.EventBridgeHandler {
	return func(c *musicapi.EventContext, event events.EventBridgeEvent) error {
		var detail parameterChange
		if err := json.Unmarshal(event.Detail, &detail); err != nil {
			return fmt.Errorf("update-schedule: decode event detail: %w", err)
		}
		name := strings.TrimSpace(detail.Name)
		if name == "" {
			return fmt.Errorf("update-schedule: event detail has no parameter name")
		}
		c.Logger().Info("Parameter change detected", map[string]any{"parameter": name, "operation": detail.Operation})

		if err := cfg.RequireSchedule(); err != nil {
			return err
		}
		expr, err := c.RequireParameter(name)
		if err != nil {
			return err
		}
		c.Logger().Info("Retrieved schedule expression", map[string]any{"parameter": name, "schedule": expr})

		if err := updater.UpdateRule(c.Context(), cfg.Schedule.RuleName, expr); err != nil {
			return err
		}
		c.Logger().Info("Successfully updated EventBridge rule", map[string]any{
			"rule":     cfg.Schedule.RuleName,
			"schedule": expr,
		})
		c.Metrics().Add("SuccessCount", 1)
		return nil
	}
}
