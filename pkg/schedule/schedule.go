// Package schedule validates EventBridge schedule expressions and applies them to rules.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
)

var (
	rateExpr = regexp.MustCompile(`^rate\((\d+)\s+(minute|minutes|hour|hours|day|days)\)$`)
	// minutes hours day-of-month month day-of-week year
	cronExpr = regexp.MustCompile(`^cron\([0-9*,\-/\s]+\s[0-9*,\-/\s]+\s[0-9*,\-/\s]+\s[0-9*,\-/\s]+\s[?*,\-/\s]+\s[0-9*,\-/\s]+\)$`)
)

// ErrInvalidExpression is returned for expressions Valid rejects.
var ErrInvalidExpression = errors.New("schedule: invalid schedule expression")

// Valid reports whether expr is a `rate(n unit)` or six-field `cron(...)` expression.
func Valid(expr string) bool {
	return rateExpr.MatchString(expr) || cronExpr.MatchString(expr)
}

// Kind returns "rate", "cron" or "" for an invalid expression.
func Kind(expr string) string {
	switch {
	case rateExpr.MatchString(expr):
		return "rate"
	case cronExpr.MatchString(expr):
		return "cron"
	default:
		return ""
	}
}

type eventBridgeAPI interface {
	PutRule(ctx context.Context, params *eventbridge.PutRuleInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutRuleOutput, error)
}

// RuleUpdater sets the schedule of an existing rule.
type RuleUpdater interface {
	UpdateRule(ctx context.Context, ruleName, expr string) error
}

// EventBridgeUpdater updates rules with PutRule.
type EventBridgeUpdater struct {
	client eventBridgeAPI
}

var _ RuleUpdater = (*EventBridgeUpdater)(nil)

func NewEventBridgeUpdater(client eventBridgeAPI) *EventBridgeUpdater {
	return &EventBridgeUpdater{client: client}
}

func (u *EventBridgeUpdater) UpdateRule(ctx context.Context, ruleName, expr string) error {
	ruleName = strings.TrimSpace(ruleName)
	if ruleName == "" {
		return errors.New("schedule: rule name is empty")
	}
	if !Valid(expr) {
		return fmt.Errorf("%w: %q", ErrInvalidExpression, expr)
	}
	_, err := u.client.PutRule(ctx, &eventbridge.PutRuleInput{
		Name:               aws.String(ruleName),
		ScheduleExpression: aws.String(expr),
	})
	if err != nil {
		return fmt.Errorf("schedule: put rule %s: %w", ruleName, err)
	}
	return nil
}
