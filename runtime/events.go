package musicapi

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"

	"github.com/theory-cloud/musicapi/pkg/edge"
	"github.com/theory-cloud/musicapi/pkg/observability"
)

// EventContext is the per-invocation state for non-HTTP triggers (SNS, EventBridge).
type EventContext struct {
	ctx       context.Context
	RequestID string
	Service   string

	clock   Clock
	ids     IDGenerator
	logger  observability.StructuredLogger
	metrics *Metrics
	http    *Context
}

func (c *EventContext) Context() context.Context {
	if c == nil || c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

func (c *EventContext) Now() time.Time {
	if c == nil || c.clock == nil {
		return time.Now()
	}
	return c.clock.Now()
}

func (c *EventContext) NewID() string {
	if c == nil || c.ids == nil {
		return ULIDGenerator{}.NewID()
	}
	return c.ids.NewID()
}

func (c *EventContext) Logger() observability.StructuredLogger {
	if c == nil || c.logger == nil {
		return observability.NewNoOpLogger()
	}
	return c.logger
}

func (c *EventContext) Metrics() *Metrics {
	if c == nil {
		return nil
	}
	return c.metrics
}

// RequireEnv behaves like Context.RequireEnv.
func (c *EventContext) RequireEnv(name string, fallback ...string) (string, error) {
	return c.http.RequireEnv(name, fallback...)
}

// Parameter behaves like Context.Parameter.
func (c *EventContext) Parameter(name string) (string, error) {
	return c.http.Parameter(name)
}

// RequireParameter behaves like Context.RequireParameter.
func (c *EventContext) RequireParameter(name string, fallback ...string) (string, error) {
	return c.http.RequireParameter(name, fallback...)
}

type SNSHandler func(*EventContext, events.SNSEvent) error

type EventBridgeHandler func(*EventContext, events.EventBridgeEvent) error

// WrapSNS returns a Lambda entry point for SNS events. Handler errors are logged, counted
// and returned so Lambda retries the delivery.
func (a *App) WrapSNS(handler SNSHandler) func(context.Context, events.SNSEvent) error {
	return func(ctx context.Context, event events.SNSEvent) error {
		return a.runEvent(ctx, "sns", len(event.Records), func(evt *EventContext) error {
			return handler(evt, event)
		})
	}
}

// WrapEventBridge returns a Lambda entry point for EventBridge events.
func (a *App) WrapEventBridge(handler EventBridgeHandler) func(context.Context, events.EventBridgeEvent) error {
	return func(ctx context.Context, event events.EventBridgeEvent) error {
		return a.runEvent(ctx, "eventbridge", 1, func(evt *EventContext) error {
			evt.logger = evt.logger.WithFields(map[string]any{
				"event_source":      event.Source,
				"event_detail_type": event.DetailType,
			})
			return handler(evt, event)
		})
	}
}

// WrapCloudFront returns a Lambda@Edge viewer-request entry point. The rewritten request is
// returned directly instead of through a callback.
func (a *App) WrapCloudFront(router *edge.Router) func(context.Context, edge.ViewerRequestEvent) (edge.Request, error) {
	return func(ctx context.Context, event edge.ViewerRequestEvent) (edge.Request, error) {
		var out edge.Request
		err := a.runEvent(ctx, "cloudfront", len(event.Records), func(evt *EventContext) error {
			req, err := router.Handle(event, evt.Metrics())
			if err != nil {
				return err
			}
			out = req
			return nil
		})
		return out, err
	}
}

func (a *App) eventContext(ctx context.Context) *EventContext {
	if ctx == nil {
		ctx = context.Background()
	}
	requestID := ""
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		requestID = strings.TrimSpace(lc.AwsRequestID)
	}
	if requestID == "" {
		requestID = a.ids.NewID()
	}

	logger := a.logger.WithService(a.service).WithRequestID(requestID)
	m := newMetrics(a.namespace, a.service, a.clock)
	return &EventContext{
		ctx:       ctx,
		RequestID: requestID,
		Service:   a.service,
		clock:     a.clock,
		ids:       a.ids,
		logger:    logger,
		metrics:   m,
		http: &Context{
			ctx:     ctx,
			clock:   a.clock,
			ids:     a.ids,
			logger:  logger,
			metrics: m,
			env:     a.env,
			params:  a.params,
		},
	}
}

func (a *App) runEvent(ctx context.Context, source string, records int, run func(*EventContext) error) (err error) {
	evt := a.eventContext(ctx)
	start := a.clock.Now()

	evt.logger.Info(fmt.Sprintf("%s Lambda invoked", a.service), map[string]any{
		"source":  source,
		"records": records,
	})
	evt.metrics.Add(MetricInvocationCount, 1)
	evt.metrics.Add(MetricEventReceived, float64(records))

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("musicapi: panic in %s handler: %v", source, r)
		}
		if err != nil {
			evt.metrics.Add(MetricProcessingError, 1)
			evt.logger.Error("event processing failed", map[string]any{"source": source, "error": err.Error()})
		} else {
			evt.logger.Info("event processed", map[string]any{"source": source})
		}
		evt.metrics.AddWithUnit(MetricDuration, float64(a.clock.Now().Sub(start).Milliseconds()), "Milliseconds")
		if flushErr := evt.metrics.flush(evt.Context(), a.publisher); flushErr != nil {
			evt.logger.Warn("metrics publish failed", map[string]any{"error": flushErr.Error()})
		}
	}()

	return run(evt)
}
