package musicapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/theory-cloud/musicapi/pkg/observability"
)

type serveState struct {
	start     time.Time
	method    string
	path      string
	origin    string
	requestID string
	service   string
	logger    observability.StructuredLogger
	metrics   *Metrics
	span      *Span
	errorKind ErrorKind
}

// Serve runs one request through the wrapper: CORS preflight, routing, rate limiting, the
// handler and the error boundary. It never returns an error; every failure becomes an
// error envelope.
func (a *App) Serve(ctx context.Context, req Request) (resp Response) {
	if ctx == nil {
		ctx = context.Background()
	}
	if a == nil || a.router == nil {
		return unhandledResponse()
	}

	state := a.newServeState(req)
	defer func() {
		if r := recover(); r != nil {
			state.errorKind = KindUnhandled
			state.logger.Error("unhandled panic in handler", map[string]any{
				"panic":  fmt.Sprint(r),
				"method": state.method,
				"path":   state.path,
			})
			state.metrics.Add(MetricUnhandledErrorCount, 1)
			resp = unhandledResponse()
		}
		resp = a.finalize(ctx, resp, state)
	}()

	return a.serveCore(ctx, req, state)
}

func (a *App) newServeState(req Request) *serveState {
	headers := canonicalizeHeaders(req.Headers)
	state := &serveState{
		start:   a.clock.Now(),
		method:  strings.ToUpper(strings.TrimSpace(req.Method)),
		path:    normalizePath(req.Path),
		origin:  firstHeaderValue(headers, "origin"),
		service: a.service,
	}

	state.requestID = firstHeaderValue(headers, "x-request-id")
	if state.requestID == "" {
		state.requestID = strings.TrimSpace(req.GatewayRequestID)
	}
	if state.requestID == "" {
		state.requestID = a.ids.NewID()
	}

	traceID := firstHeaderValue(headers, "x-amzn-trace-id")
	state.logger = a.logger.WithService(a.service).WithRequestID(state.requestID)
	if traceID != "" {
		state.logger = state.logger.WithTraceID(traceID)
	}
	state.metrics = newMetrics(a.namespace, a.service, a.clock)
	state.span = newSpan(a.ids.NewID(), traceID, state.method+" "+state.path, state.start)
	return state
}

func (a *App) serveCore(ctx context.Context, req Request, state *serveState) Response {
	state.logger.Info(fmt.Sprintf("%s Lambda invoked", state.service), map[string]any{
		"path":   state.path,
		"method": state.method,
	})
	state.metrics.Add(MetricInvocationCount, 1)

	if isCORSPreflight(state.method) {
		return Response{Status: http.StatusNoContent, Headers: map[string][]string{}}
	}

	normalized, err := normalizeRequest(req)
	if err != nil {
		return a.handlerErrorResponse(err, state)
	}

	match, allowed := a.router.match(normalized.Method, normalized.Path)
	if match == nil {
		state.metrics.Add(MetricErrorCount, 1)
		if len(allowed) > 0 {
			resp := errorResponse(http.StatusMethodNotAllowed, messageNoMethod)
			resp.Headers["allow"] = []string{formatAllowHeader(allowed)}
			return resp
		}
		return errorResponse(http.StatusNotFound, messageNoRoute)
	}

	if name := match.Route.Name; name != "" {
		state.service = name
		state.logger = state.logger.WithService(name)
	}
	state.span.SetAttribute("route", match.Route.Pattern)

	requestCtx := &Context{
		ctx:       ctx,
		Request:   normalized,
		Params:    match.Params,
		RequestID: state.requestID,
		Identity:  clientIdentity(normalized),
		Service:   state.service,
		clock:     a.clock,
		ids:       a.ids,
		logger:    state.logger,
		metrics:   state.metrics,
		span:      state.span,
		env:       a.env,
		params:    a.params,
		cache:     a.cache,
		cors:      a.cors,
	}

	if category := match.Route.RateLimit; category != "" && a.limiter != nil {
		if resp, limited := a.enforceRateLimit(requestCtx, category); limited {
			state.errorKind = KindRateLimitExceeded
			return resp
		}
	}

	out, handlerErr := match.Route.Handler(requestCtx)
	if handlerErr != nil {
		return a.handlerErrorResponse(handlerErr, state)
	}
	if out == nil {
		return a.handlerErrorResponse(fmt.Errorf("handler returned no response"), state)
	}
	return normalizeResponse(out)
}

func (a *App) handlerErrorResponse(err error, state *serveState) Response {
	state.metrics.Add(MetricErrorCount, 1)
	if appErr, ok := asAppError(err); ok {
		state.errorKind = appErr.Kind
		fields := map[string]any{"error_type": string(appErr.Kind), "status": appErr.Status}
		if appErr.Cause != nil {
			fields["cause"] = appErr.Cause.Error()
		}
		state.logger.Warn(appErr.Message, fields)
		return appErrorResponse(appErr)
	}

	state.errorKind = KindUnhandled
	state.metrics.Add(MetricUnhandledErrorCount, 1)
	state.logger.Error("Unhandled error in handler", map[string]any{
		"error":  err.Error(),
		"method": state.method,
		"path":   state.path,
	})
	return unhandledResponse()
}

func (a *App) finalize(ctx context.Context, resp Response, state *serveState) Response {
	headers := canonicalizeHeaders(resp.Headers)
	for k, v := range a.cors.Headers(state.origin, state.method) {
		headers[k] = []string{v}
	}
	if len(headers["content-type"]) == 0 {
		headers["content-type"] = []string{contentTypeJSON}
	}
	headers["x-request-id"] = []string{state.requestID}
	resp.Headers = headers

	end := a.clock.Now()
	duration := state.span.finish(end)
	state.span.SetAttribute("status", fmt.Sprint(resp.Status))
	state.metrics.AddWithUnit(MetricDuration, float64(duration.Milliseconds()), "Milliseconds")

	fields := map[string]any{
		"method":      state.method,
		"path":        state.path,
		"status":      resp.Status,
		"duration_ms": duration.Milliseconds(),
	}
	if state.errorKind != "" {
		fields["error_type"] = string(state.errorKind)
	}
	switch {
	case resp.Status >= 500:
		state.logger.Error("request.completed", fields)
	case resp.Status >= 400:
		state.logger.Warn("request.completed", fields)
	default:
		state.logger.Info("request.completed", fields)
	}
	state.logger.Debug("span.finished", state.span.fields())

	if err := state.metrics.flush(ctx, a.publisher); err != nil {
		state.logger.Warn("metrics publish failed", map[string]any{"error": err.Error()})
	}
	return resp
}
