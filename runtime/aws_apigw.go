package musicapi

import (
	"context"
	"encoding/base64"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// ServeAPIGatewayProxy adapts an API Gateway REST (v1 proxy) event.
func (a *App) ServeAPIGatewayProxy(ctx context.Context, event events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	return apigatewayProxyResponse(a.Serve(ctx, requestFromAPIGatewayProxy(event)))
}

// ServeAPIGatewayV2 adapts an HTTP API (v2) event.
func (a *App) ServeAPIGatewayV2(ctx context.Context, event events.APIGatewayV2HTTPRequest) events.APIGatewayV2HTTPResponse {
	req, err := requestFromAPIGatewayV2(event)
	if err != nil {
		resp := a.finalize(ctx, appErrorResponse(NewValidationError("Invalid query string")), a.newServeState(req))
		return apigatewayV2Response(resp)
	}
	return apigatewayV2Response(a.Serve(ctx, req))
}

func requestFromAPIGatewayProxy(event events.APIGatewayProxyRequest) Request {
	path := event.Path
	if path == "" {
		path = event.RequestContext.Path
	}
	method := event.HTTPMethod
	if method == "" {
		method = event.RequestContext.HTTPMethod
	}
	return Request{
		Method:           method,
		Path:             path,
		Query:            mergeMultiValue(event.QueryStringParameters, event.MultiValueQueryStringParameters),
		Headers:          mergeMultiValue(event.Headers, event.MultiValueHeaders),
		Body:             []byte(event.Body),
		IsBase64:         event.IsBase64Encoded,
		SourceIP:         event.RequestContext.Identity.SourceIP,
		GatewayRequestID: event.RequestContext.RequestID,
	}
}

func requestFromAPIGatewayV2(event events.APIGatewayV2HTTPRequest) (Request, error) {
	req := Request{
		Method:           event.RequestContext.HTTP.Method,
		Path:             event.RawPath,
		Headers:          map[string][]string{},
		Body:             []byte(event.Body),
		IsBase64:         event.IsBase64Encoded,
		SourceIP:         event.RequestContext.HTTP.SourceIP,
		GatewayRequestID: event.RequestContext.RequestID,
	}
	if req.Path == "" {
		req.Path = event.RequestContext.HTTP.Path
	}
	for k, v := range event.Headers {
		if len(event.Cookies) > 0 && strings.EqualFold(k, "cookie") {
			continue
		}
		req.Headers[k] = []string{v}
	}
	if len(event.Cookies) > 0 {
		req.Headers["cookie"] = append([]string(nil), event.Cookies...)
	}

	if raw := strings.TrimPrefix(event.RawQueryString, "?"); raw != "" {
		values, err := url.ParseQuery(raw)
		if err != nil {
			return req, err
		}
		req.Query = map[string][]string(values)
	} else {
		req.Query = mergeMultiValue(event.QueryStringParameters, nil)
	}
	return req, nil
}

// mergeMultiValue prefers the multi-value map and falls back to single values for keys it
// lacks.
func mergeMultiValue(single map[string]string, multi map[string][]string) map[string][]string {
	out := map[string][]string{}
	for k, v := range multi {
		out[k] = append([]string(nil), v...)
	}
	for k, v := range single {
		if _, ok := out[k]; !ok {
			out[k] = []string{v}
		}
	}
	return out
}

func apigatewayProxyResponse(resp Response) events.APIGatewayProxyResponse {
	out := events.APIGatewayProxyResponse{
		StatusCode:        resp.Status,
		Headers:           map[string]string{},
		MultiValueHeaders: map[string][]string{},
		Body:              string(resp.Body),
		IsBase64Encoded:   resp.IsBase64,
	}
	for key, values := range resp.Headers {
		if len(values) == 0 {
			continue
		}
		out.Headers[key] = values[0]
		out.MultiValueHeaders[key] = append([]string(nil), values...)
	}
	if resp.IsBase64 {
		out.Body = base64.StdEncoding.EncodeToString(resp.Body)
	}
	return out
}

func apigatewayV2Response(resp Response) events.APIGatewayV2HTTPResponse {
	out := events.APIGatewayV2HTTPResponse{
		StatusCode:        resp.Status,
		Headers:           map[string]string{},
		MultiValueHeaders: map[string][]string{},
		Body:              string(resp.Body),
		IsBase64Encoded:   resp.IsBase64,
	}
	for key, values := range resp.Headers {
		if len(values) == 0 {
			continue
		}
		if key == "set-cookie" {
			out.Cookies = append(out.Cookies, values...)
			continue
		}
		out.Headers[key] = strings.Join(values, ",")
		out.MultiValueHeaders[key] = append([]string(nil), values...)
	}
	if resp.IsBase64 {
		out.Body = base64.StdEncoding.EncodeToString(resp.Body)
	}
	return out
}
