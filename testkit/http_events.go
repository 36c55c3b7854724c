package testkit

import (
	"encoding/base64"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// ProxyEventOptions configures a synthetic API Gateway REST proxy event.
type ProxyEventOptions struct {
	Query    map[string]string
	Headers  map[string]string
	Body     []byte
	IsBase64 bool
	SourceIP string
	Resource string
}

// APIGatewayProxyRequest builds a REST API proxy event. The source IP defaults to a
// documentation address.
func APIGatewayProxyRequest(method, path string, opts ProxyEventOptions) events.APIGatewayProxyRequest {
	method = strings.ToUpper(strings.TrimSpace(method))
	sourceIP := opts.SourceIP
	if sourceIP == "" {
		sourceIP = "203.0.113.10"
	}

	body := string(opts.Body)
	if opts.IsBase64 {
		body = base64.StdEncoding.EncodeToString(opts.Body)
	}

	multiQuery := map[string][]string{}
	for k, v := range opts.Query {
		multiQuery[k] = []string{v}
	}
	multiHeaders := map[string][]string{}
	for k, v := range opts.Headers {
		multiHeaders[k] = []string{v}
	}

	return events.APIGatewayProxyRequest{
		Resource:                        opts.Resource,
		Path:                            path,
		HTTPMethod:                      method,
		Headers:                         cloneStringMap(opts.Headers),
		MultiValueHeaders:               multiHeaders,
		QueryStringParameters:           cloneStringMap(opts.Query),
		MultiValueQueryStringParameters: multiQuery,
		Body:                            body,
		IsBase64Encoded:                 opts.IsBase64,
		RequestContext: events.APIGatewayProxyRequestContext{
			RequestID:  "gw-" + strings.ReplaceAll(strings.Trim(path, "/"), "/", "-"),
			Path:       path,
			HTTPMethod: method,
			Identity: events.APIGatewayRequestIdentity{
				SourceIP: sourceIP,
			},
		},
	}
}

func cloneStringMap(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
