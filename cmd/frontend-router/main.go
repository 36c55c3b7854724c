// Command frontend-router is the CloudFront viewer-request function that picks a site version.
//
// Lambda@Edge functions cannot read environment variables, so the router logs with zap defaults
// and publishes no metrics.
package main

import (
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/theory-cloud/musicapi/pkg/edge"
	"github.com/theory-cloud/musicapi/pkg/observability"
	obszap "github.com/theory-cloud/musicapi/pkg/observability/zap"
	musicapi "github.com/theory-cloud/musicapi/runtime"
)

func main() {
	logger, err := obszap.NewZapLogger(observability.LoggerConfig{Service: "frontend-router", Level: "info"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "frontend-router: FAIL: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Close() }()

	app := musicapi.New(musicapi.WithService("frontend-router"), musicapi.WithLogger(logger))
	lambda.Start(app.WrapCloudFront(edge.NewRouter(edge.WithLogger(logger))))
}
