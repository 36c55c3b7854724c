// Command api is the API Gateway proxy Lambda serving every /api/v1 route.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/theory-cloud/musicapi/pkg/bootstrap"
)

func main() {
	ctx := context.Background()

	rt, err := bootstrap.Load(ctx, "musicapi")
	if err != nil {
		fmt.Fprintf(os.Stderr, "api: FAIL: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = rt.Logger.Close() }()

	app, err := rt.NewAPI()
	if err != nil {
		rt.Logger.Error("api configuration invalid", map[string]any{"error": err.Error()})
		_ = rt.Logger.Flush(ctx)
		os.Exit(2)
	}

	lambda.Start(app.ServeAPIGatewayProxy)
}
