// Command update-schedule applies a changed schedule-rate parameter to the EventBridge rule.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/theory-cloud/musicapi/pkg/bootstrap"
	"github.com/theory-cloud/musicapi/pkg/schedule"
)

func main() {
	rt, err := bootstrap.Load(context.Background(), "update-schedule")
	if err != nil {
		fmt.Fprintf(os.Stderr, "update-schedule: FAIL: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = rt.Logger.Close() }()

	app := rt.NewApp()
	lambda.Start(app.WrapEventBridge(newHandler(schedule.NewEventBridgeUpdater(rt.AWS.EventBridge), rt.Config)))
}
