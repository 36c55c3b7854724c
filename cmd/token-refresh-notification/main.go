// Command token-refresh-notification relays token refresh requests from SNS to the admin by email.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/theory-cloud/musicapi/pkg/bootstrap"
	"github.com/theory-cloud/musicapi/pkg/notify"
)

func main() {
	rt, err := bootstrap.Load(context.Background(), "token-refresh-notification")
	if err != nil {
		fmt.Fprintf(os.Stderr, "token-refresh-notification: FAIL: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = rt.Logger.Close() }()

	app := rt.NewApp()
	lambda.Start(app.WrapSNS(newHandler(notify.NewMailer(rt.AWS.SES), rt.Config)))
}
