// Command update-song-history records the listener's recently played Apple Music tracks in
// the song history table on a schedule.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/theory-cloud/musicapi/pkg/applemusic"
	"github.com/theory-cloud/musicapi/pkg/bootstrap"
	"github.com/theory-cloud/musicapi/pkg/devtoken"
	"github.com/theory-cloud/musicapi/pkg/notify"
	"github.com/theory-cloud/musicapi/pkg/params"
	"github.com/theory-cloud/musicapi/pkg/songhistory"
	musicapi "github.com/theory-cloud/musicapi/runtime"
)

func main() {
	rt, err := bootstrap.Load(context.Background(), "update-song-history")
	if err != nil {
		fmt.Fprintf(os.Stderr, "update-song-history: FAIL: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = rt.Logger.Close() }()

	api := rt.Config.API
	musicOpts := []applemusic.Option{applemusic.WithHTTPClient(&http.Client{Timeout: api.UpstreamTimeout})}
	if api.AppleMusicURL != "" {
		musicOpts = append(musicOpts, applemusic.WithBaseURL(api.AppleMusicURL))
	}

	store := params.NewSSMStore(rt.AWS.SSM)
	d := deps{
		Params: store,
		Tokens: devtoken.NewGenerator(params.NewSecretsManagerReader(rt.AWS.SecretsManager)),
		Music:  applemusic.NewClient(musicOpts...),
		History: func(table string) recorder {
			return songhistory.NewWriter(rt.AWS.DynamoDB, table, rt.Logger)
		},
	}
	if topic := strings.TrimSpace(api.TokenRefreshTopic); topic != "" {
		d.Refresher = notify.NewPublisher(rt.AWS.SNS, topic)
	}

	app := rt.NewApp(musicapi.WithParameters(store))
	lambda.Start(app.WrapEventBridge(newHandler(d)))
}
