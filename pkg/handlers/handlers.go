// Package handlers holds the music API business handlers and their route table.
package handlers

import (
	"context"
	"time"

	musicapi "github.com/theory-cloud/musicapi/runtime"

	"github.com/theory-cloud/musicapi/pkg/applemusic"
	"github.com/theory-cloud/musicapi/pkg/devtoken"
	"github.com/theory-cloud/musicapi/pkg/limited"
	"github.com/theory-cloud/musicapi/pkg/musicbrainz"
	"github.com/theory-cloud/musicapi/pkg/notify"
	"github.com/theory-cloud/musicapi/pkg/params"
	"github.com/theory-cloud/musicapi/pkg/songhistory"
)

// Environment variables naming the parameters each handler reads.
const (
	EnvScheduleRateParameter = "SCHEDULE_RATE_PARAMETER"
	EnvSongLimitParameter    = "SONG_LIMIT_PARAMETER"
	EnvTrackLimitParameter   = "TRACK_LIMIT_PARAMETER"
	EnvMusicUserTokenParam   = "MUSIC_USER_TOKEN_PARAMETER"
	EnvSongTableParameter    = "DYNAMODB_TABLE_NAME_PARAMETER"
	EnvAppleAuthKeySecret    = "APPLE_AUTH_KEY_SECRET_NAME"
	EnvAppleTeamID           = "APPLE_TEAM_ID"
	EnvAppleKeyID            = "APPLE_KEY_ID"

	DefaultScheduleRateParameter = "/music/schedule-rate"
)

const (
	PrefixAdmin       = "/api/v1/admin"
	PrefixIntegration = "/api/v1/integration"
)

// SongQuerier reads song history pages.
type SongQuerier interface {
	Songs(ctx context.Context, q songhistory.Query) (songhistory.Page, error)
}

// Deps are the collaborators shared by all handlers.
//
// Params must be the store the App reads parameters from; handlers read through the Context
// and write through Params.
type Deps struct {
	Params      params.Store
	Tokens      *devtoken.Generator
	MusicBrainz *musicbrainz.Client
	AppleMusic  *applemusic.Client
	Refresher   notify.TokenRefresher
	// SongStore opens the history table named by the table-name parameter.
	SongStore func(table string) SongQuerier

	MusicBrainzTTL time.Duration
	AppleMusicTTL  time.Duration
}

func (d Deps) withDefaults() Deps {
	if d.MusicBrainzTTL <= 0 {
		d.MusicBrainzTTL = time.Hour
	}
	if d.AppleMusicTTL <= 0 {
		d.AppleMusicTTL = time.Minute
	}
	if d.MusicBrainz == nil {
		d.MusicBrainz = musicbrainz.NewClient()
	}
	if d.AppleMusic == nil {
		d.AppleMusic = applemusic.NewClient()
	}
	return d
}

// Register mounts every route on app.
func Register(app *musicapi.App, deps Deps) *musicapi.App {
	h := &handlers{deps: deps.withDefaults()}

	admin := limited.CategoryAdmin
	app.Get(PrefixAdmin+"/schedule-rate", h.getScheduleRate, musicapi.WithRateLimit(admin), musicapi.WithName("get-schedule-rate"))
	app.Post(PrefixAdmin+"/schedule-rate", h.setScheduleRate, musicapi.WithRateLimit(admin), musicapi.WithName("set-schedule-rate"))
	app.Get(PrefixAdmin+"/song-limit", h.getLimit(songLimit), musicapi.WithRateLimit(admin), musicapi.WithName("get-song-limit"))
	app.Post(PrefixAdmin+"/song-limit", h.setLimit(songLimit), musicapi.WithRateLimit(admin), musicapi.WithName("set-song-limit"))
	app.Get(PrefixAdmin+"/track-limit", h.getLimit(trackLimit), musicapi.WithRateLimit(admin), musicapi.WithName("get-track-limit"))
	app.Post(PrefixAdmin+"/track-limit", h.setLimit(trackLimit), musicapi.WithRateLimit(admin), musicapi.WithName("set-track-limit"))
	app.Get(PrefixAdmin+"/mut", h.getMUT, musicapi.WithRateLimit(admin), musicapi.WithName("get-mut"))
	app.Post(PrefixAdmin+"/mut", h.setMUT, musicapi.WithRateLimit(admin), musicapi.WithName("set-mut"))

	external := limited.CategoryExternalAPI
	app.Get(PrefixIntegration+"/apple-music/mut-status", h.mutStatus, musicapi.WithRateLimit(limited.CategoryRead), musicapi.WithName("get-apple-mut-status"))
	app.Get(PrefixIntegration+"/developer-token", h.developerToken, musicapi.WithRateLimit(external), musicapi.WithName("get-developer-token"))
	app.Get(PrefixIntegration+"/musicbrainz/{path+}", h.musicBrainz, musicapi.WithRateLimit(external), musicapi.WithName("get-data-from-musicbrainz"))
	app.Get(PrefixIntegration+"/apple-music/{path+}", h.appleMusic, musicapi.WithRateLimit(external), musicapi.WithName("get-data-from-apple-music"))
	app.Get(PrefixIntegration+"/song-history", h.songHistory, musicapi.WithRateLimit(limited.CategoryRead), musicapi.WithName("get-song-history"))
	return app
}

type handlers struct {
	deps Deps
}
