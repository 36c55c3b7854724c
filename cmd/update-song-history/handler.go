package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/theory-cloud/musicapi/pkg/applemusic"
	"github.com/theory-cloud/musicapi/pkg/devtoken"
	"github.com/theory-cloud/musicapi/pkg/notify"
	"github.com/theory-cloud/musicapi/pkg/params"
	"github.com/theory-cloud/musicapi/pkg/songhistory"
	musicapi "github.com/theory-cloud/musicapi/runtime"
)

// Environment variables read by the job.
const (
	EnvTableName           = "DYNAMODB_TABLE_NAME"
	EnvLastProcessedSong   = "LAST_PROCESSED_SONG_PARAMETER"
	EnvMusicUserTokenParam = "MUSIC_USER_TOKEN_PARAMETER"
	EnvSongLimitParameter  = "SONG_LIMIT_PARAMETER"
	EnvAppleAuthKeySecret  = "APPLE_AUTH_KEY_SECRET_NAME"
	EnvAppleTeamID         = "APPLE_TEAM_ID"
	EnvAppleKeyID          = "APPLE_KEY_ID"
)

type tokenSource interface {
	Generate(ctx context.Context, cfg devtoken.Config) (string, error)
}

type recentSource interface {
	RecentlyPlayed(ctx context.Context, limit int, tokens applemusic.Tokens) ([]applemusic.Track, error)
}

type recorder interface {
	Record(ctx context.Context, songs []songhistory.Song, now time.Time) (songhistory.WriteResult, error)
}

type deps struct {
	Params    params.Store
	Tokens    tokenSource
	Music     recentSource
	History   func(table string) recorder
	Refresher notify.TokenRefresher
}

type settings struct {
	table, lastProcessed, mut, songLimit string
	token                                devtoken.Config
}

func loadSettings(c *musicapi.EventContext) (settings, error) {
	var s settings
	for _, v := range []struct {
		dst  *string
		name string
	}{
		{&s.table, EnvTableName},
		{&s.lastProcessed, EnvLastProcessedSong},
		{&s.mut, EnvMusicUserTokenParam},
		{&s.songLimit, EnvSongLimitParameter},
		{&s.token.SecretName, EnvAppleAuthKeySecret},
		{&s.token.TeamID, EnvAppleTeamID},
		{&s.token.KeyID, EnvAppleKeyID},
	} {
		value, err := c.RequireEnv(v.name)
		if err != nil {
			c.Metrics().Add("ConfigurationError", 1)
			return settings{}, err
		}
		*v.dst = value
	}
	return s, nil
}

func newHandler(d deps) musicapi.EventBridgeHandler {
	return func(c *musicapi.EventContext, _ events.EventBridgeEvent) error {
		s, err := loadSettings(c)
		if err != nil {
			return err
		}

		mut, err := c.RequireParameter(s.mut)
		if err != nil {
			c.Metrics().Add("AuthenticationError", 1)
			return fmt.Errorf("update-song-history: retrieve music user token: %w", err)
		}
		developer, err := d.Tokens.Generate(c.Context(), s.token)
		if err != nil {
			c.Metrics().Add("AuthenticationError", 1)
			return fmt.Errorf("update-song-history: developer token: %w", err)
		}

		lastID, err := optionalParameter(c, s.lastProcessed)
		if err != nil {
			return err
		}
		c.Logger().Info("Last processed song status", map[string]any{"last_processed_song_id": lastID})

		limit := songLimit(c, s.songLimit)
		recent, err := d.Music.RecentlyPlayed(c.Context(), limit, applemusic.Tokens{Developer: developer, MusicUser: mut})
		if err != nil {
			if errors.Is(err, applemusic.ErrTokenExpired) {
				c.Metrics().Add("TokenExpirationDetected", 1)
				requestRefresh(c, d.Refresher)
			}
			return fmt.Errorf("update-song-history: fetch recent songs: %w", err)
		}
		c.Metrics().Add("SongsProcessed", float64(len(recent)))

		fresh := applemusic.NewSince(recent, lastID)
		c.Metrics().Add("NewSongsIdentified", float64(len(fresh)))
		c.Logger().Info("New songs identified", map[string]any{"fetched": len(recent), "new": len(fresh)})
		if len(fresh) == 0 {
			c.Logger().Info("No new songs to store")
			return nil
		}

		songs := make([]songhistory.Song, 0, len(fresh))
		for _, t := range fresh {
			songs = append(songs, songFromTrack(t))
		}
		res, err := d.History(s.table).Record(c.Context(), songs, c.Now())
		c.Metrics().Add("SongsStoredSuccess", float64(res.Stored))
		c.Metrics().Add("SongsStoredError", float64(res.Failed))
		if err != nil {
			return err
		}

		if err := d.Params.PutParameter(c.Context(), s.lastProcessed, fresh[0].ID, params.PutOptions{}); err != nil {
			return fmt.Errorf("update-song-history: update last processed song: %w", err)
		}
		c.Logger().Info("Apple Music history processing complete", map[string]any{
			"songs_processed":  len(recent),
			"new_songs_stored": res.Stored,
			"last_song_id":     fresh[0].ID,
		})
		return nil
	}
}

func optionalParameter(c *musicapi.EventContext, name string) (string, error) {
	value, err := c.Parameter(name)
	if errors.Is(err, params.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(value), nil
}

// songLimit falls back to the Apple default when the parameter is missing or not a number.
func songLimit(c *musicapi.EventContext, name string) int {
	raw, err := optionalParameter(c, name)
	if err == nil && raw != "" {
		if f, perr := strconv.ParseFloat(raw, 64); perr == nil && f >= 1 {
			return int(f)
		}
	}
	c.Logger().Warn("Song limit not found, using default", map[string]any{
		"parameter": name,
		"default":   applemusic.DefaultRecentLimit,
	})
	return applemusic.DefaultRecentLimit
}

func requestRefresh(c *musicapi.EventContext, refresher notify.TokenRefresher) {
	if refresher == nil {
		return
	}
	if _, err := refresher.RequestTokenRefresh(c.Context(), "", ""); err != nil {
		c.Logger().Error("Failed to send token refresh notification", map[string]any{"error": err.Error()})
	}
}

func songFromTrack(t applemusic.Track) songhistory.Song {
	song := songhistory.Song{
		SongID:               t.ID,
		Name:                 t.Name,
		ArtistName:           t.ArtistName,
		AlbumName:            t.AlbumName,
		GenreNames:           t.GenreNames,
		TrackNumber:          t.TrackNumber,
		DurationInMillis:     t.DurationInMillis,
		ReleaseDate:          t.ReleaseDate,
		ISRC:                 t.ISRC,
		ArtworkURL:           t.ArtworkURL,
		ComposerName:         t.ComposerName,
		URL:                  t.URL,
		HasLyrics:            t.HasLyrics,
		IsAppleDigitalMaster: t.IsAppleDigitalMaster,
	}
	if c := t.ArtworkColors; c != nil {
		song.ArtworkColors = &songhistory.ArtworkColors{
			BackgroundColor: c.BackgroundColor,
			TextColor1:      c.TextColor1,
			TextColor2:      c.TextColor2,
			TextColor3:      c.TextColor3,
			TextColor4:      c.TextColor4,
		}
	}
	return song
}
