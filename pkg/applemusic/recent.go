package applemusic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

const (
	RecentlyPlayedEndpoint = "/me/recent/played/tracks"

	// DefaultRecentLimit applies when no song limit is configured.
	DefaultRecentLimit = 25
)

// ArtworkColors are the hex colors Apple publishes with an artwork.
type ArtworkColors struct {
	BackgroundColor string `json:"backgroundColor"`
	TextColor1      string `json:"textColor1"`
	TextColor2      string `json:"textColor2"`
	TextColor3      string `json:"textColor3"`
	TextColor4      string `json:"textColor4"`
}

// Track is one entry of the listener's recently played tracks.
type Track struct {
	ID                   string
	Name                 string
	ArtistName           string
	AlbumName            string
	GenreNames           []string
	TrackNumber          int
	DurationInMillis     int64
	ReleaseDate          string
	ISRC                 string
	ArtworkURL           string
	ComposerName         string
	URL                  string
	HasLyrics            bool
	IsAppleDigitalMaster bool
	ArtworkColors        *ArtworkColors
}

type resourceDocument struct {
	Data []struct {
		ID         string           `json:"id"`
		Attributes *trackAttributes `json:"attributes"`
	} `json:"data"`
}

type trackAttributes struct {
	Name                 string   `json:"name"`
	ArtistName           string   `json:"artistName"`
	AlbumName            string   `json:"albumName"`
	GenreNames           []string `json:"genreNames"`
	TrackNumber          int      `json:"trackNumber"`
	DurationInMillis     int64    `json:"durationInMillis"`
	ReleaseDate          string   `json:"releaseDate"`
	ISRC                 string   `json:"isrc"`
	ComposerName         string   `json:"composerName"`
	URL                  string   `json:"url"`
	HasLyrics            bool     `json:"hasLyrics"`
	IsAppleDigitalMaster bool     `json:"isAppleDigitalMaster"`
	Artwork              *struct {
		URL        string `json:"url"`
		BgColor    string `json:"bgColor"`
		TextColor1 string `json:"textColor1"`
		TextColor2 string `json:"textColor2"`
		TextColor3 string `json:"textColor3"`
		TextColor4 string `json:"textColor4"`
	} `json:"artwork"`
}

// RecentlyPlayed returns up to limit tracks, newest first. Resources without an id or
// attributes are skipped.
func (c *Client) RecentlyPlayed(ctx context.Context, limit int, tokens Tokens) ([]Track, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	raw, err := c.Get(ctx, RecentlyPlayedEndpoint, url.Values{"limit": {strconv.Itoa(limit)}}, tokens)
	if err != nil {
		return nil, err
	}
	return ParseTracks(raw)
}

// ParseTracks decodes an Apple Music resource document of songs.
func ParseTracks(raw json.RawMessage) ([]Track, error) {
	var doc resourceDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("applemusic: decode tracks: %w", err)
	}

	tracks := make([]Track, 0, len(doc.Data))
	for _, item := range doc.Data {
		if item.ID == "" || item.Attributes == nil {
			continue
		}
		a := item.Attributes
		track := Track{
			ID:                   item.ID,
			Name:                 orDefault(a.Name, "Unknown Track"),
			ArtistName:           orDefault(a.ArtistName, "Unknown Artist"),
			AlbumName:            orDefault(a.AlbumName, "Unknown Album"),
			GenreNames:           a.GenreNames,
			TrackNumber:          a.TrackNumber,
			DurationInMillis:     a.DurationInMillis,
			ReleaseDate:          a.ReleaseDate,
			ISRC:                 a.ISRC,
			ComposerName:         a.ComposerName,
			URL:                  a.URL,
			HasLyrics:            a.HasLyrics,
			IsAppleDigitalMaster: a.IsAppleDigitalMaster,
		}
		if a.Artwork != nil {
			track.ArtworkURL = a.Artwork.URL
			track.ArtworkColors = &ArtworkColors{
				BackgroundColor: "#" + a.Artwork.BgColor,
				TextColor1:      "#" + a.Artwork.TextColor1,
				TextColor2:      "#" + a.Artwork.TextColor2,
				TextColor3:      "#" + a.Artwork.TextColor3,
				TextColor4:      "#" + a.Artwork.TextColor4,
			}
		}
		tracks = append(tracks, track)
	}
	return tracks, nil
}

// NewSince keeps the tracks played after lastID. All tracks are new when lastID is empty or
// no longer in the list.
func NewSince(tracks []Track, lastID string) []Track {
	if lastID == "" {
		return tracks
	}
	for i, t := range tracks {
		if t.ID == lastID {
			return tracks[:i]
		}
	}
	return tracks
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
