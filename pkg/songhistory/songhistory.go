// Package songhistory reads the recently played songs recorded in DynamoDB.
package songhistory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100

	entitySong = "SONG"
)

// ErrInvalidStartKey is returned when a pagination token cannot be decoded.
var ErrInvalidStartKey = errors.New("songhistory: invalid start key")

// Song is one played track. Items are partitioned by EntityType and sorted by
// ProcessedTimestamp.
type Song struct {
	ID                 string   `dynamodbav:"id" json:"id"`
	EntityType         string   `dynamodbav:"entityType" json:"entityType"`
	ProcessedTimestamp string   `dynamodbav:"processedTimestamp" json:"processedTimestamp"`
	Name               string   `dynamodbav:"name" json:"name"`
	ArtistName         string   `dynamodbav:"artistName" json:"artistName"`
	AlbumName          string   `dynamodbav:"albumName,omitempty" json:"albumName,omitempty"`
	GenreNames         []string `dynamodbav:"genreNames,omitempty" json:"genreNames,omitempty"`
	ArtworkURL         string   `dynamodbav:"artworkUrl,omitempty" json:"artworkUrl,omitempty"`
	URL                string   `dynamodbav:"url,omitempty" json:"url,omitempty"`
	DurationInMillis   int64    `dynamodbav:"durationInMillis,omitempty" json:"durationInMillis,omitempty"`
	ReleaseDate        string   `dynamodbav:"releaseDate,omitempty" json:"releaseDate,omitempty"`

	SongID               string         `dynamodbav:"songId,omitempty" json:"songId,omitempty"`
	TrackNumber          int            `dynamodbav:"trackNumber,omitempty" json:"trackNumber,omitempty"`
	ISRC                 string         `dynamodbav:"isrc,omitempty" json:"isrc,omitempty"`
	ComposerName         string         `dynamodbav:"composerName,omitempty" json:"composerName,omitempty"`
	HasLyrics            bool           `dynamodbav:"hasLyrics,omitempty" json:"hasLyrics,omitempty"`
	IsAppleDigitalMaster bool           `dynamodbav:"isAppleDigitalMaster,omitempty" json:"isAppleDigitalMaster,omitempty"`
	ArtworkColors        *ArtworkColors `dynamodbav:"artworkColors,omitempty" json:"artworkColors,omitempty"`
}

type ArtworkColors struct {
	BackgroundColor string `dynamodbav:"backgroundColor" json:"backgroundColor"`
	TextColor1      string `dynamodbav:"textColor1" json:"textColor1"`
	TextColor2      string `dynamodbav:"textColor2" json:"textColor2"`
	TextColor3      string `dynamodbav:"textColor3" json:"textColor3"`
	TextColor4      string `dynamodbav:"textColor4" json:"textColor4"`
}

// Query selects a page of history.
type Query struct {
	Limit int
	// Artist keeps only songs whose artist name contains it.
	Artist string
	// StartKey is the LastEvaluatedKey of the previous page as returned in Page.LastKey.
	StartKey string
}

// Page is one page of songs, newest first.
type Page struct {
	Items []Song
	// LastKey is empty on the final page.
	LastKey string
}

type queryAPI interface {
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Store queries one history table.
type Store struct {
	client queryAPI
	table  string
}

func NewStore(client queryAPI, table string) *Store {
	return &Store{client: client, table: table}
}

// EffectiveLimit clamps limit into 1..MaxLimit, using DefaultLimit for non-positive values.
func EffectiveLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// Songs returns one page of history.
func (s *Store) Songs(ctx context.Context, q Query) (Page, error) {
	if s == nil || s.client == nil {
		return Page{}, errors.New("songhistory: dynamodb client is nil")
	}
	if strings.TrimSpace(s.table) == "" {
		return Page{}, errors.New("songhistory: table name is empty")
	}

	values := map[string]types.AttributeValue{
		":entityType": &types.AttributeValueMemberS{Value: entitySong},
	}
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("entityType = :entityType"),
		ScanIndexForward:       aws.Bool(false),
		Limit:                  aws.Int32(int32(EffectiveLimit(q.Limit))),
	}
	if artist := strings.TrimSpace(q.Artist); artist != "" {
		input.FilterExpression = aws.String("contains(artistName, :artistName)")
		values[":artistName"] = &types.AttributeValueMemberS{Value: artist}
	}
	input.ExpressionAttributeValues = values

	if q.StartKey != "" {
		key, err := DecodeKey(q.StartKey)
		if err != nil {
			return Page{}, err
		}
		input.ExclusiveStartKey = key
	}

	out, err := s.client.Query(ctx, input)
	if err != nil {
		return Page{}, fmt.Errorf("songhistory: query %s: %w", s.table, err)
	}

	page := Page{Items: []Song{}}
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &page.Items); err != nil {
		return Page{}, fmt.Errorf("songhistory: decode items: %w", err)
	}
	if len(out.LastEvaluatedKey) > 0 {
		page.LastKey, err = EncodeKey(out.LastEvaluatedKey)
		if err != nil {
			return Page{}, err
		}
	}
	return page, nil
}

// EncodeKey renders a DynamoDB key as the JSON object used for pagination tokens.
func EncodeKey(key map[string]types.AttributeValue) (string, error) {
	var plain map[string]any
	if err := attributevalue.UnmarshalMap(key, &plain); err != nil {
		return "", fmt.Errorf("songhistory: encode key: %w", err)
	}
	raw, err := json.Marshal(plain)
	if err != nil {
		return "", fmt.Errorf("songhistory: encode key: %w", err)
	}
	return string(raw), nil
}

// DecodeKey parses a token produced by EncodeKey.
func DecodeKey(token string) (map[string]types.AttributeValue, error) {
	var plain map[string]any
	if err := json.Unmarshal([]byte(token), &plain); err != nil || len(plain) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStartKey, token)
	}
	key, err := attributevalue.MarshalMap(plain)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStartKey, err)
	}
	return key, nil
}
