package songhistory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/theory-cloud/musicapi/pkg/observability"
)

// TimestampLayout matches the sort key format of existing history items.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

type putAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Writer appends songs to one history table.
type Writer struct {
	client putAPI
	table  string
	logger observability.StructuredLogger
}

func NewWriter(client putAPI, table string, logger observability.StructuredLogger) *Writer {
	if logger == nil {
		logger = observability.NewNoOpLogger()
	}
	return &Writer{client: client, table: table, logger: logger}
}

// WriteResult counts the outcome of one Record call.
type WriteResult struct {
	Stored int
	Failed int
}

// HashID is the item id of a song: the hex SHA-256 of "artist-name-album".
func HashID(artist, name, album string) string {
	sum := sha256.Sum256([]byte(artist + "-" + name + "-" + album))
	return hex.EncodeToString(sum[:])
}

// Record stores songs, newest first, one item each. The i-th song is stamped now+i ms so
// sort keys stay unique within a batch. It fails only when every write fails.
func (w *Writer) Record(ctx context.Context, songs []Song, now time.Time) (WriteResult, error) {
	var res WriteResult
	if w == nil || w.client == nil {
		return res, errors.New("songhistory: dynamodb client is nil")
	}
	if strings.TrimSpace(w.table) == "" {
		return res, errors.New("songhistory: table name is empty")
	}

	for i, song := range songs {
		song.EntityType = entitySong
		song.ID = HashID(song.ArtistName, song.Name, song.AlbumName)
		song.ProcessedTimestamp = now.UTC().Add(time.Duration(i) * time.Millisecond).Format(TimestampLayout)

		item, err := attributevalue.MarshalMap(song)
		if err == nil {
			_, err = w.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(w.table), Item: item})
		}
		if err != nil {
			res.Failed++
			w.logger.Error("failed to store song", map[string]any{
				"song_id": song.SongID,
				"index":   i,
				"error":   err.Error(),
			})
			continue
		}
		res.Stored++
		w.logger.Debug("stored song", map[string]any{"song_id": song.SongID, "name": song.Name})
	}

	if res.Failed > 0 && res.Stored == 0 {
		return res, fmt.Errorf("songhistory: failed to store any songs: all %d writes failed", res.Failed)
	}
	return res, nil
}
