package state

import (
	"database/sql"
	"errors"
	"time"

	dbutil "github.com/lhoume/jukebox/internal/db"
	"github.com/lhoume/jukebox/internal/queue"
)

func getPlayback(db *sql.DB) (*PlaybackState, error) {
	var s PlaybackState
	row := db.QueryRow(`SELECT repeat_mode, shuffle, songs_played FROM playback_state WHERE id = 1`)
	err := row.Scan(&s.RepeatMode, &s.Shuffle, &s.SongsPlayed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func savePlayback(db *sql.DB, s PlaybackState) error {
	_, err := db.Exec(`
		INSERT INTO playback_state (id, repeat_mode, shuffle, songs_played)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			repeat_mode = excluded.repeat_mode,
			shuffle = excluded.shuffle,
			songs_played = excluded.songs_played
	`, s.RepeatMode, s.Shuffle, s.SongsPlayed)
	return err
}

func getQueue(db *sql.DB) ([]queue.Item, error) {
	rows, err := db.Query(`
		SELECT id, kind, content, source_url, title, artist,
		       requester_id, origin_channel, priority,
		       download_status, download_progress, thumbnail, duration_ms
		FROM queue_items
		ORDER BY position
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []queue.Item
	for rows.Next() {
		var it queue.Item
		var kind int
		var sourceURL, title, artist, requester, origin, thumbnail sql.NullString
		var durationMs sql.NullInt64

		err := rows.Scan(&it.ID, &kind, &it.Content, &sourceURL, &title, &artist,
			&requester, &origin, &it.Priority,
			&it.DownloadStatus, &it.DownloadProgress, &thumbnail, &durationMs)
		if err != nil {
			return nil, err
		}

		it.Kind = queue.Kind(kind)
		it.SourceURL = dbutil.StringValue(sourceURL)
		it.Title = dbutil.StringValue(title)
		it.Artist = dbutil.StringValue(artist)
		it.RequesterID = dbutil.StringValue(requester)
		it.OriginChannel = dbutil.StringValue(origin)
		it.Thumbnail = dbutil.StringValue(thumbnail)
		it.Duration = time.Duration(dbutil.Int64Value(durationMs)) * time.Millisecond
		items = append(items, it)
	}

	return items, rows.Err()
}

func saveQueue(sqlDB *sql.DB, items []queue.Item) error {
	return dbutil.WithTx(sqlDB, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM queue_items`); err != nil {
			return err
		}

		stmt, err := tx.Prepare(`
			INSERT INTO queue_items (
				id, position, kind, content, source_url, title, artist,
				requester_id, origin_channel, priority,
				download_status, download_progress, thumbnail, duration_ms
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for pos, it := range items {
			_, err := stmt.Exec(
				it.ID, pos, int(it.Kind), it.Content,
				dbutil.NullableString(it.SourceURL),
				dbutil.NullableString(it.Title),
				dbutil.NullableString(it.Artist),
				dbutil.NullableString(it.RequesterID),
				dbutil.NullableString(it.OriginChannel),
				it.Priority,
				it.DownloadStatus, it.DownloadProgress,
				dbutil.NullableString(it.Thumbnail),
				it.Duration.Milliseconds(),
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}
