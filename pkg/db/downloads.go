package db

import (
	"fmt"
	"time"
)

// Download is one artifact saved from a batch.
type Download struct {
	DownloadID int64
	BatchID    string
	Index      int
	URL        string
	Location   string
	SizeBytes  int64
	CreatedAt  time.Time
}

// RecordDownload stores a saved artifact for a batch item.
func (db *DB) RecordDownload(batchID string, index int, url, location string, sizeBytes int64) (int64, error) {
	result, err := db.Exec(`
		INSERT INTO downloads (batch_id, item_index, url, location, size_bytes)
		VALUES (?, ?, ?, ?, ?)
	`, batchID, index, url, location, sizeBytes)
	if err != nil {
		return 0, fmt.Errorf("failed to record download: %w", err)
	}
	return result.LastInsertId()
}

// ListDownloads retrieves the downloads of a batch, oldest first
func (db *DB) ListDownloads(batchID string) ([]Download, error) {
	rows, err := db.Query(`
		SELECT download_id, batch_id, item_index, url, location, size_bytes, created_at
		FROM downloads
		WHERE batch_id = ?
		ORDER BY download_id
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list downloads: %w", err)
	}
	defer rows.Close()

	var downloads []Download
	for rows.Next() {
		var d Download
		if err := rows.Scan(&d.DownloadID, &d.BatchID, &d.Index, &d.URL, &d.Location,
			&d.SizeBytes, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan download: %w", err)
		}
		downloads = append(downloads, d)
	}
	return downloads, rows.Err()
}
