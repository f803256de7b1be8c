package media

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wavault/wavault/internal/payload"
)

// Result is the storage metadata returned for a successfully decrypted and
// persisted attachment, merged into the owning message record.
type Result struct {
	Path     string // relative to the storage root
	MimeType string
	Size     int64 // actual bytes on disk
	Duration int   // seconds
	Caption  string
	Filename string
}

// Pipeline ties together download, integrity verification, decryption and
// partitioned storage for one attachment at a time.
type Pipeline struct {
	fetcher *Fetcher
	storage *Storage
	logger  *slog.Logger
}

// NewPipeline creates a media pipeline.
func NewPipeline(fetcher *Fetcher, storage *Storage, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{fetcher: fetcher, storage: storage, logger: logger}
}

// Process downloads, verifies, decrypts and stores one attachment. It runs
// only when the descriptor carries both a URL and key material; otherwise it
// returns (nil, nil) and the message is stored without media. Every failure
// is attachment-local: the caller logs it and persists the message anyway.
func (p *Pipeline) Process(ctx context.Context, att *payload.Attachment, conversationID string, sentAt time.Time, messageID string) (*Result, error) {
	if att == nil || att.URL == "" || len(att.MediaKey) == 0 {
		return nil, nil
	}

	blob, err := p.fetcher.Fetch(ctx, att.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s attachment: %w", att.Kind, err)
	}

	plaintext, err := Decrypt(blob, att.MediaKey, att.Kind)
	if err != nil {
		return nil, fmt.Errorf("decrypt %s attachment: %w", att.Kind, err)
	}

	relPath, size, err := p.storage.Write(conversationID, sentAt, messageID, att.MimeType, plaintext)
	if err != nil {
		return nil, fmt.Errorf("store %s attachment: %w", att.Kind, err)
	}

	p.logger.Debug("stored media attachment",
		"kind", att.Kind,
		"path", relPath,
		"bytes", size,
	)

	return &Result{
		Path:     relPath,
		MimeType: att.MimeType,
		Size:     size,
		Duration: att.Duration,
		Caption:  att.Caption,
		Filename: att.Filename,
	}, nil
}
