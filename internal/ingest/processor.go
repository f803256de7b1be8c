// Package ingest orchestrates webhook ingestion: it flattens an incoming
// envelope, resolves each message to a conversation, persists both inside a
// single transaction, and hands attachments to the media pipeline. A request
// is atomic at the database level; media failures are isolated so the
// message row is stored even when the attachment is not.
package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rotisserie/eris"

	"github.com/wavault/wavault/internal/media"
	"github.com/wavault/wavault/internal/payload"
	"github.com/wavault/wavault/internal/store"
)

// ErrInvalidPayload marks request bodies that are not a JSON object. The
// HTTP layer maps it to a 400; anything else surfaced from Process is a 500.
var ErrInvalidPayload = errors.New("invalid webhook payload")

// MediaProcessor downloads, decrypts and stores one attachment. Implemented
// by media.Pipeline.
type MediaProcessor interface {
	Process(ctx context.Context, att *payload.Attachment, conversationID string, sentAt time.Time, messageID string) (*media.Result, error)
}

// Processor handles one webhook body end to end.
type Processor struct {
	store   *store.Store
	media   MediaProcessor
	cdnBase string
	logger  *slog.Logger
}

// New creates a Processor. media may be nil, in which case attachments are
// recorded as metadata-only (type and caption survive, no file is written).
func New(st *store.Store, mp MediaProcessor, cdnBase string, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{store: st, media: mp, cdnBase: cdnBase, logger: logger}
}

// Process ingests one raw webhook body and returns the number of messages
// stored. Envelopes that flatten to zero messages (status updates, unknown
// shapes) succeed with a count of zero.
func (p *Processor) Process(ctx context.Context, body []byte) (int, error) {
	var tree payload.Tree
	if err := json.Unmarshal(body, &tree); err != nil {
		return 0, fmt.Errorf("%w: body is not a JSON object", ErrInvalidPayload)
	}

	raws := payload.Flatten(tree)
	if len(raws) == 0 {
		return 0, nil
	}

	stored := 0
	err := p.store.WithTx(func(tx *sql.Tx) error {
		for _, raw := range raws {
			ok, err := p.processOne(ctx, tx, raw)
			if err != nil {
				return err
			}
			if ok {
				stored++
			}
		}
		return nil
	})
	if err != nil {
		return 0, eris.Wrap(err, "persist webhook messages")
	}
	return stored, nil
}

// processOne resolves, normalizes and stores a single raw message within tx.
// Messages without any conversation identifier are skipped, not failed.
func (p *Processor) processOne(ctx context.Context, tx *sql.Tx, raw payload.Raw) (bool, error) {
	convID := payload.ResolveConversationID(raw)
	if convID == "" {
		p.logger.Warn("skipping message without conversation identifier")
		return false, nil
	}

	msg := payload.Normalize(raw, p.cdnBase)
	sentAt := resolveSentAt(raw)
	kind := payload.ResolveKind(convID)
	name := payload.ResolveDisplayName(raw, convID, kind, !msg.FromMe)
	avatar := payload.ResolveAvatar(raw, convID, kind)

	conversationID, err := p.store.UpsertConversation(tx, store.ConversationUpsert{
		WaID:                 convID,
		Name:                 name,
		Kind:                 string(kind),
		Channel:              raw.Channel,
		AvatarURL:            avatar,
		LastMessageAt:        sentAt,
		PreserveExistingName: true,
	})
	if err != nil {
		return false, eris.Wrapf(err, "upsert conversation %s", convID)
	}

	rec := store.MessageRecord{
		WaMessageID: msg.ProviderID,
		SenderName:  msg.SenderName,
		SenderPhone: msg.SenderPhone,
		MessageType: msg.Kind,
		MessageBody: msg.Body,
		IsFromMe:    msg.FromMe,
		SentAt:      sentAt,
	}

	if msg.Attachment != nil {
		rec.MediaMimeType = msg.Attachment.MimeType
		rec.MediaCaption = msg.Attachment.Caption
		rec.MediaFilename = msg.Attachment.Filename
		if p.media != nil {
			res, mediaErr := p.media.Process(ctx, msg.Attachment, convID, sentAt, msg.ProviderID)
			switch {
			case mediaErr != nil:
				// The message itself still belongs in the archive.
				p.logger.Error("attachment processing failed",
					"conversation", convID,
					"message_id", msg.ProviderID,
					"error", mediaErr)
			case res != nil:
				rec.MediaPath = res.Path
				rec.MediaMimeType = res.MimeType
				rec.MediaSize = res.Size
				rec.MediaDuration = res.Duration
				rec.MediaCaption = res.Caption
				rec.MediaFilename = res.Filename
			}
		}
	}

	if rawJSON, err := json.Marshal(raw.Message); err == nil {
		rec.RawPayload = rawJSON
	}

	if err := p.store.AppendMessage(tx, conversationID, rec); err != nil {
		return false, eris.Wrapf(err, "append message to conversation %s", convID)
	}
	return true, nil
}

// resolveSentAt picks the message timestamp, falling back to context-level
// fields and finally to the current time.
func resolveSentAt(raw payload.Raw) time.Time {
	for _, path := range []string{"timestamp", "sent_at", "t"} {
		if v := raw.Message.Get(path); v != nil {
			return payload.ResolveTimestamp(v)
		}
	}
	for _, path := range []string{"moment", "timestamp"} {
		if v := raw.Value.Get(path); v != nil {
			return payload.ResolveTimestamp(v)
		}
	}
	return payload.ResolveTimestamp(nil)
}
