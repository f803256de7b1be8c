package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Message represents a message row.
type Message struct {
	ID             int64
	ConversationID int64
	WaMessageID    sql.NullString
	SenderName     sql.NullString
	SenderPhone    sql.NullString
	MessageType    sql.NullString
	MessageBody    string
	IsFromMe       bool
	SentAt         time.Time
	MediaPath      sql.NullString
	MediaMimeType  sql.NullString
	MediaSize      sql.NullInt64
	MediaDuration  sql.NullInt64
	MediaCaption   sql.NullString
	MediaFilename  sql.NullString
	RawPayload     sql.NullString
}

// MessageRecord carries the fields for appending one message.
type MessageRecord struct {
	WaMessageID string
	SenderName  string
	SenderPhone string
	MessageType string
	MessageBody string
	IsFromMe    bool
	SentAt      time.Time
	RawPayload  []byte

	// Media metadata; zero values mean no persisted attachment.
	MediaPath     string
	MediaMimeType string
	MediaSize     int64
	MediaDuration int
	MediaCaption  string
	MediaFilename string
}

// AppendMessage inserts one message row within tx and refreshes the parent
// conversation's last-activity timestamp. Messages are plain inserts:
// replaying the same provider event produces duplicate rows (no uniqueness
// is enforced on wa_message_id).
func (s *Store) AppendMessage(tx *sql.Tx, conversationID int64, m MessageRecord) error {
	var mediaSize, mediaDuration sql.NullInt64
	if m.MediaPath != "" {
		mediaSize = sql.NullInt64{Int64: m.MediaSize, Valid: true}
		if m.MediaDuration > 0 {
			mediaDuration = sql.NullInt64{Int64: int64(m.MediaDuration), Valid: true}
		}
	}

	var raw sql.NullString
	if len(m.RawPayload) > 0 {
		raw = sql.NullString{String: string(m.RawPayload), Valid: true}
	}

	sentAt := m.SentAt.UTC().Format(timeFormat)

	_, err := tx.Exec(`
		INSERT INTO messages (
			conversation_id, wa_message_id, sender_name, sender_phone,
			message_type, message_body, is_from_me, sent_at,
			media_path, media_mime_type, media_size, media_duration,
			media_caption, media_filename, raw_payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, conversationID, nullable(m.WaMessageID), nullable(m.SenderName), nullable(m.SenderPhone),
		nullable(m.MessageType), m.MessageBody, boolToInt(m.IsFromMe), sentAt,
		nullable(m.MediaPath), nullable(m.MediaMimeType), mediaSize, mediaDuration,
		nullable(m.MediaCaption), nullable(m.MediaFilename), raw)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if _, err := tx.Exec(
		`UPDATE conversations SET last_message_at = ? WHERE id = ?`,
		sentAt, conversationID,
	); err != nil {
		return fmt.Errorf("refresh conversation activity: %w", err)
	}
	return nil
}

// ListMessages returns messages for one conversation in canonical order:
// sent timestamp, ties broken by insertion id.
func (s *Store) ListMessages(conversationID int64, offset, limit int) ([]Message, int64, error) {
	var total int64
	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, conversationID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT id, conversation_id, wa_message_id, sender_name, sender_phone,
		       message_type, message_body, is_from_me, sent_at,
		       media_path, media_mime_type, media_size, media_duration,
		       media_caption, media_filename, raw_payload
		FROM messages
		WHERE conversation_id = ?
		ORDER BY sent_at ASC, id ASC
		LIMIT ? OFFSET ?
	`, conversationID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var isFromMe int
		var sentAt string
		if err := rows.Scan(
			&m.ID, &m.ConversationID, &m.WaMessageID, &m.SenderName, &m.SenderPhone,
			&m.MessageType, &m.MessageBody, &isFromMe, &sentAt,
			&m.MediaPath, &m.MediaMimeType, &m.MediaSize, &m.MediaDuration,
			&m.MediaCaption, &m.MediaFilename, &m.RawPayload,
		); err != nil {
			return nil, 0, fmt.Errorf("scan message: %w", err)
		}
		m.IsFromMe = isFromMe != 0
		m.SentAt = parseStoredTime(sentAt)
		out = append(out, m)
	}
	return out, total, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
