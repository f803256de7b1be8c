package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/wavault/wavault/internal/payload"
)

// Conversation is a persisted chat thread, either a group or a one-to-one
// contact exchange, keyed by the provider-supplied external identifier.
type Conversation struct {
	ID            int64
	WaID          string
	Name          sql.NullString
	Kind          string
	Channel       sql.NullString
	AvatarURL     sql.NullString
	CreatedAt     time.Time
	LastMessageAt sql.NullTime
}

// ConversationUpsert carries the fields for creating or refreshing a
// conversation row.
type ConversationUpsert struct {
	WaID          string
	Name          string
	Kind          string
	Channel       string
	AvatarURL     string
	LastMessageAt time.Time

	// PreserveExistingName keeps a previously learned human-readable name:
	// the stored name is replaced only while it is still a synthesized
	// placeholder, so a placeholder never overwrites a real name but a
	// learned name always replaces a placeholder.
	PreserveExistingName bool
}

const timeFormat = time.RFC3339

// UpsertConversation creates or updates a conversation row within tx and
// returns its id. The wa_id uniqueness constraint is the only safeguard
// against concurrent first-contact races; a constraint failure on insert is
// retried as an update.
func (s *Store) UpsertConversation(tx *sql.Tx, c ConversationUpsert) (int64, error) {
	id, err := s.updateConversation(tx, c)
	if err != nil {
		return 0, err
	}
	if id != 0 {
		return id, nil
	}

	res, err := tx.Exec(`
		INSERT INTO conversations (wa_id, name, kind, channel, avatar_url, last_message_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.WaID, nullable(c.Name), c.Kind, nullable(c.Channel), nullable(c.AvatarURL),
		c.LastMessageAt.UTC().Format(timeFormat))
	if err != nil {
		if isSQLiteError(err, "UNIQUE constraint failed") {
			// Lost a first-contact race; the row exists now.
			id, uerr := s.updateConversation(tx, c)
			if uerr != nil {
				return 0, uerr
			}
			if id != 0 {
				return id, nil
			}
		}
		return 0, fmt.Errorf("insert conversation %s: %w", c.WaID, err)
	}

	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("conversation insert id: %w", err)
	}
	return id, nil
}

// updateConversation refreshes an existing row and returns its id, or 0 when
// no row with that wa_id exists yet.
func (s *Store) updateConversation(tx *sql.Tx, c ConversationUpsert) (int64, error) {
	var id int64
	var storedName sql.NullString
	err := tx.QueryRow(`SELECT id, name FROM conversations WHERE wa_id = ?`, c.WaID).
		Scan(&id, &storedName)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("lookup conversation %s: %w", c.WaID, err)
	}

	name := c.Name
	if c.PreserveExistingName && storedName.Valid && !payload.IsPlaceholderName(storedName.String, c.WaID) {
		name = storedName.String
	}

	_, err = tx.Exec(`
		UPDATE conversations
		SET name = ?, kind = ?, channel = ?,
		    avatar_url = COALESCE(NULLIF(?, ''), avatar_url),
		    updated_at = datetime('now'), last_message_at = ?
		WHERE id = ?
	`, nullable(name), c.Kind, nullable(c.Channel), c.AvatarURL,
		c.LastMessageAt.UTC().Format(timeFormat), id)
	if err != nil {
		return 0, fmt.Errorf("update conversation %s: %w", c.WaID, err)
	}
	return id, nil
}

// GetConversationByWaID fetches a conversation by its external id.
// Returns nil when not found.
func (s *Store) GetConversationByWaID(waID string) (*Conversation, error) {
	row := s.db.QueryRow(`
		SELECT id, wa_id, name, kind, channel, avatar_url, created_at, last_message_at
		FROM conversations WHERE wa_id = ?
	`, waID)
	return scanConversation(row)
}

// ListConversations returns conversations ordered by most recent activity.
func (s *Store) ListConversations(offset, limit int) ([]Conversation, int64, error) {
	var total int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count conversations: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT id, wa_id, name, kind, channel, avatar_url, created_at, last_message_at
		FROM conversations
		ORDER BY last_message_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		c, err := scanConversationRows(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFields(sc rowScanner) (*Conversation, error) {
	var c Conversation
	var createdAt string
	var lastMessageAt sql.NullString
	err := sc.Scan(&c.ID, &c.WaID, &c.Name, &c.Kind, &c.Channel, &c.AvatarURL, &createdAt, &lastMessageAt)
	if err != nil {
		return nil, err
	}
	c.CreatedAt = parseStoredTime(createdAt)
	if lastMessageAt.Valid {
		c.LastMessageAt = sql.NullTime{Time: parseStoredTime(lastMessageAt.String), Valid: true}
	}
	return &c, nil
}

func scanConversation(row *sql.Row) (*Conversation, error) {
	c, err := scanFields(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	return c, nil
}

func scanConversationRows(rows *sql.Rows) (*Conversation, error) {
	c, err := scanFields(rows)
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	return c, nil
}

// parseStoredTime parses timestamps stored either as RFC3339 or as SQLite's
// datetime('now') format, both UTC.
func parseStoredTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

// nullable maps "" to NULL.
func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
