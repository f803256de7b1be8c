package store

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.InitSchema(); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return s
}

func upsert(t *testing.T, s *Store, c ConversationUpsert) int64 {
	t.Helper()
	var id int64
	err := s.WithTx(func(tx *sql.Tx) error {
		var err error
		id, err = s.UpsertConversation(tx, c)
		return err
	})
	if err != nil {
		t.Fatalf("upsert conversation: %v", err)
	}
	return id
}

func TestUpsertConversationCreateThenUpdate(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)

	id1 := upsert(t, s, ConversationUpsert{
		WaID: "5511999999999", Name: "Ana", Kind: "contact",
		Channel: "1555", LastMessageAt: now, PreserveExistingName: true,
	})
	id2 := upsert(t, s, ConversationUpsert{
		WaID: "5511999999999", Name: "Ana Maria", Kind: "contact",
		Channel: "1555", LastMessageAt: now.Add(time.Hour), PreserveExistingName: true,
	})
	if id1 != id2 {
		t.Errorf("same wa_id must map to the same row: %d vs %d", id1, id2)
	}

	c, err := s.GetConversationByWaID("5511999999999")
	if err != nil {
		t.Fatal(err)
	}
	if c == nil {
		t.Fatal("conversation not found")
	}
	// Ana was a learned human name; it is preserved.
	if c.Name.String != "Ana" {
		t.Errorf("name = %q, want preserved Ana", c.Name.String)
	}
	if !c.LastMessageAt.Valid || !c.LastMessageAt.Time.Equal(now.Add(time.Hour)) {
		t.Errorf("last_message_at = %v, want refreshed", c.LastMessageAt)
	}
}

func TestNameUpdatePolicy(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	// Stored name equal to the raw identifier is replaceable.
	upsert(t, s, ConversationUpsert{
		WaID: "777", Name: "777", Kind: "contact",
		LastMessageAt: now, PreserveExistingName: true,
	})
	upsert(t, s, ConversationUpsert{
		WaID: "777", Name: "Gabriela", Kind: "contact",
		LastMessageAt: now, PreserveExistingName: true,
	})
	c, _ := s.GetConversationByWaID("777")
	if c.Name.String != "Gabriela" {
		t.Errorf("identifier-valued name should be replaced, got %q", c.Name.String)
	}

	// So is the rendered phone-number placeholder a nameless first
	// contact leaves behind.
	upsert(t, s, ConversationUpsert{
		WaID: "5511888888888", Name: "+5511888888888", Kind: "contact",
		LastMessageAt: now, PreserveExistingName: true,
	})
	upsert(t, s, ConversationUpsert{
		WaID: "5511888888888", Name: "Bruno", Kind: "contact",
		LastMessageAt: now, PreserveExistingName: true,
	})
	c, _ = s.GetConversationByWaID("5511888888888")
	if c.Name.String != "Bruno" {
		t.Errorf("rendered placeholder should be replaced, got %q", c.Name.String)
	}

	// And the generic placeholder for non-numeric identifiers.
	upsert(t, s, ConversationUpsert{
		WaID: "abc@lid", Name: "Unknown contact", Kind: "contact",
		LastMessageAt: now, PreserveExistingName: true,
	})
	upsert(t, s, ConversationUpsert{
		WaID: "abc@lid", Name: "Carla", Kind: "contact",
		LastMessageAt: now, PreserveExistingName: true,
	})
	c, _ = s.GetConversationByWaID("abc@lid")
	if c.Name.String != "Carla" {
		t.Errorf("generic placeholder should be replaced, got %q", c.Name.String)
	}

	// A stored human name survives a placeholder upsert.
	upsert(t, s, ConversationUpsert{
		WaID: "777", Name: "", Kind: "contact",
		LastMessageAt: now, PreserveExistingName: true,
	})
	c, _ = s.GetConversationByWaID("777")
	if c.Name.String != "Gabriela" {
		t.Errorf("human name should survive empty upsert, got %q", c.Name.String)
	}

	// Without the policy flag the name is overwritten unconditionally.
	upsert(t, s, ConversationUpsert{
		WaID: "777", Name: "Renamed", Kind: "contact",
		LastMessageAt: now, PreserveExistingName: false,
	})
	c, _ = s.GetConversationByWaID("777")
	if c.Name.String != "Renamed" {
		t.Errorf("unconditional update failed, got %q", c.Name.String)
	}
}

func TestAvatarKeptWhenNewIsEmpty(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	upsert(t, s, ConversationUpsert{
		WaID: "888", Kind: "contact", AvatarURL: "https://pics/a.jpg", LastMessageAt: now,
	})
	upsert(t, s, ConversationUpsert{
		WaID: "888", Kind: "contact", AvatarURL: "", LastMessageAt: now,
	})
	c, _ := s.GetConversationByWaID("888")
	if c.AvatarURL.String != "https://pics/a.jpg" {
		t.Errorf("avatar should be kept, got %q", c.AvatarURL.String)
	}
}

func TestAppendMessageAndOrdering(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2023, 11, 14, 0, 0, 0, 0, time.UTC)

	id := upsert(t, s, ConversationUpsert{WaID: "999", Kind: "contact", LastMessageAt: base})

	// Insert out of order; listing must come back in sent_at order.
	err := s.WithTx(func(tx *sql.Tx) error {
		for _, m := range []MessageRecord{
			{MessageBody: "second", SentAt: base.Add(2 * time.Hour)},
			{MessageBody: "first", SentAt: base.Add(time.Hour)},
			{MessageBody: "third", SentAt: base.Add(2 * time.Hour)}, // tie on sent_at
		} {
			if err := s.AppendMessage(tx, id, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	msgs, total, err := s.ListMessages(id, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(msgs) != 3 {
		t.Fatalf("got %d/%d messages, want 3", len(msgs), total)
	}
	if msgs[0].MessageBody != "first" || msgs[1].MessageBody != "second" || msgs[2].MessageBody != "third" {
		t.Errorf("order = %q %q %q", msgs[0].MessageBody, msgs[1].MessageBody, msgs[2].MessageBody)
	}

	c, _ := s.GetConversationByWaID("999")
	if !c.LastMessageAt.Time.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("last_message_at not refreshed by append: %v", c.LastMessageAt.Time)
	}
}

func TestDuplicateProviderIDsNotDeduplicated(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	id := upsert(t, s, ConversationUpsert{WaID: "dup", Kind: "contact", LastMessageAt: now})

	rec := MessageRecord{WaMessageID: "m1", MessageBody: "hi", SentAt: now}
	err := s.WithTx(func(tx *sql.Tx) error {
		if err := s.AppendMessage(tx, id, rec); err != nil {
			return err
		}
		return s.AppendMessage(tx, id, rec)
	})
	if err != nil {
		t.Fatal(err)
	}

	_, total, err := s.ListMessages(id, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 {
		t.Errorf("replayed provider id should produce two rows, got %d", total)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	err := s.WithTx(func(tx *sql.Tx) error {
		if _, err := s.UpsertConversation(tx, ConversationUpsert{WaID: "rollback", Kind: "contact", LastMessageAt: now}); err != nil {
			return err
		}
		return sql.ErrConnDone // any error aborts the whole request
	})
	if err == nil {
		t.Fatal("expected error")
	}

	c, err := s.GetConversationByWaID("rollback")
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Error("rolled-back conversation should not exist")
	}
}

func TestGetStats(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	id := upsert(t, s, ConversationUpsert{WaID: "stats", Kind: "contact", LastMessageAt: now})
	_ = s.WithTx(func(tx *sql.Tx) error {
		return s.AppendMessage(tx, id, MessageRecord{MessageBody: "x", SentAt: now, MediaPath: "2023/11/stats/a-0001.jpg", MediaMimeType: "image/jpeg", MediaSize: 3})
	})

	stats, err := s.GetStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.ConversationCount != 1 || stats.MessageCount != 1 || stats.MediaCount != 1 {
		t.Errorf("stats = %+v", stats)
	}
}
