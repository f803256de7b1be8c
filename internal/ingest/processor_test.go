package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wavault/wavault/internal/media"
	"github.com/wavault/wavault/internal/payload"
	"github.com/wavault/wavault/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "wavault.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.InitSchema(); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	return s
}

type fakeMedia struct {
	res   *media.Result
	err   error
	calls int
}

func (f *fakeMedia) Process(_ context.Context, _ *payload.Attachment, _ string, _ time.Time, _ string) (*media.Result, error) {
	f.calls++
	return f.res, f.err
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const textEnvelope = `{
  "entry": [{
    "changes": [{
      "value": {
        "messaging_product": "whatsapp",
        "metadata": {"display_phone_number": "5511888888888", "phone_number_id": "1031"},
        "contacts": [{"wa_id": "5511999999999", "profile": {"name": "Ana"}}],
        "messages": [{
          "id": "wamid.m1",
          "from": "5511999999999",
          "timestamp": "1700000000",
          "type": "text",
          "text": {"body": "hi"}
        }]
      }
    }]
  }]
}`

func TestProcessTextMessage(t *testing.T) {
	s := newTestStore(t)
	p := New(s, nil, "", discard())

	n, err := p.Process(context.Background(), []byte(textEnvelope))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if n != 1 {
		t.Fatalf("stored = %d, want 1", n)
	}

	conv, err := s.GetConversationByWaID("5511999999999")
	if err != nil {
		t.Fatalf("GetConversationByWaID: %v", err)
	}
	if conv == nil {
		t.Fatal("conversation not created")
	}
	if conv.Name.String != "Ana" {
		t.Errorf("name = %q, want Ana", conv.Name.String)
	}
	if conv.Kind != "contact" {
		t.Errorf("kind = %q, want contact", conv.Kind)
	}
	if !conv.LastMessageAt.Valid || !conv.LastMessageAt.Time.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("last_message_at = %v, want 2023-11-14T22:13:20Z", conv.LastMessageAt)
	}

	msgs, total, err := s.ListMessages(conv.ID, 0, 10)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if total != 1 || len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", total)
	}
	m := msgs[0]
	if m.MessageBody != "hi" {
		t.Errorf("body = %q, want hi", m.MessageBody)
	}
	if m.IsFromMe {
		t.Error("message should be inbound")
	}
	if m.SenderPhone.String != "5511999999999" {
		t.Errorf("sender phone = %q", m.SenderPhone.String)
	}
	if m.WaMessageID.String != "wamid.m1" {
		t.Errorf("wa_message_id = %q", m.WaMessageID.String)
	}
	if !strings.Contains(m.RawPayload.String, `"wamid.m1"`) {
		t.Error("raw payload not preserved")
	}
}

func TestNameLearnedAfterAnonymousContact(t *testing.T) {
	s := newTestStore(t)
	p := New(s, nil, "", discard())

	// First contact carries no name anywhere; the conversation gets the
	// rendered phone-number placeholder.
	anonymous := `{
	  "entry": [{
	    "changes": [{
	      "value": {
	        "messaging_product": "whatsapp",
	        "metadata": {"display_phone_number": "5511888888888", "phone_number_id": "1031"},
	        "messages": [{
	          "id": "wamid.m0",
	          "from": "5511999999999",
	          "timestamp": "1699999000",
	          "type": "text",
	          "text": {"body": "first"}
	        }]
	      }
	    }]
	  }]
	}`
	if _, err := p.Process(context.Background(), []byte(anonymous)); err != nil {
		t.Fatalf("Process anonymous: %v", err)
	}
	conv, err := s.GetConversationByWaID("5511999999999")
	if err != nil {
		t.Fatal(err)
	}
	if conv == nil {
		t.Fatal("conversation not created")
	}
	if conv.Name.String != "+5511999999999" {
		t.Fatalf("name = %q, want +5511999999999 placeholder", conv.Name.String)
	}

	// A later webhook with a contact profile name replaces the placeholder.
	if _, err := p.Process(context.Background(), []byte(textEnvelope)); err != nil {
		t.Fatalf("Process named: %v", err)
	}
	conv, err = s.GetConversationByWaID("5511999999999")
	if err != nil {
		t.Fatal(err)
	}
	if conv.Name.String != "Ana" {
		t.Errorf("name = %q, want learned Ana", conv.Name.String)
	}

	// And once learned, a nameless webhook does not regress it.
	if _, err := p.Process(context.Background(), []byte(anonymous)); err != nil {
		t.Fatalf("Process anonymous again: %v", err)
	}
	conv, _ = s.GetConversationByWaID("5511999999999")
	if conv.Name.String != "Ana" {
		t.Errorf("name = %q, learned name must survive", conv.Name.String)
	}
}

func TestProcessInvalidBody(t *testing.T) {
	s := newTestStore(t)
	p := New(s, nil, "", discard())

	for _, body := range []string{"not json", "[1,2,3]", `"scalar"`} {
		if _, err := p.Process(context.Background(), []byte(body)); !errors.Is(err, ErrInvalidPayload) {
			t.Errorf("Process(%q) = %v, want ErrInvalidPayload", body, err)
		}
	}
}

func TestProcessEmptyEnvelope(t *testing.T) {
	s := newTestStore(t)
	p := New(s, nil, "", discard())

	n, err := p.Process(context.Background(), []byte(`{"entry":[{"changes":[{"value":{"statuses":[{"id":"x"}]}}]}]}`))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if n != 0 {
		t.Errorf("stored = %d, want 0", n)
	}
}

const imageEnvelope = `{
  "entry": [{
    "changes": [{
      "value": {
        "messages": [{
          "id": "wamid.img1",
          "from": "5511999999999",
          "timestamp": 1700000100,
          "type": "image",
          "image": {
            "url": "https://cdn.example.org/blob",
            "mimetype": "image/jpeg",
            "caption": "sunset",
            "mediaKey": "YW4gZXhhbXBsZSAzMiBieXRlIG1lZGlhIGtleS4uLi4="
          }
        }]
      }
    }]
  }]
}`

func TestProcessMediaFailureKeepsMessage(t *testing.T) {
	s := newTestStore(t)
	fm := &fakeMedia{err: errors.New("download refused")}
	p := New(s, fm, "", discard())

	n, err := p.Process(context.Background(), []byte(imageEnvelope))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if n != 1 {
		t.Fatalf("stored = %d, want 1", n)
	}
	if fm.calls != 1 {
		t.Fatalf("media pipeline called %d times, want 1", fm.calls)
	}

	conv, _ := s.GetConversationByWaID("5511999999999")
	msgs, _, err := s.ListMessages(conv.ID, 0, 10)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	m := msgs[0]
	if m.MediaPath.Valid {
		t.Errorf("media_path = %q, want NULL after failed download", m.MediaPath.String)
	}
	if m.MediaMimeType.String != "image/jpeg" {
		t.Errorf("mime = %q, attachment metadata should survive", m.MediaMimeType.String)
	}
	if m.MessageBody != "sunset" {
		t.Errorf("body = %q, want caption fallback", m.MessageBody)
	}
}

func TestProcessMediaSuccess(t *testing.T) {
	s := newTestStore(t)
	fm := &fakeMedia{res: &media.Result{
		Path:     "2023/11/5511999999999/20231114_221500-0001.jpg",
		MimeType: "image/jpeg",
		Size:     1234,
		Caption:  "sunset",
	}}
	p := New(s, fm, "", discard())

	if _, err := p.Process(context.Background(), []byte(imageEnvelope)); err != nil {
		t.Fatalf("Process: %v", err)
	}

	conv, _ := s.GetConversationByWaID("5511999999999")
	msgs, _, err := s.ListMessages(conv.ID, 0, 10)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	m := msgs[0]
	if m.MediaPath.String != fm.res.Path {
		t.Errorf("media_path = %q, want %q", m.MediaPath.String, fm.res.Path)
	}
	if m.MediaSize.Int64 != 1234 {
		t.Errorf("media_size = %d, want 1234", m.MediaSize.Int64)
	}
	if m.MediaCaption.String != "sunset" {
		t.Errorf("media_caption = %q", m.MediaCaption.String)
	}
}

func TestProcessReplayDuplicates(t *testing.T) {
	s := newTestStore(t)
	p := New(s, nil, "", discard())

	for i := 0; i < 2; i++ {
		if _, err := p.Process(context.Background(), []byte(textEnvelope)); err != nil {
			t.Fatalf("Process #%d: %v", i+1, err)
		}
	}

	conv, _ := s.GetConversationByWaID("5511999999999")
	_, total, err := s.ListMessages(conv.ID, 0, 10)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if total != 2 {
		t.Errorf("got %d rows, want 2 (replays are not deduplicated)", total)
	}
}
