package payload

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func decode(t *testing.T, body string) Tree {
	t.Helper()
	var tree map[string]any
	if err := json.Unmarshal([]byte(body), &tree); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return Tree(tree)
}

// The same underlying message arriving in the three known envelope shapes
// must flatten to the same canonical content.
func TestFlattenEquivalentShapes(t *testing.T) {
	nested := decode(t, `{
		"entry": [{"changes": [{"value": {
			"messages": [{"id": "m1", "from": "5511999999999", "timestamp": 1700000000, "text": {"body": "hi"}}]
		}}]}]
	}`)
	msgContent := decode(t, `{
		"messageId": "m1",
		"moment": 1700000000,
		"sender": {"id": "5511999999999"},
		"msgContent": {"text": {"body": "hi"}}
	}`)
	flat := decode(t, `{
		"event": "message",
		"id": "m1",
		"from": "5511999999999",
		"timestamp": 1700000000,
		"text": {"body": "hi"}
	}`)

	type canonical struct {
		ID, From, Body string
		Timestamp      int64
	}
	extract := func(raws []Raw) []canonical {
		var out []canonical
		for _, r := range raws {
			out = append(out, canonical{
				ID:        r.Message.First("id", "wa_message_id"),
				From:      r.Message.First("from", "sender.id"),
				Body:      r.Message.Str("text.body"),
				Timestamp: r.Message.Int("timestamp"),
			})
		}
		return out
	}

	want := []canonical{{ID: "m1", From: "5511999999999", Body: "hi", Timestamp: 1700000000}}
	for name, tree := range map[string]Tree{"nested": nested, "msgContent": msgContent, "flat": flat} {
		raws := Flatten(tree)
		if len(raws) != 1 {
			t.Fatalf("%s: got %d messages, want 1", name, len(raws))
		}
		if diff := cmp.Diff(want, extract(raws)); diff != "" {
			t.Errorf("%s: canonical mismatch (-want +got):\n%s", name, diff)
		}
	}
}

func TestFlattenMultipleEntriesAndMessages(t *testing.T) {
	tree := decode(t, `{
		"entry": [
			{"changes": [{"value": {"messages": [
				{"id": "a", "from": "1", "text": {"body": "one"}},
				{"id": "b", "from": "1", "text": {"body": "two"}}
			]}}]},
			{"changes": [{"value": {"messages": [
				{"id": "c", "from": "2", "text": {"body": "three"}}
			]}}]}
		]
	}`)

	raws := Flatten(tree)
	if len(raws) != 3 {
		t.Fatalf("got %d messages, want 3", len(raws))
	}
	var ids []string
	for _, r := range raws {
		ids = append(ids, r.Message.Str("id"))
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, ids); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestFlattenContextBackfillDoesNotOverwrite(t *testing.T) {
	tree := decode(t, `{
		"messageId": "context-id",
		"moment": 1600000000,
		"fromMe": true,
		"chat": {"id": "123@g.us", "name": "Ops"},
		"sender": {"id": "555", "pushName": "Ana"},
		"messages": [
			{"id": "own-id", "timestamp": 1700000000, "chat": {"name": "Override"}, "text": {"body": "x"}}
		]
	}`)

	raws := Flatten(tree)
	if len(raws) != 1 {
		t.Fatalf("got %d messages, want 1", len(raws))
	}
	msg := raws[0].Message

	if got := msg.Str("id"); got != "own-id" {
		t.Errorf("message id overwritten: %q", got)
	}
	if got := msg.Int("timestamp"); got != 1700000000 {
		t.Errorf("timestamp overwritten: %d", got)
	}
	// Missing fields are back-filled from the context.
	if got := msg.Str("wa_message_id"); got != "context-id" {
		t.Errorf("wa_message_id = %q, want context-id", got)
	}
	if v, _ := truthy(msg.Get("fromMe")); !v {
		t.Error("fromMe not back-filled from context")
	}
	if got := msg.Str("from"); got != "555" {
		t.Errorf("from = %q, want sender id 555", got)
	}
	if got := msg.Str("pushName"); got != "Ana" {
		t.Errorf("pushName = %q", got)
	}
	// Chat merges key-by-key with message-level keys winning.
	if got := msg.Str("chat.name"); got != "Override" {
		t.Errorf("chat.name = %q, want Override", got)
	}
	if got := msg.Str("chat.id"); got != "123@g.us" {
		t.Errorf("chat.id = %q, want 123@g.us", got)
	}
	if got := msg.Str("group_id"); got != "123@g.us" {
		t.Errorf("group_id = %q, want 123@g.us", got)
	}
}

func TestFlattenContactsAndChannel(t *testing.T) {
	tree := decode(t, `{
		"entry": [{"changes": [{"value": {
			"messaging_product": "whatsapp",
			"metadata": {"phone_number_id": "1555000111", "display_phone_number": "+1 555 000 111"},
			"contacts": [{"wa_id": "5511999999999", "profile": {"name": "Bruno"}}],
			"messages": [{"id": "m1", "from": "5511999999999", "text": {"body": "oi"}}]
		}}]}]
	}`)

	raws := Flatten(tree)
	if len(raws) != 1 {
		t.Fatalf("got %d messages, want 1", len(raws))
	}
	raw := raws[0]
	if raw.Channel != "1555000111" {
		t.Errorf("channel = %q, want 1555000111", raw.Channel)
	}
	contact, ok := raw.Contacts["5511999999999"]
	if !ok {
		t.Fatal("contact index missing wa_id entry")
	}
	if got := contact.Str("profile.name"); got != "Bruno" {
		t.Errorf("contact name = %q", got)
	}
}

func TestFlattenToleratesMissingEverything(t *testing.T) {
	if raws := Flatten(decode(t, `{}`)); len(raws) != 0 {
		t.Errorf("empty body should yield no messages, got %d", len(raws))
	}
	if raws := Flatten(decode(t, `{"entry": [{"changes": [{"value": {}}]}]}`)); len(raws) != 0 {
		t.Errorf("empty value should yield no messages, got %d", len(raws))
	}
}
