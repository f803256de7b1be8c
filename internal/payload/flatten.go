package payload

import (
	"regexp"
	"strings"
)

// Raw is one provider message paired with the shared context it arrived in.
// The message tree has already been back-filled with the context-level fields
// it omitted, so downstream resolvers mostly look at Message alone.
type Raw struct {
	Message  Tree
	Value    Tree            // the change-level value object
	Metadata Tree            // value-level metadata (connected number etc.)
	Contacts map[string]Tree // contact list keyed by external id
	Channel  string          // connected account/number owning the event
	Product  string          // messaging product, default "whatsapp"
}

// Flatten walks a webhook envelope and yields a flat ordered sequence of raw
// messages with their shared context. Three envelope shapes are supported:
// a bare single-message event, entry[].changes[].value.messages[], and
// value.msgContent. Absent fields at any level are normal, not errors.
func Flatten(body Tree) []Raw {
	var out []Raw

	entries := body.List("entry")
	if entries == nil {
		entries = []any{body}
	}

	for _, e := range entries {
		entry, ok := asTree(e)
		if !ok {
			continue
		}

		changes := entry.List("changes")
		if changes == nil {
			changes = []any{entry}
		}

		for _, c := range changes {
			change, ok := asTree(c)
			if !ok {
				continue
			}

			value := change.Map("value")
			if value == nil {
				value = change
			}

			product := value.First("messaging_product", "product")
			if product == "" {
				product = "whatsapp"
			}
			metadata := value.Map("metadata")
			contacts := contactIndex(value)
			channel := resolveChannel(value, metadata, product)

			for _, m := range extractMessages(value) {
				out = append(out, Raw{
					Message:  m,
					Value:    value,
					Metadata: metadata,
					Contacts: contacts,
					Channel:  channel,
					Product:  product,
				})
			}
		}
	}

	return out
}

// extractMessages produces the message list for one value object, in priority
// order: an explicit messages list, a single nested msgContent object, or the
// value itself when it looks like a terminal single-message event.
func extractMessages(value Tree) []Tree {
	var msgs []Tree

	for _, m := range value.List("messages") {
		if msg, ok := asTree(m); ok {
			msgs = append(msgs, mergeContext(msg, value))
		}
	}
	if len(msgs) > 0 {
		return msgs
	}

	if mc := value.Map("msgContent"); mc != nil {
		return []Tree{mergeContext(mc, value)}
	}

	if value.Str("event") != "" {
		return []Tree{mergeContext(value, value)}
	}

	return nil
}

// mergeContext back-fills fields the message omits from the value-level
// equivalents, without overwriting fields already present on the message.
// Nested chat and sender objects are merged key-by-key with message-level
// keys taking precedence. The input trees are not mutated.
func mergeContext(msg, value Tree) Tree {
	merged := make(Tree, len(msg)+8)
	for k, v := range msg {
		merged[k] = v
	}

	fillFrom := func(dst, src string) {
		if _, ok := merged[dst]; !ok {
			if v := value.Get(src); v != nil {
				merged[dst] = v
			}
		}
	}

	fillFrom("id", "messageId")
	fillFrom("wa_message_id", "messageId")
	fillFrom("fromMe", "fromMe")
	fillFrom("from_me", "from_me")
	fillFrom("timestamp", "moment")

	if chat := value.Map("chat"); chat != nil {
		merged["chat"] = mergeObjects(chat, merged.Map("chat"))
	}
	fillFrom("chat_id", "chat.id")
	fillFrom("group_id", "chat.id")

	if sender := value.Map("sender"); sender != nil {
		merged["sender"] = mergeObjects(sender, merged.Map("sender"))
	}
	fillFrom("from", "sender.id")
	fillFrom("pushName", "sender.pushName")

	return merged
}

// mergeObjects overlays override on top of base, key by key.
func mergeObjects(base, override Tree) Tree {
	out := make(Tree, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// contactIndex builds a lookup map from the value-level contacts list,
// keyed by each contact's external id.
func contactIndex(value Tree) map[string]Tree {
	list := value.List("contacts")
	if len(list) == 0 {
		return nil
	}
	idx := make(map[string]Tree, len(list))
	for _, c := range list {
		contact, ok := asTree(c)
		if !ok {
			continue
		}
		if id := contact.Str("wa_id"); id != "" {
			idx[id] = contact
		}
	}
	return idx
}

var nonDigits = regexp.MustCompile(`\D+`)

// resolveChannel determines the connected account/number identifier owning
// this event, falling back to the messaging product name.
func resolveChannel(value, metadata Tree, fallback string) string {
	candidates := []string{
		value.Str("connectedPhone"),
		value.Str("connected_phone"),
		metadata.Str("phone_number_id"),
		metadata.Str("display_phone_number"),
	}
	for _, c := range candidates {
		if digits := nonDigits.ReplaceAllString(c, ""); digits != "" {
			return digits
		}
	}
	return strings.TrimSpace(fallback)
}
