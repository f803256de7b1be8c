package payload

import "strings"

// Message is the normalized form of one raw provider message.
type Message struct {
	ProviderID  string // provider message id, may be empty
	Kind        string // text, image, audio, sticker, document, ...
	Body        string // never empty; synthetic placeholder when absent
	SenderPhone string
	SenderName  string
	FromMe      bool
	Attachment  *Attachment // nil when no recognized media container
}

// senderUnknown labels messages whose sender could not be identified.
const senderUnknown = "Unknown"

// bodyPaths is the textual-body extractor chain, tried in order.
var bodyPaths = []string{
	"text.body",
	"conversation",
	"extendedTextMessage.text",
	"reactionMessage.text",
	"message",
	"body",
	"caption",
	"interactive.body.text",
}

// Normalize extracts kind, sender identity, body text, direction and media
// reference from a merged raw message. cdnBase resolves relative media paths.
func Normalize(raw Raw, cdnBase string) Message {
	msg := raw.Message

	kind := msg.First("type", "messageType")
	if kind == "" {
		kind = "text"
	}

	att := ExtractAttachment(msg, cdnBase)

	senderPhone := msg.First("from", "author", "chatId", "sender.id")
	senderName := resolveSenderName(msg, raw.Contacts, senderPhone)

	fromMe := resolveDirection(msg)

	body := extractBody(msg)
	if body == "" {
		if mc := msg.Map("msgContent"); mc != nil {
			body = extractBody(mc)
		}
	}
	if body == "" && att != nil && att.Caption != "" {
		body = att.Caption
	}
	if body == "" {
		body = attachmentLabel(kind, msg)
		if msg.Str("messageStubType") == "CIPHERTEXT" {
			if params := msg.List("messageStubParameters"); len(params) > 0 {
				if p := strings.TrimSpace(scalarString(params[0])); p != "" {
					body += "\n" + p
				}
			}
		}
	}

	return Message{
		ProviderID:  msg.First("id", "wa_message_id"),
		Kind:        kind,
		Body:        strings.TrimSpace(body),
		SenderPhone: senderPhone,
		SenderName:  senderName,
		FromMe:      fromMe,
		Attachment:  att,
	}
}

// extractBody tries the textual-body candidate chain against one tree.
func extractBody(t Tree) string {
	for _, p := range bodyPaths {
		v := t.Get(p)
		// Skip non-scalar hits: "message" is also used as an indirection
		// object by some shapes, and only string content counts as a body.
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// resolveSenderName tries message-level name fields, sender sub-object
// fields, then the contact list, before giving up with a fixed placeholder.
func resolveSenderName(msg Tree, contacts map[string]Tree, senderPhone string) string {
	if name := msg.First("sender_name", "senderName", "sender.pushName", "pushName", "name"); name != "" {
		return name
	}
	if senderPhone != "" {
		if contact, ok := contacts[senderPhone]; ok {
			if name := contact.First("profile.name", "name"); name != "" {
				return name
			}
		}
	}
	return senderUnknown
}

// resolveDirection determines inbound vs. outbound: an explicit flag wins,
// then a "sent" status, defaulting to inbound.
func resolveDirection(msg Tree) bool {
	for _, key := range []string{"from_me", "fromMe"} {
		if v, ok := truthy(msg.Get(key)); ok {
			return v
		}
	}
	return msg.Str("status") == "sent"
}

// attachmentLabel builds the synthetic [TYPE] body used when a message has no
// textual content, suffixed with the media caption when one exists.
func attachmentLabel(kind string, msg Tree) string {
	if kind == "text" {
		return "[no content]"
	}
	parts := []string{strings.ToUpper(kind)}
	if caption := msg.Str("media.caption"); caption != "" {
		parts = append(parts, caption)
	}
	return "[" + strings.Join(parts, " · ") + "]"
}
