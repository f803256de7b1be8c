package payload

import (
	"regexp"
	"strings"
)

// ConversationKind distinguishes multi-party groups from one-to-one chats.
type ConversationKind string

const (
	KindGroup   ConversationKind = "group"
	KindContact ConversationKind = "contact"
)

// conversationIDPaths is the identifier candidate chain, most specific first.
var conversationIDPaths = []string{
	"group_id",
	"groupId",
	"chat_id",
	"chatId",
	"chat.id",
	"chat.jid",
	"from",
	"author",
}

// ResolveConversationID determines the stable conversation identifier for a
// raw message, searching message-level candidates first, then context-level
// ones, finally the metadata phone-number id. Returns "" when nothing at all
// identifies the conversation; such messages are skipped.
func ResolveConversationID(raw Raw) string {
	if id := raw.Message.First(conversationIDPaths...); id != "" {
		return id
	}
	if id := raw.Value.First("chat.id", "chatId"); id != "" {
		return id
	}
	return raw.Metadata.Str("phone_number_id")
}

// ResolveKind classifies an identifier as group or direct contact.
// Group and broadcast JIDs carry a recognizable suffix.
func ResolveKind(conversationID string) ConversationKind {
	if strings.HasSuffix(conversationID, "@g.us") || strings.HasSuffix(conversationID, "@broadcast") {
		return KindGroup
	}
	return KindContact
}

// chatNamePaths are tried on the message first, then on the shared context.
var chatNamePaths = []string{
	"group_name",
	"groupName",
	"chat_name",
	"chatName",
	"chat.name",
	"chat.subject",
	"name",
}

// ResolveDisplayName determines the best-effort display name for the
// conversation. Contact-list and push names only apply to direct chats so a
// group is never renamed after one of its members, and push names only apply
// to inbound traffic so our own outbound pushName never labels the peer.
func ResolveDisplayName(raw Raw, conversationID string, kind ConversationKind, inbound bool) string {
	if name := raw.Message.First(chatNamePaths...); name != "" {
		return name
	}
	if name := raw.Value.First(chatNamePaths...); name != "" {
		return name
	}

	if kind != KindGroup {
		if contact, ok := raw.Contacts[conversationID]; ok {
			if name := contact.First("profile.name", "name"); name != "" {
				return name
			}
		}
		if inbound {
			if name := raw.Message.First("pushName", "sender.pushName"); name != "" {
				return name
			}
		}
	}

	return FormatIdentifier(conversationID)
}

// ResolveAvatar determines the best-effort avatar URL for the conversation.
func ResolveAvatar(raw Raw, conversationID string, kind ConversationKind) string {
	chatAvatarPaths := []string{"chat.profilePicture", "chat.picture", "chat.imgUrl"}

	if u := raw.Message.First(chatAvatarPaths...); u != "" {
		return u
	}
	if u := raw.Value.First(chatAvatarPaths...); u != "" {
		return u
	}
	if contact, ok := raw.Contacts[conversationID]; ok {
		if u := contact.First("profile_pic_url", "profile.picture"); u != "" {
			return u
		}
	}
	if kind != KindGroup {
		if u := raw.Message.First("sender.profilePicture", "sender.imgUrl", "sender.avatar"); u != "" {
			return u
		}
	}
	return ""
}

var digitsOnly = regexp.MustCompile(`^\d+$`)

// UnknownName is the display name for identifiers that do not look like
// phone numbers.
const UnknownName = "Unknown contact"

// FormatIdentifier renders a raw conversation identifier for display: the
// protocol suffix is stripped and bare numbers become +<digits>; identifiers
// that do not look like phone numbers get a generic placeholder.
func FormatIdentifier(id string) string {
	bare := id
	if i := strings.IndexByte(bare, '@'); i >= 0 {
		bare = bare[:i]
	}
	bare = strings.TrimSpace(bare)
	if digitsOnly.MatchString(bare) {
		return "+" + bare
	}
	return UnknownName
}

// IsPlaceholderName reports whether name is a synthesized fallback for id
// rather than a learned display name. Placeholders are replaceable: a later
// webhook carrying a contact or push name may overwrite them.
func IsPlaceholderName(name, id string) bool {
	return name == "" || name == id || name == UnknownName || name == FormatIdentifier(id)
}
