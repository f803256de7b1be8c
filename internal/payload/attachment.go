package payload

import (
	"encoding/base64"
	"strings"
)

// Attachment is the transient descriptor for an encrypted media reference:
// where to fetch it, what it claims to be, and the key material needed to
// decrypt it. It is consumed once by the media pipeline and discarded; only
// derived metadata is persisted.
type Attachment struct {
	Kind     string // image, audio, sticker, document
	URL      string // absolute download URL (possibly CDN-joined)
	MimeType string
	Caption  string
	Size     int64
	Duration int // seconds
	Filename string

	MediaKey      []byte // decoded symmetric media key
	FileSHA256    string // provider-supplied plaintext hash, kept verbatim
	FileEncSHA256 string // provider-supplied ciphertext hash, kept verbatim
}

// attachmentKinds are the recognized container keys. Video containers are not
// enumerated and fall through as undetected.
var attachmentKinds = []string{"image", "audio", "sticker", "document"}

// ExtractAttachment searches a raw message for a recognized media container,
// either at the top level or behind one level of message/msgContent
// indirection, and builds a normalized descriptor. Relative directPath
// references are joined with cdnBase; without a usable URL the descriptor
// still carries metadata (caption etc.) but cannot be downloaded.
func ExtractAttachment(msg Tree, cdnBase string) *Attachment {
	return findAttachment(msg, cdnBase, 0)
}

func findAttachment(node Tree, cdnBase string, depth int) *Attachment {
	for _, kind := range attachmentKinds {
		if container := node.Map(kind); container != nil {
			return buildAttachment(kind, container, cdnBase)
		}
	}
	if depth >= 2 {
		return nil
	}
	for _, indirect := range []string{"message", "msgContent"} {
		if inner := node.Map(indirect); inner != nil {
			if att := findAttachment(inner, cdnBase, depth+1); att != nil {
				return att
			}
		}
	}
	return nil
}

func buildAttachment(kind string, c Tree, cdnBase string) *Attachment {
	att := &Attachment{
		Kind:          kind,
		URL:           resolveMediaURL(c, cdnBase),
		MimeType:      c.First("mimetype", "mime_type", "mimeType"),
		Caption:       c.First("caption", "title"),
		Size:          firstInt(c, "fileLength", "file_length", "size"),
		Duration:      int(firstInt(c, "seconds", "duration")),
		Filename:      c.First("fileName", "filename", "file_name"),
		FileSHA256:    c.First("fileSha256", "file_sha256"),
		FileEncSHA256: c.First("fileEncSha256", "file_enc_sha256"),
	}
	if att.MimeType == "" {
		att.MimeType = "application/octet-stream"
	}
	if key := c.First("mediaKey", "media_key"); key != "" {
		att.MediaKey = decodeMediaKey(key)
	}
	return att
}

// resolveMediaURL prefers an absolute http(s) URL and otherwise joins the
// configured CDN base with the relative directPath. No base, no URL.
func resolveMediaURL(c Tree, cdnBase string) string {
	if u := c.Str("url"); strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	dp := c.First("directPath", "direct_path")
	if dp == "" || cdnBase == "" {
		return ""
	}
	return strings.TrimRight(cdnBase, "/") + "/" + strings.TrimLeft(dp, "/")
}

// decodeMediaKey decodes a base64 media key, tolerating both standard and
// URL-safe alphabets and missing padding.
func decodeMediaKey(s string) []byte {
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(s); err == nil {
			return b
		}
	}
	return nil
}

func firstInt(t Tree, paths ...string) int64 {
	for _, p := range paths {
		if n := t.Int(p); n != 0 {
			return n
		}
	}
	return 0
}
