package media

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Storage writes decrypted attachments into a directory tree partitioned by
// YEAR/MONTH/<sanitized-conversation-id>.
type Storage struct {
	root string
}

// NewStorage creates a Storage rooted at the given directory.
func NewStorage(root string) *Storage {
	return &Storage{root: root}
}

// Root returns the storage root directory.
func (s *Storage) Root() string {
	return s.root
}

var (
	unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)
	seqSuffix   = regexp.MustCompile(`-(\d{4})\.[^.]+$`)
	hexChars    = regexp.MustCompile(`[^0-9a-f]`)
)

// sanitizeConversationID makes a conversation identifier safe as a directory
// name. An identifier that sanitizes away entirely gets a fixed placeholder.
func sanitizeConversationID(id string) string {
	clean := unsafeChars.ReplaceAllString(id, "_")
	clean = strings.Trim(clean, "_")
	if clean == "" {
		return "unknown"
	}
	return clean
}

// mimeExtensions maps MIME types to file extensions. Unrecognized types fall
// back to "bin".
var mimeExtensions = map[string]string{
	"image/jpeg":      "jpg",
	"image/png":       "png",
	"image/gif":       "gif",
	"image/webp":      "webp",
	"audio/ogg":       "ogg",
	"audio/mpeg":      "mp3",
	"audio/mp4":       "m4a",
	"audio/aac":       "aac",
	"audio/amr":       "amr",
	"video/mp4":       "mp4",
	"video/3gpp":      "3gp",
	"application/pdf": "pdf",
	"text/plain":      "txt",
	"text/vcard":      "vcf",
}

// extensionForMIME derives a file extension from a MIME type, ignoring
// parameters such as "; codecs=opus".
func extensionForMIME(mimeType string) string {
	base := mimeType
	if i := strings.IndexByte(base, ';'); i >= 0 {
		base = base[:i]
	}
	base = strings.ToLower(strings.TrimSpace(base))
	if ext, ok := mimeExtensions[base]; ok {
		return ext
	}
	return "bin"
}

// nextSequence scans existing filenames in dir for the -NNNN.ext suffix and
// returns the maximum plus one. A fresh directory starts at 1.
func nextSequence(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 1
	}
	max := 0
	for _, e := range entries {
		m := seqSuffix.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		var n int
		fmt.Sscanf(m[1], "%d", &n)
		if n > max {
			max = n
		}
	}
	return max + 1
}

// hexPrefix extracts up to 6 hex characters from a provider message id for
// the filename. Non-hex ids yield "".
func hexPrefix(messageID string) string {
	h := hexChars.ReplaceAllString(strings.ToLower(messageID), "")
	if len(h) > 6 {
		h = h[:6]
	}
	return h
}

// Write stores plaintext under YEAR/MONTH/<sanitized-id>/ with the filename
// <compact sent time>[_<hex prefix of message id>]-<4-digit sequence>.<ext>.
// The sequence number is reserved atomically with O_EXCL so concurrent
// writers targeting the same directory cannot collide; on collision the next
// number is tried. Returns the path relative to the storage root and the
// byte size on disk.
func (s *Storage) Write(conversationID string, sentAt time.Time, messageID, mimeType string, plaintext []byte) (string, int64, error) {
	sentAt = sentAt.UTC()
	dir := filepath.Join(s.root,
		fmt.Sprintf("%04d", sentAt.Year()),
		fmt.Sprintf("%02d", sentAt.Month()),
		sanitizeConversationID(conversationID),
	)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", 0, fmt.Errorf("create media directory: %w", err)
	}

	base := sentAt.Format("20060102_150405")
	if h := hexPrefix(messageID); h != "" {
		base += "_" + h
	}
	ext := extensionForMIME(mimeType)

	for seq := nextSequence(dir); seq < 10000; seq++ {
		name := fmt.Sprintf("%s-%04d.%s", base, seq, ext)
		path := filepath.Join(dir, name)

		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0640)
		if os.IsExist(err) {
			continue // another writer took this sequence number
		}
		if err != nil {
			return "", 0, fmt.Errorf("create media file: %w", err)
		}

		if _, err := f.Write(plaintext); err != nil {
			f.Close()
			os.Remove(path)
			return "", 0, fmt.Errorf("write media file: %w", err)
		}
		if err := f.Close(); err != nil {
			os.Remove(path)
			return "", 0, fmt.Errorf("close media file: %w", err)
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			rel = name
		}
		return filepath.ToSlash(rel), int64(len(plaintext)), nil
	}

	return "", 0, fmt.Errorf("media directory %s: sequence space exhausted", dir)
}
