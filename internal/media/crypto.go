// Package media downloads, decrypts and stores end-to-end-encrypted
// attachments referenced by webhook messages.
package media

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/hkdf"
)

const (
	// expandedKeyLen is the HKDF output: 16-byte IV, 32-byte cipher key,
	// 32-byte MAC key, 32 reserved bytes.
	expandedKeyLen = 112
	ivLen          = 16
	cipherKeyLen   = 32
	macKeyLen      = 32

	// macTrailerLen is the truncated HMAC appended to the ciphertext.
	macTrailerLen = 10
)

// kdfInfo maps an attachment kind to its HKDF info label. Stickers share the
// image label; unrecognized kinds fall back to a generic one.
var kdfInfo = map[string]string{
	"image":    "WhatsApp Image Keys",
	"sticker":  "WhatsApp Image Keys",
	"audio":    "WhatsApp Audio Keys",
	"video":    "WhatsApp Video Keys",
	"document": "WhatsApp Document Keys",
}

const kdfInfoDefault = "WhatsApp Media Keys"

type mediaKeys struct {
	iv        []byte
	cipherKey []byte
	macKey    []byte
}

// expandMediaKey derives the IV, cipher key and MAC key from the attachment's
// symmetric media key using HKDF-SHA256 with a nil (zero-filled) salt and a
// kind-specific info label.
func expandMediaKey(mediaKey []byte, kind string) (mediaKeys, error) {
	info, ok := kdfInfo[kind]
	if !ok {
		info = kdfInfoDefault
	}

	expanded := make([]byte, expandedKeyLen)
	r := hkdf.New(sha256.New, mediaKey, nil, []byte(info))
	if _, err := r.Read(expanded); err != nil {
		return mediaKeys{}, fmt.Errorf("expand media key: %w", err)
	}

	return mediaKeys{
		iv:        expanded[:ivLen],
		cipherKey: expanded[ivLen : ivLen+cipherKeyLen],
		macKey:    expanded[ivLen+cipherKeyLen : ivLen+cipherKeyLen+macKeyLen],
	}, nil
}

// Decrypt verifies and decrypts a downloaded attachment blob. The format is
// ciphertext || MAC trailer, where the trailer is the first 10 bytes of
// HMAC-SHA256(macKey, ciphertext || IV). A trailer mismatch, misaligned
// ciphertext or broken padding all reject the attachment.
func Decrypt(blob, mediaKey []byte, kind string) ([]byte, error) {
	if len(blob) < macTrailerLen+aes.BlockSize {
		return nil, fmt.Errorf("media: blob too short (%d bytes)", len(blob))
	}

	keys, err := expandMediaKey(mediaKey, kind)
	if err != nil {
		return nil, err
	}

	ct := blob[:len(blob)-macTrailerLen]
	trailer := blob[len(blob)-macTrailerLen:]

	mac := hmac.New(sha256.New, keys.macKey)
	mac.Write(ct)
	mac.Write(keys.iv)
	if !hmac.Equal(mac.Sum(nil)[:macTrailerLen], trailer) {
		return nil, fmt.Errorf("media: MAC verification failed")
	}

	if len(ct)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("media: ciphertext not block-aligned")
	}

	block, err := aes.NewCipher(keys.cipherKey)
	if err != nil {
		return nil, fmt.Errorf("media: create cipher: %w", err)
	}
	plaintext := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, keys.iv).CryptBlocks(plaintext, ct)

	return pkcs7Unpad(plaintext, aes.BlockSize)
}

// pkcs7Unpad strips PKCS7 padding, validating every padding byte.
func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("media: empty plaintext")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, fmt.Errorf("media: invalid PKCS7 padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("media: invalid PKCS7 padding bytes")
		}
	}
	return data[:len(data)-padLen], nil
}
