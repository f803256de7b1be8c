package media

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"testing"
)

// encryptBlob is the inverse of Decrypt: PKCS7-pad, AES-CBC encrypt with the
// derived IV and cipher key, and append the truncated HMAC trailer computed
// over ciphertext || IV.
func encryptBlob(t *testing.T, plaintext, mediaKey []byte, kind string) []byte {
	t.Helper()

	keys, err := expandMediaKey(mediaKey, kind)
	if err != nil {
		t.Fatalf("expand key: %v", err)
	}

	padLen := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := append(append([]byte{}, plaintext...), bytes.Repeat([]byte{byte(padLen)}, padLen)...)

	block, err := aes.NewCipher(keys.cipherKey)
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	ct := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, keys.iv).CryptBlocks(ct, padded)

	mac := hmac.New(sha256.New, keys.macKey)
	mac.Write(ct)
	mac.Write(keys.iv)

	return append(ct, mac.Sum(nil)[:macTrailerLen]...)
}

var testMediaKey = []byte("an example 32 byte media key....")

func TestDecryptRoundTrip(t *testing.T) {
	for _, kind := range []string{"image", "audio", "video", "document", "sticker", "unknown"} {
		plaintext := []byte("attachment payload for " + kind)
		blob := encryptBlob(t, plaintext, testMediaKey, kind)

		got, err := Decrypt(blob, testMediaKey, kind)
		if err != nil {
			t.Fatalf("%s: Decrypt: %v", kind, err)
		}
		if !bytes.Equal(got, plaintext) {
			t.Errorf("%s: got %q, want %q", kind, got, plaintext)
		}
	}
}

func TestDecryptKindSelectsLabel(t *testing.T) {
	plaintext := []byte("labeled payload")
	blob := encryptBlob(t, plaintext, testMediaKey, "image")

	// Sticker shares the image label, so the same blob decrypts.
	if _, err := Decrypt(blob, testMediaKey, "sticker"); err != nil {
		t.Errorf("sticker should share the image label: %v", err)
	}

	// A different label derives different keys and must fail the MAC.
	if _, err := Decrypt(blob, testMediaKey, "document"); err == nil {
		t.Error("document label should not verify an image blob")
	}
}

func TestDecryptRejectsTamperedMAC(t *testing.T) {
	plaintext := []byte("integrity matters")
	blob := encryptBlob(t, plaintext, testMediaKey, "image")

	// Flipping any bit of the MAC trailer rejects the attachment.
	tampered := append([]byte{}, blob...)
	tampered[len(tampered)-1] ^= 0x01
	if _, err := Decrypt(tampered, testMediaKey, "image"); err == nil {
		t.Error("flipped trailer bit must fail verification")
	}

	// Same for a flipped ciphertext bit.
	tampered = append([]byte{}, blob...)
	tampered[0] ^= 0x80
	if _, err := Decrypt(tampered, testMediaKey, "image"); err == nil {
		t.Error("flipped ciphertext bit must fail verification")
	}
}

func TestDecryptRejectsShortBlob(t *testing.T) {
	if _, err := Decrypt([]byte("tiny"), testMediaKey, "image"); err == nil {
		t.Error("short blob must be rejected")
	}
}

func TestExpandMediaKeySplit(t *testing.T) {
	keys, err := expandMediaKey(testMediaKey, "image")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys.iv) != 16 || len(keys.cipherKey) != 32 || len(keys.macKey) != 32 {
		t.Errorf("split lengths iv=%d cipher=%d mac=%d", len(keys.iv), len(keys.cipherKey), len(keys.macKey))
	}
	// Derivation is deterministic.
	again, _ := expandMediaKey(testMediaKey, "image")
	if !bytes.Equal(keys.cipherKey, again.cipherKey) {
		t.Error("derivation must be deterministic")
	}
	// And kind-dependent.
	other, _ := expandMediaKey(testMediaKey, "audio")
	if bytes.Equal(keys.cipherKey, other.cipherKey) {
		t.Error("different kinds must derive different keys")
	}
}
