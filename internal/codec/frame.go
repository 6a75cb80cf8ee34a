package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

const (
	ivLen     = 16
	blockSize = aes.BlockSize // 16

	// minFrameSize is the TooShort threshold alone (IV plus one byte of
	// ciphertext); the separate modulo-blockSize check in Decode is what
	// classifies the 17-31 byte range as BadPadding instead.
	minFrameSize = ivLen + 1
)

// Key is a decoded 32-byte AES-256 key, produced once at startup from the
// base64 string in RouterConfig (spec.md §4.1/§6).
type Key [32]byte

// EncodeHello frames and encrypts a HELLO message: IV(16) || AES-256-CBC(key, IV, PKCS7(JSON)).
func EncodeHello(key Key, h *Hello) ([]byte, error) {
	payload, err := encodeHelloJSON(h)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal hello: %w", err)
	}
	return encrypt(key, payload)
}

// EncodeLSA frames and encrypts an LSA message the same way.
func EncodeLSA(key Key, l *LSA) ([]byte, error) {
	payload, err := encodeLSAJSON(l)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal lsa: %w", err)
	}
	return encrypt(key, payload)
}

// Decode validates framing, decrypts, unpads, and strictly parses the JSON
// payload, returning a typed *DecodeError (never a generic error) on any
// failure so callers can count by kind (spec.md §4.1).
func Decode(key Key, frame []byte) (*Message, error) {
	if len(frame) < minFrameSize {
		return nil, newDecodeErr(TooShort, nil)
	}
	iv := frame[:ivLen]
	ct := frame[ivLen:]
	if len(ct)%blockSize != 0 {
		return nil, newDecodeErr(BadPadding, fmt.Errorf("ciphertext length %d not a multiple of %d", len(ct), blockSize))
	}

	block, err := aes.NewCipher(key[:])
	if err != nil {
		// Only fails on bad key length, which Key's fixed size prevents.
		return nil, newDecodeErr(BadPadding, err)
	}
	pt := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(pt, ct)

	pt, err = pkcs7Unpad(pt)
	if err != nil {
		return nil, newDecodeErr(BadPadding, err)
	}

	return decodePayload(pt)
}

func encrypt(key Key, payload []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("codec: new cipher: %w", err)
	}

	iv := make([]byte, ivLen)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("codec: random iv: %w", err)
	}

	padded := pkcs7Pad(payload, blockSize)
	ct := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, padded)

	frame := make([]byte, 0, ivLen+len(ct))
	frame = append(frame, iv...)
	frame = append(frame, ct...)
	return frame, nil
}

func pkcs7Pad(data []byte, size int) []byte {
	pad := size - len(data)%size
	padded := make([]byte, len(data)+pad)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(pad)
	}
	return padded
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	n := len(data)
	if n == 0 {
		return nil, fmt.Errorf("empty plaintext")
	}
	pad := int(data[n-1])
	if pad == 0 || pad > blockSize || pad > n {
		return nil, fmt.Errorf("invalid padding byte %d", pad)
	}
	for _, b := range data[n-pad:] {
		if int(b) != pad {
			return nil, fmt.Errorf("inconsistent padding")
		}
	}
	return data[:n-pad], nil
}

// DecodeKey turns already base64-decoded key bytes into a Key, rejecting
// any input that is not exactly 32 bytes long.
func DecodeKey(raw []byte) (Key, error) {
	var k Key
	if len(raw) != len(k) {
		return k, fmt.Errorf("codec: key must decode to %d bytes, got %d", len(k), len(raw))
	}
	copy(k[:], raw)
	return k, nil
}
