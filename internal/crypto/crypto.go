// Package crypto implements the Blowfish-ECB codec used to protect
// Pandora request bodies and selected response fields.
package crypto

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blowfish"
)

// Error reports a failed encrypt or decrypt operation.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("crypto %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Codec holds two independently keyed Blowfish ciphers: one for outbound
// request bodies, one for inbound fields such as the sync time.
type Codec struct {
	enc *blowfish.Cipher
	dec *blowfish.Cipher
}

// NewCodec builds a codec from the partner's encrypt and decrypt keys.
func NewCodec(encryptKey, decryptKey string) (*Codec, error) {
	enc, err := blowfish.NewCipher([]byte(encryptKey))
	if err != nil {
		return nil, &Error{Op: "init", Err: err}
	}
	dec, err := blowfish.NewCipher([]byte(decryptKey))
	if err != nil {
		return nil, &Error{Op: "init", Err: err}
	}
	return &Codec{enc: enc, dec: dec}, nil
}

// Encrypt zero-pads plaintext to the Blowfish block boundary, encrypts it
// in ECB mode and returns the ciphertext hex-encoded.
func (c *Codec) Encrypt(plaintext string) string {
	data := []byte(plaintext)
	if rem := len(data) % blowfish.BlockSize; rem != 0 {
		data = append(data, make([]byte, blowfish.BlockSize-rem)...)
	}

	out := make([]byte, len(data))
	for i := 0; i < len(data); i += blowfish.BlockSize {
		c.enc.Encrypt(out[i:i+blowfish.BlockSize], data[i:i+blowfish.BlockSize])
	}
	return hex.EncodeToString(out)
}

// Decrypt decodes a hex ciphertext, decrypts it in ECB mode and strips
// the trailing zero padding.
func (c *Codec) Decrypt(hexInput string) (string, error) {
	data, err := hex.DecodeString(hexInput)
	if err != nil {
		return "", &Error{Op: "decrypt", Err: fmt.Errorf("invalid hex input: %w", err)}
	}
	if len(data) == 0 || len(data)%blowfish.BlockSize != 0 {
		return "", &Error{Op: "decrypt", Err: fmt.Errorf("ciphertext length %d is not a positive multiple of %d", len(data), blowfish.BlockSize)}
	}

	out := make([]byte, len(data))
	for i := 0; i < len(data); i += blowfish.BlockSize {
		c.dec.Decrypt(out[i:i+blowfish.BlockSize], data[i:i+blowfish.BlockSize])
	}

	end := len(out)
	for end > 0 && out[end-1] == 0 {
		end--
	}
	return string(out[:end]), nil
}
