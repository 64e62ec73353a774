package ratetoken

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"
)

const (
	nonceSize = 12
	tagSize   = 16
)

// keyring derives the AES-256 key from the configured secret the first time it is needed.
type keyring struct {
	secret string
	once   sync.Once
	aead   cipher.AEAD
	err    error
}

func (k *keyring) get() (cipher.AEAD, error) {
	k.once.Do(func() {
		if k.secret == "" {
			k.err = errors.New("rate token secret is empty")
			return
		}
		sum := sha256.Sum256([]byte(k.secret))
		block, err := aes.NewCipher(sum[:])
		if err != nil {
			k.err = fmt.Errorf("create cipher: %w", err)
			return
		}
		k.aead, k.err = cipher.NewGCMWithNonceSize(block, nonceSize)
	})
	return k.aead, k.err
}

// seal returns nonce || tag || ciphertext.
func seal(aead cipher.AEAD, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	sealed := aead.Seal(nil, nonce, plaintext, nil) // ciphertext || tag
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	out := make([]byte, 0, nonceSize+len(sealed))
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, ct...)
	return out, nil
}

// open reverses seal. The tag is verified before any plaintext is returned.
func open(aead cipher.AEAD, raw []byte) ([]byte, error) {
	if len(raw) < nonceSize+tagSize {
		return nil, ErrInvalidToken
	}
	nonce := raw[:nonceSize]
	tag := raw[nonceSize : nonceSize+tagSize]
	ct := raw[nonceSize+tagSize:]

	sealed := make([]byte, 0, len(ct)+tagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return plain, nil
}
