// Package signer defines the contract with the external signing service.
// The engine hands an unsigned transfer payload out and gets a signed
// payload back; it never inspects key material.
package signer

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrRejected is returned when the signer refuses to sign a payload.
var ErrRejected = errors.New("signer rejected payload")

// Signer signs transfer payloads.
type Signer interface {
	// Sign returns the signed form of payload, or an error wrapping
	// ErrRejected if the signer refuses.
	Sign(ctx context.Context, payload []byte) ([]byte, error)
}

// HMACSigner is a local development signer appending an HMAC-SHA256 tag.
// Production deployments inject a remote signer instead.
type HMACSigner struct {
	key []byte
}

// NewHMACSigner creates a signer with the given key.
func NewHMACSigner(key []byte) (*HMACSigner, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("signer key required")
	}
	return &HMACSigner{key: key}, nil
}

// Sign implements Signer.
func (s *HMACSigner) Sign(_ context.Context, payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrRejected)
	}
	mac := hmac.New(sha256.New, s.key)
	mac.Write(payload)
	tag := hex.EncodeToString(mac.Sum(nil))
	signed := make([]byte, 0, len(payload)+1+len(tag))
	signed = append(signed, payload...)
	signed = append(signed, '.')
	signed = append(signed, tag...)
	return signed, nil
}
