package ratetoken

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Prefix marks a value as a rate token rather than a raw supplier rate key.
const Prefix = "rt1."

// Version is the payload schema version stamped on every token.
const Version = 1

// ErrInvalidToken is the single error returned for any token that cannot be trusted.
var ErrInvalidToken = errors.New("invalid rate token")

// Payload is the data bound inside a token.
type Payload struct {
	Version        int      `json:"v"`
	RateKey        string   `json:"rk"`
	GroupCode      int      `json:"gc"`
	SessionID      string   `json:"sid,omitempty"`
	HotelCode      string   `json:"hc,omitempty"`
	RoomIdentifier *int     `json:"ri,omitempty"`
	PriceGross     *float64 `json:"pg,omitempty"`
	PriceNet       *float64 `json:"pn,omitempty"`
	PriceTax       *float64 `json:"pt,omitempty"`
	TotalPrice     *float64 `json:"tp,omitempty"`
	IssuedAt       int64    `json:"iat"`
}

// Codec creates and decodes rate tokens. It is safe for concurrent use.
type Codec struct {
	keys    *keyring
	nowFunc func() time.Time
}

// NewCodec returns a Codec keyed by secret. The key is derived on first use.
func NewCodec(secret string) *Codec {
	return &Codec{
		keys:    &keyring{secret: secret},
		nowFunc: time.Now,
	}
}

// IsToken reports whether value carries the token prefix. It never decrypts.
func IsToken(value string) bool {
	return strings.HasPrefix(value, Prefix)
}

// Create stamps version and issue time on p and returns the opaque token.
func (c *Codec) Create(p Payload) (string, error) {
	if p.RateKey == "" {
		return "", errors.New("rate key is required")
	}
	if p.GroupCode <= 0 {
		return "", errors.New("group code must be positive")
	}
	aead, err := c.keys.get()
	if err != nil {
		return "", err
	}

	p.Version = Version
	p.IssuedAt = c.nowFunc().UnixMilli()

	plain, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	raw, err := seal(aead, plain)
	if err != nil {
		return "", err
	}
	return Prefix + base64.RawURLEncoding.EncodeToString(raw), nil
}

// Decode authenticates and parses a token. Every failure is ErrInvalidToken.
func (c *Codec) Decode(token string) (*Payload, error) {
	if !IsToken(token) {
		return nil, ErrInvalidToken
	}
	aead, err := c.keys.get()
	if err != nil {
		return nil, err
	}
	raw, err := base64.RawURLEncoding.DecodeString(token[len(Prefix):])
	if err != nil {
		return nil, ErrInvalidToken
	}
	plain, err := open(aead, raw)
	if err != nil {
		return nil, ErrInvalidToken
	}

	var p Payload
	if err := json.Unmarshal(plain, &p); err != nil {
		return nil, ErrInvalidToken
	}
	if p.Version != Version || p.RateKey == "" || p.GroupCode <= 0 {
		return nil, ErrInvalidToken
	}
	return &p, nil
}
