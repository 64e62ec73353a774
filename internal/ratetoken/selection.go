package ratetoken

import (
	"errors"
	"fmt"
)

var (
	ErrNoRates         = errors.New("no rates selected")
	ErrMixedRateKeys   = errors.New("rate tokens and raw rate keys cannot be mixed")
	ErrSessionMismatch = errors.New("rate tokens belong to different search sessions")
	ErrGroupMismatch   = errors.New("rate selection changed, search again")
	ErrHotelMismatch   = errors.New("rate tokens do not belong to this hotel")
)

// Selection is the validated result of a list of rates sent by a client.
type Selection struct {
	// Tokens is false when the client sent raw supplier rate keys.
	Tokens    bool
	RateKeys  []string
	Payloads  []*Payload
	GroupCode int
	SessionID string
}

// ResolveSelection decodes rates and checks that they describe one coherent selection
// for hotelCode. sessionID is the session the request claims, if any.
func ResolveSelection(c *Codec, hotelCode, sessionID string, rates []string) (*Selection, error) {
	if len(rates) == 0 {
		return nil, ErrNoRates
	}

	tokens := 0
	for _, r := range rates {
		if IsToken(r) {
			tokens++
		}
	}
	if tokens != 0 && tokens != len(rates) {
		return nil, ErrMixedRateKeys
	}

	if tokens == 0 {
		keys := make([]string, 0, len(rates))
		for i, r := range rates {
			if r == "" {
				return nil, fmt.Errorf("rate %d: empty rate key", i)
			}
			keys = append(keys, r)
		}
		return &Selection{RateKeys: keys, SessionID: sessionID}, nil
	}

	sel := &Selection{
		Tokens:    true,
		RateKeys:  make([]string, 0, len(rates)),
		Payloads:  make([]*Payload, 0, len(rates)),
		SessionID: sessionID,
	}
	for i, r := range rates {
		p, err := c.Decode(r)
		if err != nil {
			return nil, fmt.Errorf("rate %d: %w", i, err)
		}
		if p.SessionID != "" {
			if sel.SessionID != "" && sel.SessionID != p.SessionID {
				return nil, ErrSessionMismatch
			}
			sel.SessionID = p.SessionID
		}
		if i == 0 {
			sel.GroupCode = p.GroupCode
		} else if p.GroupCode != sel.GroupCode {
			return nil, ErrGroupMismatch
		}
		if p.HotelCode != "" && p.HotelCode != hotelCode {
			return nil, ErrHotelMismatch
		}
		sel.RateKeys = append(sel.RateKeys, p.RateKey)
		sel.Payloads = append(sel.Payloads, p)
	}
	return sel, nil
}
