package ws

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// EnvelopeWindow bounds how far a sealed message's timestamp may drift
// from the verifier's clock in either direction.
const EnvelopeWindow = 30 * time.Second

var (
	ErrEnvelopeFormat    = errors.New("malformed envelope")
	ErrEnvelopeSignature = errors.New("envelope signature mismatch")
	ErrEnvelopeStale     = errors.New("envelope outside freshness window")
)

type envelopeBody struct {
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Sealer signs and verifies application-level message envelopes for
// transports that lack a pre-authenticated handshake. An envelope is
// the payload JSON joined to a hex HMAC-SHA256 of it by a dot.
// Freshness is timestamp-window only; there is no nonce deduplication,
// so a captured envelope replays verbatim while still fresh.
type Sealer struct {
	secret []byte
}

func NewSealer(secret []byte) (*Sealer, error) {
	if len(secret) == 0 {
		return nil, errors.New("sealer secret must not be empty")
	}
	return &Sealer{secret: secret}, nil
}

// Seal wraps data in a timestamped, signed envelope.
func (s *Sealer) Seal(data json.RawMessage, now time.Time) (string, error) {
	body, err := json.Marshal(envelopeBody{
		Timestamp: now.Unix(),
		Data:      data,
	})
	if err != nil {
		return "", err
	}
	return string(body) + "." + s.sign(body), nil
}

// Open verifies the signature and freshness window and returns the
// wrapped data.
func (s *Sealer) Open(envelope string, now time.Time) (json.RawMessage, error) {
	idx := strings.LastIndexByte(envelope, '.')
	if idx <= 0 || idx == len(envelope)-1 {
		return nil, ErrEnvelopeFormat
	}
	body, sig := envelope[:idx], envelope[idx+1:]

	if !hmac.Equal([]byte(sig), []byte(s.sign([]byte(body)))) {
		return nil, ErrEnvelopeSignature
	}

	var b envelopeBody
	if err := json.Unmarshal([]byte(body), &b); err != nil {
		return nil, ErrEnvelopeFormat
	}

	drift := now.Sub(time.Unix(b.Timestamp, 0))
	if drift < -EnvelopeWindow || drift > EnvelopeWindow {
		return nil, ErrEnvelopeStale
	}
	return b.Data, nil
}

func (s *Sealer) sign(body []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
