// Package credential issues and verifies the admission credentials
// embedded in ticket QR codes.  A credential is a random per-ticket
// secret wrapped in a base64url JSON payload; verification compares the
// presented secret against the stored one in constant time.  Rotating a
// ticket's secret (on transfer) invalidates every previously issued
// encoding of it.
package credential

import (
	"crypto/hmac"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/attendly/ticketing/internal/model"
)

// secretBytes is the entropy of a credential secret.  Hex encoding makes
// the stored secret 64 characters.
const secretBytes = 32

// ShortCodeLen is the length of the manual fallback code printed beneath
// the QR image.  Six hex characters over the event's ticket population
// keeps collisions negligible while staying typeable at a gate.
const ShortCodeLen = 6

// ErrMalformed is returned when an encoded credential cannot be decoded
// into a payload.
var ErrMalformed = errors.New("credential: malformed payload")

// ErrMismatch is returned when a decoded payload's secret does not match
// the ticket's current secret, e.g. after a rotation.
var ErrMismatch = errors.New("credential: secret mismatch")

// Payload is the document encoded into the QR code.  It carries enough
// for offline display plus the secret that proves possession.
type Payload struct {
	TicketID       string                `json:"ticket_id"`
	TicketNumber   string                `json:"ticket_number"`
	EventID        string                `json:"event_id"`
	Secret         string                `json:"secret"`
	IsGroup        bool                  `json:"is_group"`
	GroupLineItems []model.GroupLineItem `json:"group_line_items,omitempty"`
}

// NewSecret generates a fresh credential secret.
func NewSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("credential: generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Encode builds the base64url payload for a ticket carrying the given
// secret.  The ticket's own CredentialSecret field is ignored so callers
// can encode a rotated secret before persisting it.
func Encode(t *model.Ticket, secret string) (string, error) {
	p := Payload{
		TicketID:     t.ID,
		TicketNumber: t.Number,
		EventID:      t.EventID,
		Secret:       secret,
		IsGroup:      t.IsGroup,
	}
	if t.IsGroup {
		p.GroupLineItems = t.GroupLineItems
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("credential: encode: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Issue generates a secret and its encoded payload for a new ticket,
// returning both.  The caller stores the secret and hands the encoding
// to the buyer.
func Issue(t *model.Ticket) (secret, encoded string, err error) {
	secret, err = NewSecret()
	if err != nil {
		return "", "", err
	}
	encoded, err = Encode(t, secret)
	if err != nil {
		return "", "", err
	}
	return secret, encoded, nil
}

// Decode parses an encoded credential back into its payload.  Padding
// variants are tolerated since some QR scanners re-pad base64.
func Decode(encoded string) (*Payload, error) {
	trimmed := strings.TrimRight(encoded, "=")
	raw, err := base64.RawURLEncoding.DecodeString(trimmed)
	if err != nil {
		return nil, ErrMalformed
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, ErrMalformed
	}
	if p.TicketID == "" || p.TicketNumber == "" || p.Secret == "" {
		return nil, ErrMalformed
	}
	return &p, nil
}

// Verify checks a presented secret against the stored one in constant
// time.  A ticket whose secret has been rotated fails here for every
// credential issued before the rotation.
func Verify(stored, presented string) error {
	if !hmac.Equal([]byte(stored), []byte(presented)) {
		return ErrMismatch
	}
	return nil
}

// ShortCode derives the manual fallback code from a secret.  Displayed
// uppercase; matching is case-insensitive.
func ShortCode(secret string) string {
	if len(secret) < ShortCodeLen {
		return strings.ToUpper(secret)
	}
	return strings.ToUpper(secret[:ShortCodeLen])
}

// MatchesShortCode reports whether a typed code identifies the secret.
func MatchesShortCode(secret, code string) bool {
	return len(code) == ShortCodeLen && strings.EqualFold(ShortCode(secret), code)
}

// QRPNG renders the encoded credential as a PNG image of the given edge
// size in pixels.
func QRPNG(encoded string, size int) ([]byte, error) {
	png, err := qrcode.Encode(encoded, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("credential: render qr: %w", err)
	}
	return png, nil
}
