package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"
)

// ExportAction is the action every export and debug token is bound to.
const ExportAction = "seo_export"

var ErrInvalidNonce = errors.New("invalid nonce")

// Nonces issues anti-forgery tokens bound to an action and a session. A token
// stays valid for between half and the whole of the configured lifetime.
type Nonces struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

func NewNonces(secret string, lifetime time.Duration) *Nonces {
	if lifetime < 2*time.Second {
		lifetime = 24 * time.Hour
	}
	return &Nonces{secret: []byte(secret), lifetime: lifetime, now: time.Now}
}

func (n *Nonces) Create(action, sessionID string) string {
	return n.sign(n.tick(), action, sessionID)
}

// Verify accepts tokens of the current or the previous tick.
func (n *Nonces) Verify(nonce, action, sessionID string) error {
	if nonce == "" || sessionID == "" {
		return ErrInvalidNonce
	}
	tick := n.tick()
	for _, t := range []int64{tick, tick - 1} {
		if hmac.Equal([]byte(nonce), []byte(n.sign(t, action, sessionID))) {
			return nil
		}
	}
	return ErrInvalidNonce
}

func (n *Nonces) tick() int64 {
	half := int64(n.lifetime / time.Second / 2)
	now := n.now().Unix()
	return (now + half - 1) / half
}

func (n *Nonces) sign(tick int64, action, sessionID string) string {
	mac := hmac.New(sha256.New, n.secret)
	mac.Write([]byte(strconv.FormatInt(tick, 10)))
	mac.Write([]byte{'|'})
	mac.Write([]byte(action))
	mac.Write([]byte{'|'})
	mac.Write([]byte(sessionID))
	return hex.EncodeToString(mac.Sum(nil))[:20]
}
