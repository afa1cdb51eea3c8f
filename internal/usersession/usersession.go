// Package usersession implements signed, timestamped session tokens for the
// web UI's cookie, in place of a server-side session store: the token
// itself carries the username and an issue time, HMAC-signed so the browser
// can't forge or tamper with it, and expires after a fixed age.
package usersession

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MaxAge is how long a session token remains valid after issue.
const MaxAge = 24 * time.Hour

// Manager signs and verifies session tokens with a fixed secret.
type Manager struct {
	secret []byte
}

// New returns a Manager signing tokens with secret. secret should be long
// and random; it comes from the web UI's configuration.
func New(secret string) *Manager {
	return &Manager{secret: []byte(secret)}
}

// Issue returns a signed token encoding username and the current time.
func (m *Manager) Issue(username string, now time.Time) string {
	payload := fmt.Sprintf("%s|%d", username, now.Unix())
	sig := m.sign(payload)
	return base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." +
		base64.RawURLEncoding.EncodeToString(sig)
}

// Verify checks token's signature and expiry against now, and returns the
// username it encodes if valid.
func (m *Manager) Verify(token string, now time.Time) (username string, ok bool) {
	dot := strings.LastIndexByte(token, '.')
	if dot == -1 {
		return "", false
	}

	payloadB64, sigB64 := token[:dot], token[dot+1:]
	payload, err := base64.RawURLEncoding.DecodeString(payloadB64)
	if err != nil {
		return "", false
	}
	sig, err := base64.RawURLEncoding.DecodeString(sigB64)
	if err != nil {
		return "", false
	}

	if subtle.ConstantTimeCompare(m.sign(string(payload)), sig) != 1 {
		return "", false
	}

	bar := strings.LastIndexByte(string(payload), '|')
	if bar == -1 {
		return "", false
	}
	username = string(payload[:bar])
	issuedUnix, err := strconv.ParseInt(string(payload[bar+1:]), 10, 64)
	if err != nil {
		return "", false
	}

	issued := time.Unix(issuedUnix, 0)
	if now.After(issued.Add(MaxAge)) {
		return "", false
	}

	return username, true
}

func (m *Manager) sign(payload string) []byte {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}
