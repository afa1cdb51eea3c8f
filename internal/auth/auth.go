// Package auth implements the single-credential SMTP AUTH PLAIN/LOGIN
// checks used by the blackhole's session state machine.
package auth

import (
	"bytes"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// Authenticator holds the sole valid credential pair the SMTP front-end
// accepts. There is no per-domain backend registry here: the blackhole has
// exactly one set of valid credentials, configured up front.
type Authenticator struct {
	Username string
	Password string
}

// New returns an Authenticator for the given username/password pair.
func New(username, password string) *Authenticator {
	return &Authenticator{Username: username, Password: password}
}

// Authenticate reports whether user/password match the configured
// credentials. The comparison is constant-time to avoid leaking timing
// information about how many leading bytes matched.
func (a *Authenticator) Authenticate(user, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(a.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(a.Password)) == 1
	return userOK && passOK
}

// DecodeAuthPlain decodes a base64 AUTH PLAIN response of the form
//
//	authzid NUL authcid NUL password
//
// or, more leniently, just
//
//	username NUL password
//
// returning the effective username and password. Any other shape is an
// error.
func DecodeAuthPlain(response string) (user, passwd string, err error) {
	buf, err := base64.StdEncoding.DecodeString(response)
	if err != nil {
		return "", "", fmt.Errorf("invalid base64: %v", err)
	}

	parts := bytes.SplitN(buf, []byte{0}, 3)
	switch len(parts) {
	case 3:
		// authzid \0 authcid \0 password
		return string(parts[1]), string(parts[2]), nil
	case 2:
		// username \0 password
		return string(parts[0]), string(parts[1]), nil
	default:
		return "", "", fmt.Errorf("malformed AUTH PLAIN response")
	}
}

// DecodeBase64Line decodes a single base64-encoded line, as used by the
// username/password prompts of AUTH LOGIN.
func DecodeBase64Line(line string) (string, error) {
	buf, err := base64.StdEncoding.DecodeString(line)
	if err != nil {
		return "", fmt.Errorf("invalid base64: %v", err)
	}
	return string(buf), nil
}

// EncodeBase64Line base64-encodes a prompt string, as used by AUTH LOGIN's
// "Username:"/"Password:" prompts.
func EncodeBase64Line(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}
