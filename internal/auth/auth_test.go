package auth

import (
	"encoding/base64"
	"testing"
)

func TestAuthenticate(t *testing.T) {
	a := New("alice", "s3cret")

	cases := []struct {
		user, passwd string
		expect       bool
	}{
		{"alice", "s3cret", true},
		{"alice", "wrong", false},
		{"bob", "s3cret", false},
		{"", "", false},
	}
	for _, c := range cases {
		if got := a.Authenticate(c.user, c.passwd); got != c.expect {
			t.Errorf("Authenticate(%q, %q) = %v, expected %v",
				c.user, c.passwd, got, c.expect)
		}
	}
}

func TestDecodeAuthPlain(t *testing.T) {
	cases := []struct {
		response, user, passwd string
	}{
		{"AGFsaWNlAHMzY3JldA==", "alice", "s3cret"},     // \0alice\0s3cret
		{"YWxpY2UAYm9iAHMzY3JldA==", "bob", "s3cret"},    // alice\0bob\0s3cret
		{"dQBwYXNz", "u", "pass"},                        // u\0pass (two fields)
		{"AA==", "", ""},                                 // \0 (two empty fields)
	}
	for _, c := range cases {
		u, p, err := DecodeAuthPlain(c.response)
		if err != nil {
			t.Errorf("case %v: unexpected error %v", c, err)
			continue
		}
		if u != c.user || p != c.passwd {
			t.Errorf("case %v: got (%q, %q)", c, u, p)
		}
	}

	_, _, err := DecodeAuthPlain("not valid base64!!")
	if err == nil {
		t.Errorf("expected error for invalid base64")
	}

	failedCases := []string{"", "no separator"}
	for _, c := range failedCases {
		r := base64.StdEncoding.EncodeToString([]byte(c))
		if _, _, err := DecodeAuthPlain(r); err == nil {
			t.Errorf("expected case %q to fail", c)
		}
	}
}

func TestAuthLoginRoundTrip(t *testing.T) {
	enc := EncodeBase64Line("alice")
	dec, err := DecodeBase64Line(enc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec != "alice" {
		t.Errorf("got %q, expected %q", dec, "alice")
	}

	if _, err := DecodeBase64Line("not valid base64!!"); err == nil {
		t.Errorf("expected error for invalid base64")
	}
}
