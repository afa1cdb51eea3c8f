// Package mailparse extracts a best-effort subject and text body from a raw
// RFC 5322 message, the way a mail client's preview pane would: it never
// fails, and degrades to a lossy raw dump rather than rejecting anything.
package mailparse

import (
	"bytes"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
)

// Parse extracts (subject, body) from raw, a full RFC 5322 message
// including headers. Both are valid UTF-8. Parse never returns an error:
// any failure to make sense of raw degrades to treating the whole message
// as a lossily-decoded text body. The subject is empty if the headers
// themselves could not be parsed; otherwise it is kept.
func Parse(raw []byte) (subject, body string) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return "", toValidUTF8(raw)
	}

	subject = msg.Header.Get("Subject")

	payload, err := io.ReadAll(msg.Body)
	if err != nil {
		return subject, toValidUTF8(raw)
	}

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	if err != nil || !isMultipart(mediaType) {
		return subject, toValidUTF8(payload)
	}

	boundary := params["boundary"]
	if boundary == "" {
		return subject, toValidUTF8(payload)
	}

	mr := multipart.NewReader(bytes.NewReader(payload), boundary)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return subject, toValidUTF8(raw)
		}

		partType, _, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if partType == "" || partType == "text/plain" {
			partBody, err := io.ReadAll(part)
			if err != nil {
				continue
			}
			return subject, toValidUTF8(partBody)
		}
	}

	// No text/plain part found; fall back to the raw message.
	return subject, toValidUTF8(raw)
}

func isMultipart(mediaType string) bool {
	return len(mediaType) >= len("multipart/") && mediaType[:len("multipart/")] == "multipart/"
}

// toValidUTF8 decodes b as UTF-8, replacing any invalid byte sequences with
// the Unicode replacement character, so the result is always valid UTF-8.
func toValidUTF8(b []byte) string {
	return string(bytes.ToValidUTF8(b, []byte("�")))
}
