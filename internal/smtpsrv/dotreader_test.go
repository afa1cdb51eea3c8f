package smtpsrv

import (
	"bytes"
	"testing"
)

func lineFeeder(lines ...string) lineReader {
	i := 0
	return func() ([]byte, error) {
		if i >= len(lines) {
			return nil, errLineTooLong // any distinct sentinel; tests don't read past the terminator
		}
		l := lines[i]
		i++
		return []byte(l), nil
	}
}

func TestReadDotBody(t *testing.T) {
	cases := []struct {
		name  string
		lines []string
		want  string
	}{
		{
			name:  "simple",
			lines: []string{"Subject: hi\r\n", "\r\n", "hello\r\n", ".\r\n"},
			want:  "Subject: hi\r\n\r\nhello\r\n",
		},
		{
			name:  "dot-stuffed line",
			lines: []string{".hello\r\n", "..world\r\n", ".\r\n"},
			want:  "hello\r\n.world\r\n",
		},
		{
			name:  "lf terminator",
			lines: []string{"hi\n", ".\n"},
			want:  "hi\n",
		},
		{
			name:  "empty body",
			lines: []string{".\r\n"},
			want:  "",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := readDotBody(lineFeeder(c.lines...), 1<<20)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !bytes.Equal(got, []byte(c.want)) {
				t.Errorf("got %q, want %q", got, c.want)
			}
		})
	}
}

func TestReadDotBodyOverflow(t *testing.T) {
	_, err := readDotBody(lineFeeder("0123456789\r\n", ".\r\n"), 5)
	if err != errMessageTooLarge {
		t.Errorf("expected errMessageTooLarge, got %v", err)
	}
}

func TestIsDotTerminator(t *testing.T) {
	cases := []struct {
		line string
		want bool
	}{
		{".\r\n", true},
		{".\n", true},
		{"..\r\n", false},
		{".a\r\n", false},
		{"a\r\n", false},
	}
	for _, c := range cases {
		if got := isDotTerminator([]byte(c.line)); got != c.want {
			t.Errorf("isDotTerminator(%q) = %v, want %v", c.line, got, c.want)
		}
	}
}
