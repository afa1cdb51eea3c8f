// Package smtpsrv implements the SMTP front-end: the per-connection session
// state machine, in-band TLS upgrade, and the listener/supervisor that
// accepts connections and coordinates graceful shutdown.
package smtpsrv

import (
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"

	"blitiri.com.ar/go/log"

	"smtpblackhole/internal/auth"
	"smtpblackhole/internal/mailparse"
	"smtpblackhole/internal/maillog"
	"smtpblackhole/internal/store"
)

// state is the session's position in the SMTP dialogue.
type state int

const (
	stateGreeted state = iota
	stateIdentified
	stateAuthenticated
	stateMailFrom
	stateRcpt
)

// Conn represents a single SMTP session, bound to one accepted TCP
// connection. One Conn runs in its own goroutine for the lifetime of the
// connection.
type Conn struct {
	hostname        string
	maxMessageBytes int64
	maxRecipients   int
	readTimeout     time.Duration
	writeTimeout    time.Duration

	authr        *auth.Authenticator
	authRequired bool

	tlsConfig *tls.Config

	store store.EmailStore

	conn       net.Conn
	remoteAddr string
	lc         *LineCodec

	state state
	onTLS bool

	ehloDomain string

	authenticated bool
	authUser      string

	mailFrom string
	rcptTo   []string

	errCount int
}

// newConnConfig carries the pieces a Server hands a new Conn; kept separate
// from Conn itself so tests can construct a Conn directly without a Server.
type newConnConfig struct {
	hostname        string
	maxMessageBytes int64
	maxRecipients   int
	readTimeout     time.Duration
	writeTimeout    time.Duration
	authr           *auth.Authenticator
	authRequired    bool
	tlsConfig       *tls.Config
	store           store.EmailStore
}

func newConn(nc net.Conn, cfg newConnConfig) *Conn {
	c := &Conn{
		hostname:        cfg.hostname,
		maxMessageBytes: cfg.maxMessageBytes,
		maxRecipients:   cfg.maxRecipients,
		readTimeout:     cfg.readTimeout,
		writeTimeout:    cfg.writeTimeout,
		authr:           cfg.authr,
		authRequired:    cfg.authRequired,
		tlsConfig:       cfg.tlsConfig,
		store:           cfg.store,
		conn:            nc,
		remoteAddr:      nc.RemoteAddr().String(),
	}
	c.lc = NewLineCodec(&c.conn, cfg.maxMessageBytes, cfg.writeTimeout)
	return c
}

// Handle runs the SMTP dialogue to completion, closing the connection
// before returning.
func (c *Conn) Handle() {
	defer c.conn.Close()

	c.writeReply(220, fmt.Sprintf("%s SMTP Ready", c.hostname))

	for {
		line, err := c.readLine()
		if err != nil {
			if err == errTimeout {
				c.writeReply(421, "Timeout")
			}
			// Any other error (EOF, reset, line too long) ends the session
			// silently: no reply is attempted over a broken transport.
			return
		}

		cmd, args := parseCommand(line)
		code, msg, terminal := c.dispatch(cmd, args)
		c.writeReply(code, msg)

		if terminal {
			return
		}

		if code >= 400 {
			c.errCount++
			if c.errCount >= 3 {
				c.writeReply(421, "Too many errors")
				return
			}
		} else {
			c.errCount = 0
		}
	}
}

// errTimeout is a sentinel distinguishing a read-deadline timeout from other
// read failures, which the main loop treats differently (no reply).
var errTimeout = fmt.Errorf("smtpsrv: read timeout")

// replyForReadErr turns a readLine failure mid-command (AUTH continuation
// lines, DATA body lines) into a dispatch result: a timeout always gets a
// 421 reply before closing, anything else (EOF, reset) closes silently.
func replyForReadErr(err error) (int, string, bool) {
	if err == errTimeout {
		return 421, "Timeout", true
	}
	return noReplyCode, "", true
}

// readLine reads one line from the connection, applying the configured read
// timeout and translating net.Error timeouts into errTimeout.
func (c *Conn) readLine() ([]byte, error) {
	line, err := c.lc.ReadLine(c.readTimeout)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, errTimeout
		}
		return nil, err
	}
	return line, nil
}

// parseCommand splits a command line into its verb (uppercased) and the
// remainder of the line, trimmed of its terminator.
func parseCommand(line []byte) (cmd, rest string) {
	s := strings.TrimRight(string(line), "\r\n")
	parts := strings.SplitN(s, " ", 2)
	cmd = strings.ToUpper(parts[0])
	if len(parts) == 2 {
		rest = parts[1]
	}
	return cmd, rest
}

// dispatch runs one command against the session state machine, returning
// the reply code/message and whether the connection should now close.
func (c *Conn) dispatch(cmd, args string) (code int, msg string, terminal bool) {
	switch cmd {
	case "EHLO":
		return c.cmdEHLO(args, true)
	case "HELO":
		return c.cmdEHLO(args, false)
	case "AUTH":
		return c.cmdAUTH(args)
	case "MAIL":
		return c.cmdMAIL(args)
	case "RCPT":
		return c.cmdRCPT(args)
	case "DATA":
		return c.cmdDATA()
	case "STARTTLS":
		return c.cmdSTARTTLS()
	case "RSET":
		c.resetTransaction()
		return 250, "OK", false
	case "NOOP":
		return 250, "OK", false
	case "QUIT":
		return 221, "Bye", true
	default:
		return 500, "Unknown command", false
	}
}

func (c *Conn) resetTransaction() {
	c.mailFrom = ""
	c.rcptTo = nil
}

func (c *Conn) cmdEHLO(domain string, extended bool) (int, string, bool) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return 501, "Syntax error", false
	}

	c.ehloDomain = domain
	c.resetTransaction()
	if c.state == stateGreeted {
		c.state = stateIdentified
	}

	if !extended {
		return 250, "OK", false
	}

	var b strings.Builder
	fmt.Fprintf(&b, "250-%s Hello\r\n", c.hostname)
	if c.authRequired || (c.authr != nil && c.authr.Username != "") {
		b.WriteString("250-AUTH PLAIN LOGIN\r\n")
	}
	if c.tlsConfig != nil && !c.onTLS {
		b.WriteString("250-STARTTLS\r\n")
	}
	fmt.Fprintf(&b, "250-SIZE %d\r\n", c.maxMessageBytes)
	b.WriteString("250 OK")

	// The caller writes this as a single reply; return the whole
	// multi-line block as msg, with a code that tells writeReply it is
	// already fully formatted.
	return rawMultilineCode, b.String(), false
}

// rawMultilineCode signals writeReply that msg is already a complete,
// properly terminated multi-line reply and should be written verbatim.
const rawMultilineCode = -1

func (c *Conn) cmdAUTH(args string) (int, string, bool) {
	if c.authenticated {
		return 503, "Already authenticated", false
	}

	parts := strings.SplitN(strings.TrimSpace(args), " ", 2)
	if parts[0] == "" {
		return 501, "Syntax error", false
	}
	mech := strings.ToUpper(parts[0])

	var user, passwd string
	var err error

	switch mech {
	case "PLAIN":
		blob := ""
		if len(parts) == 2 {
			blob = parts[1]
		} else {
			c.writeReply(334, "")
			line, rerr := c.readLine()
			if rerr != nil {
				return replyForReadErr(rerr)
			}
			blob = strings.TrimRight(string(line), "\r\n")
		}
		user, passwd, err = auth.DecodeAuthPlain(blob)
	case "LOGIN":
		c.writeReply(334, auth.EncodeBase64Line("Username:"))
		uline, rerr := c.readLine()
		if rerr != nil {
			return replyForReadErr(rerr)
		}
		user, err = auth.DecodeBase64Line(strings.TrimRight(string(uline), "\r\n"))
		if err == nil {
			c.writeReply(334, auth.EncodeBase64Line("Password:"))
			pline, rerr := c.readLine()
			if rerr != nil {
				return replyForReadErr(rerr)
			}
			passwd, err = auth.DecodeBase64Line(strings.TrimRight(string(pline), "\r\n"))
		}
	default:
		return 504, "Unsupported authentication mechanism", false
	}

	if err != nil || c.authr == nil || !c.authr.Authenticate(user, passwd) {
		maillog.Auth(c.conn.RemoteAddr(), user, false)
		return 535, "Authentication failed", false
	}

	c.authenticated = true
	c.authUser = user
	if c.state < stateAuthenticated {
		c.state = stateAuthenticated
	}
	maillog.Auth(c.conn.RemoteAddr(), user, true)
	return 235, "Authentication successful", false
}

func (c *Conn) cmdMAIL(args string) (int, string, bool) {
	if c.authRequired && !c.authenticated {
		return 530, "Authentication required", false
	}

	addr, ok := parseMailRcptArg(args, "FROM:")
	if !ok {
		return 501, "Syntax error", false
	}

	c.mailFrom = addr
	c.rcptTo = nil
	if c.state < stateMailFrom {
		c.state = stateMailFrom
	}
	return 250, "OK", false
}

func (c *Conn) cmdRCPT(args string) (int, string, bool) {
	if c.authRequired && !c.authenticated {
		return 530, "Authentication required", false
	}

	if len(c.rcptTo) >= c.maxRecipients {
		return 452, "Too many recipients", false
	}

	addr, ok := parseMailRcptArg(args, "TO:")
	if !ok {
		return 501, "Syntax error", false
	}

	c.rcptTo = append(c.rcptTo, addr)
	c.state = stateRcpt
	return 250, "OK", false
}

// parseMailRcptArg extracts the mailbox from a MAIL/RCPT argument string.
// prefix is "FROM:" or "TO:", matched case-insensitively.
func parseMailRcptArg(args, prefix string) (addr string, ok bool) {
	upper := strings.ToUpper(args)
	idx := strings.Index(upper, prefix)
	if idx == -1 {
		return "", false
	}

	rest := args[idx+len(prefix):]
	rest = strings.TrimSpace(rest)
	// Discard any trailing extension parameters (e.g. "SIZE=1024"): only
	// the first whitespace-separated token is the address.
	if sp := strings.IndexByte(rest, ' '); sp != -1 {
		rest = rest[:sp]
	}

	rest = strings.TrimPrefix(rest, "<")
	rest = strings.TrimSuffix(rest, ">")
	return rest, true
}

func (c *Conn) cmdDATA() (int, string, bool) {
	if c.mailFrom == "" || len(c.rcptTo) == 0 {
		return 503, "Bad sequence of commands", false
	}

	c.writeReply(354, "Start mail input; end with <CRLF>.<CRLF>")

	raw, err := readDotBody(c.readLine, c.maxMessageBytes)
	if err != nil {
		if err == errMessageTooLarge {
			maillog.Rejected(c.conn.RemoteAddr(), c.mailFrom, c.rcptTo, "message too large")
			c.resetTransaction()
			return 552, "Message too large", false
		}
		return replyForReadErr(err)
	}

	subject, body := mailparse.Parse(raw)

	e := store.Email{
		Sender:     c.mailFrom,
		Recipients: append([]string(nil), c.rcptTo...),
		Subject:    subject,
		Body:       body,
		RawMessage: raw,
		SizeBytes:  len(raw),
		ReceivedAt: time.Now(),
		Status:     store.StatusReceived,
		AuthUser:   c.authUser,
		ClientIP:   c.remoteAddr,
	}

	from, to := c.mailFrom, append([]string(nil), c.rcptTo...)
	id, err := c.store.Create(e)
	c.resetTransaction()
	if err != nil {
		log.Errorf("store failure: %v", err)
		return 451, "Requested action aborted: local error", false
	}

	maillog.Accepted(c.conn.RemoteAddr(), from, to, id)
	return 250, "OK: Message accepted", false
}

func (c *Conn) cmdSTARTTLS() (int, string, bool) {
	if c.tlsConfig == nil {
		return 502, "STARTTLS not available", false
	}
	if c.onTLS {
		return 502, "STARTTLS not available", false
	}

	c.writeReply(220, "Ready to start TLS")

	tlsConn := tls.Server(c.conn, c.tlsConfig)
	if err := tlsConn.Handshake(); err != nil {
		return 454, fmt.Sprintf("TLS not available: %v", err), false
	}

	c.conn = tlsConn
	c.lc.Reset()
	c.onTLS = true

	c.authenticated = false
	c.authUser = ""
	c.ehloDomain = ""
	c.state = stateGreeted
	c.resetTransaction()

	// A reply has already been written (the "220 Ready to start TLS"
	// above, over plaintext); signal the caller to skip writing another.
	return noReplyCode, "", false
}

// noReplyCode signals writeReply to do nothing: a reply (or the start of
// the TLS handshake) has already happened inline in the handler.
const noReplyCode = -2

func (c *Conn) writeReply(code int, msg string) {
	switch code {
	case noReplyCode:
		return
	case rawMultilineCode:
		// msg already has "\r\n" between its lines; just terminate it.
		c.lc.WriteRaw([]byte(msg + "\r\n"))
		return
	}
	c.lc.WriteLine([]byte(fmt.Sprintf("%d %s", code, msg)))
}
