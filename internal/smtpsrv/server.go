package smtpsrv

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"time"

	"blitiri.com.ar/go/log"
	"blitiri.com.ar/go/systemd"

	"smtpblackhole/internal/auth"
	"smtpblackhole/internal/maillog"
	"smtpblackhole/internal/store"
)

// drainTimeout is how long Shutdown waits for each in-flight connection to
// close on its own before abandoning it.
const drainTimeout = 2 * time.Second

// Server accepts SMTP connections and runs one Conn per connection. It
// tracks every live connection so Shutdown can wait, briefly, for each to
// finish on its own before force-closing it.
type Server struct {
	Hostname        string
	MaxMessageBytes int64
	MaxRecipients   int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration

	Authr        *auth.Authenticator
	AuthRequired bool

	TLSConfig *tls.Config

	Store store.EmailStore

	// UseSystemd, if true, takes the listening socket from systemd socket
	// activation (LISTEN_FDS) instead of binding Addr itself.
	UseSystemd bool
	Addr       string

	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	listener net.Listener
	closed   bool
}

// NewServer returns a Server ready to have its fields set and then
// ListenAndServe called.
func NewServer() *Server {
	return &Server{
		conns: map[net.Conn]struct{}{},
	}
}

// listen returns the net.Listener to accept on, either a freshly bound TCP
// socket or one handed to us by systemd.
func (s *Server) listen() (net.Listener, error) {
	if s.UseSystemd {
		listeners, err := systemd.Listeners()
		if err != nil {
			return nil, err
		}
		if len(listeners) != 1 {
			return nil, errUnexpectedListenerCount(len(listeners))
		}
		return listeners[0], nil
	}
	return net.Listen("tcp", s.Addr)
}

type errUnexpectedListenerCount int

func (e errUnexpectedListenerCount) Error() string {
	return "smtpsrv: expected exactly one systemd socket, got a different count"
}

// ListenAndServe binds (or adopts, via systemd) the listening socket and
// runs the accept loop until Shutdown is called or the listener fails. It
// does not return until the accept loop stops.
func (s *Server) ListenAndServe() error {
	l, err := s.listen()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()

	maillog.Listening(l.Addr().String())
	log.Infof("smtpsrv: listening on %s", l.Addr())

	for {
		nc, err := l.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return err
		}

		s.register(nc)
		go s.serve(nc)
	}
}

func (s *Server) register(nc net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[nc] = struct{}{}
}

func (s *Server) unregister(nc net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, nc)
}

func (s *Server) serve(nc net.Conn) {
	defer s.unregister(nc)

	c := newConn(nc, newConnConfig{
		hostname:        s.Hostname,
		maxMessageBytes: s.MaxMessageBytes,
		maxRecipients:   s.MaxRecipients,
		readTimeout:     s.ReadTimeout,
		writeTimeout:    s.WriteTimeout,
		authr:           s.Authr,
		authRequired:    s.AuthRequired,
		tlsConfig:       s.TLSConfig,
		store:           s.Store,
	})
	c.Handle()
}

// Shutdown stops the accept loop and waits up to drainTimeout per live
// connection for its session to end on its own, force-closing any
// connection still open after that. A well-behaved client mid-DATA when Shutdown is called
// still gets to finish: Shutdown only forces connections closed, it never
// cancels a session directly.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	l := s.listener
	conns := make([]net.Conn, 0, len(s.conns))
	for nc := range s.conns {
		conns = append(conns, nc)
	}
	s.mu.Unlock()

	if l != nil {
		l.Close()
	}

	var wg sync.WaitGroup
	for _, nc := range conns {
		wg.Add(1)
		go func(nc net.Conn) {
			defer wg.Done()
			s.drainOne(ctx, nc)
		}(nc)
	}
	wg.Wait()

	return nil
}

// drainOne waits up to drainTimeout for nc to be unregistered (meaning its
// Conn.Handle returned on its own), then force-closes it if it hasn't.
func (s *Server) drainOne(ctx context.Context, nc net.Conn) {
	deadline := time.Now().Add(drainTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	for time.Now().Before(deadline) {
		s.mu.Lock()
		_, stillLive := s.conns[nc]
		s.mu.Unlock()
		if !stillLive {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}

	nc.Close()
}
