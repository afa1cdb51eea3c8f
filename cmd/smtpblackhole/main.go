// smtpblackhole is a development-time SMTP server that accepts and stores
// mail without ever relaying it, paired with a small web UI for browsing
// what it received.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"blitiri.com.ar/go/log"

	"smtpblackhole/internal/auth"
	"smtpblackhole/internal/config"
	"smtpblackhole/internal/smtpsrv"
	"smtpblackhole/internal/store"
	"smtpblackhole/internal/tlsconst"
	"smtpblackhole/internal/userstore"
	"smtpblackhole/internal/usersession"
	"smtpblackhole/internal/webui"
)

var (
	configPath = flag.String("config", "smtpblackhole.yaml",
		"path to the configuration file")
	showVer = flag.Bool("version", false, "show version and exit")
)

// Build information, overridden at build time using
// -ldflags="-X main.version=blah".
var version = "undefined"

func main() {
	flag.Parse()
	log.Init()

	if *showVer {
		fmt.Printf("smtpblackhole %s\n", version)
		return
	}

	log.Infof("smtpblackhole starting (version %s)", version)

	conf, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	config.LogConfig(conf)

	mstore, err := buildStore(conf.Store)
	if err != nil {
		log.Fatalf("Error initializing mail store: %v", err)
	}

	smtpSrv, err := buildSMTPServer(conf, mstore)
	if err != nil {
		log.Fatalf("Error configuring SMTP server: %v", err)
	}

	users, err := userstore.New(conf.Admin.Username, conf.Admin.Password)
	if err != nil {
		log.Fatalf("Error initializing admin credential: %v", err)
	}

	ui := &webui.UI{
		Store:      mstore,
		Users:      users,
		Sessions:   usersession.New(conf.Web.SessionSecret),
		CookieName: conf.Web.SessionName,
	}
	webSrv := &http.Server{
		Addr:         conf.Web.Address(),
		Handler:      ui.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := smtpSrv.ListenAndServe(); err != nil {
			log.Errorf("SMTP server stopped: %v", err)
		}
	}()

	go func() {
		defer wg.Done()
		log.Infof("Web UI listening on %s", webSrv.Addr)
		if err := webSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Web server stopped: %v", err)
		}
	}()

	waitForShutdownSignal()
	log.Infof("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := smtpSrv.Shutdown(ctx); err != nil {
		log.Errorf("Error shutting down SMTP server: %v", err)
	}
	if err := webSrv.Shutdown(ctx); err != nil {
		log.Errorf("Error shutting down web server: %v", err)
	}

	wg.Wait()
	log.Infof("Shutdown complete")
}

// buildStore returns the configured EmailStore: a FileStore if a snapshot
// path was set, otherwise an in-memory-only MemStore.
func buildStore(sc config.StoreConfig) (store.EmailStore, error) {
	if sc.Path == "" {
		return store.NewMemStore(), nil
	}
	return store.NewFileStore(sc.Path)
}

func buildSMTPServer(conf *config.Config, mstore store.EmailStore) (*smtpsrv.Server, error) {
	s := smtpsrv.NewServer()
	s.Hostname = conf.SMTP.Domain
	s.MaxMessageBytes = conf.SMTP.MaxMessageBytes
	s.MaxRecipients = conf.SMTP.MaxRecipients
	s.ReadTimeout = time.Duration(conf.SMTP.ReadTimeoutSeconds) * time.Second
	s.WriteTimeout = time.Duration(conf.SMTP.WriteTimeoutSeconds) * time.Second
	s.AuthRequired = conf.SMTP.Auth.Required
	s.Authr = auth.New(conf.SMTP.Auth.Username, conf.SMTP.Auth.Password)
	s.Store = mstore
	s.UseSystemd = conf.SMTP.Systemd
	s.Addr = conf.SMTP.Address()

	if conf.SMTP.TLS.Enabled {
		cert, err := loadCertificate(conf.SMTP.TLS.CertFile, conf.SMTP.TLS.KeyFile)
		if err != nil {
			return nil, err
		}
		s.TLSConfig = cert
	}

	return s, nil
}

// loadCertificate loads the configured cert/key pair and returns a
// tls.Config floored at TLS 1.2, logging the minimum version name for
// operator sanity at startup.
func loadCertificate(certPath, keyPath string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("loading TLS certificate: %v", err)
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	log.Infof("SMTP TLS enabled, minimum version %s", tlsconst.VersionName(cfg.MinVersion))
	return cfg, nil
}

func waitForShutdownSignal() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	<-sigs
}
