package tls

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/caddyserver/certmagic"
)

// Config selects the ACME account and the hostnames to serve.
type Config struct {
	Domains []string
	Email   string
	Staging bool
}

// CertManager obtains and renews certificates for the configured hostnames.
type CertManager struct {
	domains map[string]struct{}
	list    []string
	logger  *slog.Logger
	cfg     *certmagic.Config
}

func NewCertManager(c Config, logger *slog.Logger) (*CertManager, error) {
	cm := &CertManager{domains: make(map[string]struct{}), logger: logger}
	for _, d := range c.Domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if _, dup := cm.domains[d]; !dup {
			cm.domains[d] = struct{}{}
			cm.list = append(cm.list, d)
		}
	}
	if len(cm.list) == 0 {
		return nil, fmt.Errorf("no TLS domains configured")
	}

	certmagic.DefaultACME.Email = c.Email
	certmagic.DefaultACME.Agreed = true
	if c.Staging {
		certmagic.DefaultACME.CA = certmagic.LetsEncryptStagingCA
	}

	cm.cfg = certmagic.NewDefault()
	cm.cfg.OnDemand = &certmagic.OnDemandConfig{DecisionFunc: cm.allowCert}
	return cm, nil
}

// allowCert refuses on-demand issuance for any name outside the configured set.
func (cm *CertManager) allowCert(_ context.Context, name string) error {
	if _, ok := cm.domains[strings.ToLower(name)]; !ok {
		return fmt.Errorf("unknown domain: %s", name)
	}
	return nil
}

// Server returns an HTTPS server on :443 with the certmagic TLS config. Known
// domains are managed before it is returned so their certs are ready.
func (cm *CertManager) Server(ctx context.Context, handler http.Handler) (*http.Server, error) {
	cm.logger.Info("managing TLS certificates", "domains", cm.list)
	if err := cm.cfg.ManageSync(ctx, cm.list); err != nil {
		return nil, fmt.Errorf("manage domains: %w", err)
	}

	tlsCfg := cm.cfg.TLSConfig()
	tlsCfg.NextProtos = append([]string{"h2", "http/1.1"}, tlsCfg.NextProtos...)
	tlsCfg.MinVersion = tls.VersionTLS12

	return &http.Server{
		Addr:        fmt.Sprintf(":%d", certmagic.HTTPSPort),
		Handler:     handler,
		TLSConfig:   tlsCfg,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}, nil
}

// ListenAndServe serves handler over HTTPS until the listener fails.
func (cm *CertManager) ListenAndServe(srv *http.Server) error {
	ln, err := tls.Listen("tcp", srv.Addr, srv.TLSConfig)
	if err != nil {
		return fmt.Errorf("tls listen: %w", err)
	}
	cm.logger.Info("serving HTTPS", "port", certmagic.HTTPSPort)
	return srv.Serve(ln)
}

// HTTPChallengeHandler wraps h so ACME HTTP-01 challenges are answered on :80.
func (cm *CertManager) HTTPChallengeHandler(h http.Handler) http.Handler {
	for _, issuer := range cm.cfg.Issuers {
		if am, ok := issuer.(*certmagic.ACMEIssuer); ok {
			return am.HTTPChallengeHandler(h)
		}
	}
	return h
}
