// Package tls provides HTTPS for the catterm server, either from certificate
// files or from Let's Encrypt via autocert.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/antibyte/catterm/pkg/configuration"
	"github.com/antibyte/catterm/pkg/logger"

	"golang.org/x/crypto/acme/autocert"
)

// TLSConfig holds the [TLS] settings.
type TLSConfig struct {
	EnableTLS          bool
	EnableLetsEncrypt  bool
	GenerateSelfSigned bool
	Domain             string
	LetsEncryptEmail   string
	CertCacheDir       string
	ForceHTTPSRedirect bool
	CertFile           string
	KeyFile            string
	HTTPPort           string
	HTTPSPort          string
}

// ConfigFromSettings reads [TLS] and the HTTP port from [Server].
func ConfigFromSettings() TLSConfig {
	return TLSConfig{
		EnableTLS:          configuration.GetBool("TLS", "enable_tls", false),
		EnableLetsEncrypt:  configuration.GetBool("TLS", "enable_letsencrypt", false),
		GenerateSelfSigned: configuration.GetBool("TLS", "generate_self_signed", false),
		Domain:             configuration.GetString("TLS", "domain", ""),
		LetsEncryptEmail:   configuration.GetString("TLS", "letsencrypt_email", ""),
		CertCacheDir:       configuration.GetString("TLS", "cert_cache_dir", "certs"),
		ForceHTTPSRedirect: configuration.GetBool("TLS", "force_https_redirect", false),
		CertFile:           configuration.GetString("TLS", "cert_file", "certs/server.crt"),
		KeyFile:            configuration.GetString("TLS", "key_file", "certs/server.key"),
		HTTPPort:           configuration.GetString("Server", "http_port", "8080"),
		HTTPSPort:          configuration.GetString("TLS", "https_port", "8443"),
	}
}

// TLSManager builds the *tls.Config for the server.
type TLSManager struct {
	config      TLSConfig
	autocertMgr *autocert.Manager
	tlsConfig   *tls.Config
}

// NewTLSManager validates config and, when TLS is enabled, prepares
// certificates.
func NewTLSManager(config TLSConfig) (*TLSManager, error) {
	manager := &TLSManager{config: config}

	if err := manager.validateConfig(); err != nil {
		return nil, fmt.Errorf("TLS configuration validation failed: %w", err)
	}
	if !config.EnableTLS {
		return manager, nil
	}

	var err error
	if config.EnableLetsEncrypt {
		err = manager.initializeLetsEncrypt()
	} else {
		err = manager.initializeManualTLS()
	}
	if err != nil {
		return nil, fmt.Errorf("TLS initialization failed: %w", err)
	}
	return manager, nil
}

func (tm *TLSManager) validateConfig() error {
	if !tm.config.EnableTLS {
		return nil
	}
	if tm.config.EnableLetsEncrypt {
		if strings.TrimSpace(tm.config.Domain) == "" {
			return fmt.Errorf("domain is required when Let's Encrypt is enabled")
		}
		if strings.TrimSpace(tm.config.LetsEncryptEmail) == "" {
			return fmt.Errorf("letsencrypt_email is required when Let's Encrypt is enabled")
		}
		return nil
	}
	if tm.config.CertFile == "" || tm.config.KeyFile == "" {
		return fmt.Errorf("cert_file and key_file are required for manual TLS")
	}
	return nil
}

func (tm *TLSManager) initializeLetsEncrypt() error {
	logger.Info(logger.AreaSecurity, "Initializing Let's Encrypt for domain: %s", tm.config.Domain)

	if err := os.MkdirAll(tm.config.CertCacheDir, 0700); err != nil {
		return fmt.Errorf("failed to create certificate cache directory: %w", err)
	}

	tm.autocertMgr = &autocert.Manager{
		Cache:      autocert.DirCache(tm.config.CertCacheDir),
		Prompt:     autocert.AcceptTOS,
		Email:      tm.config.LetsEncryptEmail,
		HostPolicy: autocert.HostWhitelist(tm.config.Domain, "www."+tm.config.Domain),
	}

	tm.tlsConfig = &tls.Config{
		GetCertificate: func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
			if hello.ServerName == "" {
				hello.ServerName = tm.config.Domain
			}
			cert, err := tm.autocertMgr.GetCertificate(hello)
			if err != nil {
				logger.SecurityWarn("Failed to get certificate for %s: %v", hello.ServerName, err)
				return nil, err
			}
			return cert, nil
		},
		NextProtos: []string{"h2", "http/1.1", "acme-tls/1"},
		MinVersion: tls.VersionTLS12,
	}
	return nil
}

func (tm *TLSManager) initializeManualTLS() error {
	_, certErr := os.Stat(tm.config.CertFile)
	_, keyErr := os.Stat(tm.config.KeyFile)
	if os.IsNotExist(certErr) || os.IsNotExist(keyErr) {
		if !tm.config.GenerateSelfSigned {
			return fmt.Errorf("certificate or key file not found: %s, %s", tm.config.CertFile, tm.config.KeyFile)
		}
		if err := tm.GenerateSelfSignedCert(); err != nil {
			return err
		}
	}

	cert, err := tls.LoadX509KeyPair(tm.config.CertFile, tm.config.KeyFile)
	if err != nil {
		return fmt.Errorf("failed to load key pair: %w", err)
	}
	tm.tlsConfig = &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	logger.Info(logger.AreaSecurity, "Manual TLS initialized with cert: %s", tm.config.CertFile)
	return nil
}

// GetTLSConfig returns nil when TLS is disabled.
func (tm *TLSManager) GetTLSConfig() *tls.Config {
	if !tm.config.EnableTLS {
		return nil
	}
	return tm.tlsConfig
}

// GetHTTPHandler wraps fallback with the ACME HTTP-01 challenge handler. It
// returns fallback unchanged when Let's Encrypt is off.
func (tm *TLSManager) GetHTTPHandler(fallback http.Handler) http.Handler {
	if tm.autocertMgr != nil {
		return tm.autocertMgr.HTTPHandler(fallback)
	}
	return fallback
}

// GetHTTPSRedirectHandler redirects plain HTTP requests to the HTTPS port.
func (tm *TLSManager) GetHTTPSRedirectHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		target := "https://" + host
		if tm.config.HTTPSPort != "443" {
			target += ":" + tm.config.HTTPSPort
		}
		http.Redirect(w, r, target+r.RequestURI, http.StatusMovedPermanently)
	})
}

// NeedsHTTPServer reports whether a plain HTTP listener must run next to the
// HTTPS one, for ACME challenges or redirects.
func (tm *TLSManager) NeedsHTTPServer() bool {
	return tm.config.EnableTLS && (tm.config.EnableLetsEncrypt || tm.config.ForceHTTPSRedirect)
}

func (tm *TLSManager) IsEnabled() bool      { return tm.config.EnableTLS }
func (tm *TLSManager) GetHTTPPort() string  { return tm.config.HTTPPort }
func (tm *TLSManager) GetHTTPSPort() string { return tm.config.HTTPSPort }
func (tm *TLSManager) GetDomain() string    { return tm.config.Domain }
func (tm *TLSManager) ForceRedirect() bool  { return tm.config.ForceHTTPSRedirect }
func (tm *TLSManager) LetsEncrypt() bool    { return tm.config.EnableLetsEncrypt }

// GenerateSelfSignedCert writes a one-year ECDSA certificate for localhost
// (and Domain, if set) to CertFile and KeyFile.
func (tm *TLSManager) GenerateSelfSignedCert() error {
	if tm.config.EnableLetsEncrypt {
		return fmt.Errorf("cannot generate self-signed certificate when Let's Encrypt is enabled")
	}
	logger.SecurityWarn("Generating self-signed certificate at %s - do not use in production", tm.config.CertFile)

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("failed to generate serial: %w", err)
	}

	hosts := []string{"localhost"}
	if tm.config.Domain != "" {
		hosts = append(hosts, tm.config.Domain)
	}
	now := time.Now()
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"catterm"}, CommonName: hosts[len(hosts)-1]},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.AddDate(1, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              hosts,
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1"), net.IPv6loopback},
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("failed to create certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return fmt.Errorf("failed to marshal key: %w", err)
	}

	if err := writePEM(tm.config.CertFile, "CERTIFICATE", der, 0644); err != nil {
		return err
	}
	return writePEM(tm.config.KeyFile, "EC PRIVATE KEY", keyDER, 0600)
}

func writePEM(path, blockType string, der []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
