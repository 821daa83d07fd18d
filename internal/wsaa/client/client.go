// Package client invoca la operación LoginCms del WSAA por SOAP y traduce la
// respuesta a un wsaa.AccessTicket. No reintenta: un reintento ciego
// duplicaría firmas y podría chocar con el TA recién emitido.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dropDatabas3/wsaa/internal/observability/logger"
	"github.com/dropDatabas3/wsaa/internal/wsaa"
)

const (
	// Endpoints públicos del WSAA.
	EndpointHomologation = "https://wsaahomo.afip.gov.ar/ws/services/LoginCms"
	EndpointProduction   = "https://wsaa.afip.gov.ar/ws/services/LoginCms"

	DefaultTimeout = 30 * time.Second

	maxResponseBytes = 1 << 20
)

// ResolveEndpoint acepta los alias "homologation"/"homo" y "production"/"prod"
// o una URL completa, que se devuelve tal cual.
func ResolveEndpoint(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "homologation", "homo", "testing":
		return EndpointHomologation
	case "production", "prod":
		return EndpointProduction
	}
	return strings.TrimSpace(v)
}

// Config configura el cliente.
type Config struct {
	Endpoint string
	Timeout  time.Duration

	// ProxyURL fuerza un proxy HTTP(S) saliente. Vacío usa las variables de
	// entorno estándar (HTTPS_PROXY, NO_PROXY).
	ProxyURL string
	// CAFile es un bundle PEM de CAs de confianza para el TLS del WSAA.
	// Vacío usa el pool del sistema.
	CAFile string

	// Location interpreta timestamps sin zona en la respuesta.
	Location *time.Location

	// HTTPClient reemplaza el cliente construido a partir de la config.
	HTTPClient *http.Client
}

// Client habla con el WSAA. Seguro para uso concurrente.
type Client struct {
	endpoint string
	timeout  time.Duration
	loc      *time.Location
	http     *http.Client
}

// New valida la configuración y arma el transporte HTTP.
func New(cfg Config) (*Client, error) {
	endpoint := ResolveEndpoint(cfg.Endpoint)
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("client: invalid endpoint %q", cfg.Endpoint)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	hc := cfg.HTTPClient
	if hc == nil {
		tr, err := buildTransport(cfg)
		if err != nil {
			return nil, err
		}
		hc = &http.Client{Timeout: timeout, Transport: tr}
	}

	return &Client{endpoint: endpoint, timeout: timeout, loc: loc, http: hc}, nil
}

func buildTransport(cfg Config) (*http.Transport, error) {
	tr := http.DefaultTransport.(*http.Transport).Clone()

	if p := strings.TrimSpace(cfg.ProxyURL); p != "" {
		pu, err := url.Parse(p)
		if err != nil || pu.Host == "" {
			return nil, fmt.Errorf("client: invalid proxy url %q", p)
		}
		tr.Proxy = http.ProxyURL(pu)
	}

	if f := strings.TrimSpace(cfg.CAFile); f != "" {
		pemData, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("client: read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pemData) {
			return nil, fmt.Errorf("client: no certificates found in %s", f)
		}
		tr.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	}
	return tr, nil
}

// Endpoint devuelve la URL del WSAA configurada.
func (c *Client) Endpoint() string { return c.endpoint }

// LoginCMS envía el CMS firmado y devuelve el ticket emitido.
//
// Errores: wsaa.ErrTransport (red, timeout, status no-2xx sin SOAP Fault) o
// wsaa.ErrProtocol (respuesta sin token/sign/expirationTime, XML inválido,
// SOAP Fault; el fault queda disponible vía errors.As *wsaa.AuthorityFault).
func (c *Client) LoginCMS(ctx context.Context, cms []byte) (*wsaa.AccessTicket, error) {
	const op = "client.LoginCMS"
	log := logger.From(ctx).With(logger.Layer("client"), logger.Op("LoginCMS"), logger.Endpoint(c.endpoint))

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(BuildEnvelope(cms)))
	if err != nil {
		return nil, wsaa.E(wsaa.ErrTransport, op, err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", `""`)
	req.Header.Set("Accept", "text/xml")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.Error("wsaa call failed", logger.Err(err), logger.Bool("timeout", wsaa.IsTimeout(err)))
		return nil, wsaa.E(wsaa.ErrTransport, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, wsaa.E(wsaa.ErrTransport, op, fmt.Errorf("read response: %w", err))
	}
	log = log.With(logger.Status(resp.StatusCode), logger.Duration(time.Since(start)))

	ret, fault, perr := parseEnvelope(body)
	if fault != nil {
		log.Warn("wsaa returned soap fault", logger.String("faultcode", fault.Code), logger.String("faultstring", fault.String))
		return nil, wsaa.E(wsaa.ErrProtocol, op, fault)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Error("wsaa unexpected status")
		return nil, wsaa.E(wsaa.ErrTransport, op, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	if perr != nil {
		log.Error("wsaa response is not a LoginCms envelope", logger.Err(perr))
		return nil, wsaa.E(wsaa.ErrProtocol, op, perr)
	}

	t, err := ParseLoginTicketResponse([]byte(ret), c.loc)
	if err != nil {
		log.Error("invalid loginTicketResponse", logger.Err(err))
		return nil, wsaa.E(wsaa.ErrProtocol, op, err)
	}

	log.Info("access ticket issued",
		logger.Time("expires_at", t.ExpiresAt),
		logger.UniqueID(t.UniqueID),
	)
	return t, nil
}

// IsAlreadyAuthenticated es un atajo para el fault coe.alreadyAuthenticated.
func IsAlreadyAuthenticated(err error) bool {
	return errors.Is(err, wsaa.ErrAlreadyAuthenticated)
}
