// Package signer envuelve el loginTicketRequest en un CMS SignedData
// (PKCS#7) firmado con RSA/SHA-256, usando la clave y el certificado de un
// keystore PKCS#12. El certificado firmante (no la cadena) viaja embebido
// para que el WSAA pueda verificar el origen sin intercambio previo.
package signer

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/dropDatabas3/wsaa/internal/observability/logger"
	"github.com/dropDatabas3/wsaa/internal/wsaa"
	"go.mozilla.org/pkcs7"
)

// Sign firma document con las credenciales dadas. Lee el keystore en cada
// llamada.
func Sign(document []byte, creds wsaa.Credentials) ([]byte, error) {
	ks, err := LoadKeystore(creds)
	if err != nil {
		return nil, err
	}
	return SignWith(document, ks)
}

// SignWith firma document con un keystore ya cargado.
func SignWith(document []byte, ks *Keystore) ([]byte, error) {
	const op = "signer.Sign"

	key, ok := ks.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, wsaa.E(wsaa.ErrSignatureFailure, op, fmt.Errorf("private key for alias %q is %T, want RSA", ks.Alias, ks.PrivateKey))
	}
	pub, ok := ks.Certificate.PublicKey.(*rsa.PublicKey)
	if !ok || !pub.Equal(&key.PublicKey) {
		return nil, wsaa.E(wsaa.ErrSignatureFailure, op, errors.New("certificate does not match private key"))
	}

	sd, err := pkcs7.NewSignedData(document)
	if err != nil {
		return nil, wsaa.E(wsaa.ErrSignatureFailure, op, err)
	}
	sd.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)
	if err := sd.AddSigner(ks.Certificate, key, pkcs7.SignerInfoConfig{}); err != nil {
		return nil, wsaa.E(wsaa.ErrSignatureFailure, op, err)
	}
	der, err := sd.Finish()
	if err != nil {
		return nil, wsaa.E(wsaa.ErrSignatureFailure, op, err)
	}
	return der, nil
}

// Verify parsea un envelope y verifica la firma contra el certificado
// embebido. Devuelve el contenido firmado y el certificado firmante.
func Verify(envelope []byte) ([]byte, *x509.Certificate, error) {
	p7, err := pkcs7.Parse(envelope)
	if err != nil {
		return nil, nil, fmt.Errorf("parse cms: %w", err)
	}
	if err := p7.Verify(); err != nil {
		return nil, nil, fmt.Errorf("verify cms: %w", err)
	}
	return p7.Content, p7.GetOnlySigner(), nil
}

// Signer firma con un juego fijo de credenciales (una identidad por proceso).
type Signer struct {
	creds wsaa.Credentials
}

// New crea un Signer para creds.
func New(creds wsaa.Credentials) *Signer {
	return &Signer{creds: creds}
}

// Sign implementa broker.Signer.
func (s *Signer) Sign(ctx context.Context, document []byte) ([]byte, error) {
	log := logger.From(ctx).With(logger.Layer("signer"), logger.Op("Sign"), logger.Alias(s.creds.SignerAlias))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	der, err := Sign(document, s.creds)
	if err != nil {
		log.Error("cms signing failed", logger.Err(err))
		return nil, err
	}
	log.Debug("cms signed", logger.Int("bytes", len(der)))
	return der, nil
}

// Check verifica que el keystore se pueda abrir y que el alias exista.
// Devuelve el certificado firmante para que /readyz informe su vencimiento.
func (s *Signer) Check(ctx context.Context) (*x509.Certificate, error) {
	ks, err := LoadKeystore(s.creds)
	if err != nil {
		logger.From(ctx).Warn("keystore check failed", logger.Layer("signer"), logger.Err(err))
		return nil, err
	}
	return ks.Certificate, nil
}
