// Package signertest genera identidades de prueba (clave RSA + certificado
// autofirmado empaquetados en PKCS#12) para tests de firma.
package signertest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	gopkcs12 "software.sslmate.com/src/go-pkcs12"
)

// Identity es una clave + certificado de prueba.
type Identity struct {
	Key         *rsa.PrivateKey
	Certificate *x509.Certificate
}

// NewIdentity genera una identidad RSA-2048 con CN cn, válida desde una hora
// atrás hasta dentro de 24 horas.
func NewIdentity(t testing.TB, cn string) *Identity {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		t.Fatalf("serial: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   cn,
			Organization: []string{"wsaa test"},
			SerialNumber: "CUIT 20111111112",
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	return &Identity{Key: key, Certificate: cert}
}

// Legacy codifica la identidad con 3DES + MAC SHA-1 (el formato que lee
// x/crypto/pkcs12).
func (id *Identity) Legacy(t testing.TB, password string) []byte {
	t.Helper()
	pfx, err := gopkcs12.LegacyDES.Encode(id.Key, id.Certificate, nil, password)
	if err != nil {
		t.Fatalf("encode legacy pkcs12: %v", err)
	}
	return pfx
}

// Modern codifica la identidad con PBES2/AES + MAC SHA-256.
func (id *Identity) Modern(t testing.TB, password string) []byte {
	t.Helper()
	pfx, err := gopkcs12.Modern.Encode(id.Key, id.Certificate, nil, password)
	if err != nil {
		t.Fatalf("encode modern pkcs12: %v", err)
	}
	return pfx
}

// WriteFile escribe pfx en un directorio temporal del test y devuelve la ruta.
func WriteFile(t testing.TB, pfx []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wsaa.p12")
	if err := os.WriteFile(path, pfx, 0o600); err != nil {
		t.Fatalf("write keystore: %v", err)
	}
	return path
}
