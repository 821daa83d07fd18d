package signer

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dropDatabas3/wsaa/internal/wsaa"
	xpkcs12 "golang.org/x/crypto/pkcs12"
	gopkcs12 "software.sslmate.com/src/go-pkcs12"
)

// Keystore es el par clave privada + certificado resuelto para un alias.
type Keystore struct {
	Alias       string
	PrivateKey  crypto.PrivateKey
	Certificate *x509.Certificate
}

// LoadKeystore lee el archivo PKCS#12 de creds y resuelve el alias firmante.
func LoadKeystore(creds wsaa.Credentials) (*Keystore, error) {
	const op = "signer.LoadKeystore"

	data, err := os.ReadFile(creds.KeystorePath)
	if err != nil {
		return nil, wsaa.E(wsaa.ErrKeystoreUnreadable, op, err)
	}
	return DecodeKeystore(data, creds.KeystorePassword, creds.SignerAlias)
}

// DecodeKeystore decodifica un PKCS#12 en memoria.
//
// Primero se usa x/crypto/pkcs12 porque conserva los friendlyName de cada bag
// (los alias que asigna keytool/openssl -name). Si el archivo usa algoritmos
// que x/crypto no implementa (PBES2/AES, default de OpenSSL 3) se cae a
// go-pkcs12; en ese modo no hay friendlyName y el alias se compara contra el
// CN del certificado.
func DecodeKeystore(data []byte, password, alias string) (*Keystore, error) {
	const op = "signer.DecodeKeystore"

	blocks, err := xpkcs12.ToPEM(data, password)
	if err == nil {
		return fromPEMBlocks(blocks, alias)
	}

	var notImpl xpkcs12.NotImplementedError
	if !errors.As(err, &notImpl) {
		return nil, wsaa.E(wsaa.ErrKeystoreUnreadable, op, err)
	}

	key, cert, _, err := gopkcs12.DecodeChain(data, password)
	if err != nil {
		return nil, wsaa.E(wsaa.ErrKeystoreUnreadable, op, err)
	}
	if !aliasMatchesCN(cert, alias) {
		return nil, wsaa.E(wsaa.ErrAliasNotFound, op, fmt.Errorf("alias %q (keystore has no friendly names, certificate CN %q)", alias, cert.Subject.CommonName))
	}
	return &Keystore{Alias: alias, PrivateKey: key, Certificate: cert}, nil
}

type pemEntry struct {
	friendlyName string
	localKeyID   string
	block        *pem.Block
}

func fromPEMBlocks(blocks []*pem.Block, alias string) (*Keystore, error) {
	const op = "signer.DecodeKeystore"

	var certs, keys []pemEntry
	named := false
	for _, b := range blocks {
		e := pemEntry{
			friendlyName: b.Headers["friendlyName"],
			localKeyID:   b.Headers["localKeyId"],
			block:        b,
		}
		if e.friendlyName != "" {
			named = true
		}
		switch b.Type {
		case "CERTIFICATE":
			certs = append(certs, e)
		case "PRIVATE KEY":
			keys = append(keys, e)
		}
	}

	for _, c := range certs {
		cert, err := x509.ParseCertificate(c.block.Bytes)
		if err != nil {
			return nil, wsaa.E(wsaa.ErrKeystoreUnreadable, op, fmt.Errorf("parse certificate: %w", err))
		}

		if named {
			if !strings.EqualFold(c.friendlyName, alias) {
				continue
			}
		} else if !aliasMatchesCN(cert, alias) {
			continue
		}

		k := matchKey(keys, c, alias)
		if k == nil {
			// trustedCertEntry: el alias existe pero no tiene clave privada
			continue
		}
		key, err := parseKey(k.block.Bytes)
		if err != nil {
			return nil, wsaa.E(wsaa.ErrKeystoreUnreadable, op, err)
		}
		return &Keystore{Alias: alias, PrivateKey: key, Certificate: cert}, nil
	}

	return nil, wsaa.E(wsaa.ErrAliasNotFound, op, fmt.Errorf("alias %q", alias))
}

func matchKey(keys []pemEntry, cert pemEntry, alias string) *pemEntry {
	for i := range keys {
		k := &keys[i]
		if cert.localKeyID != "" && k.localKeyID == cert.localKeyID {
			return k
		}
		if k.friendlyName != "" && strings.EqualFold(k.friendlyName, alias) {
			return k
		}
	}
	if len(keys) == 1 && cert.localKeyID == "" {
		return &keys[0]
	}
	return nil
}

// ToPEM devuelve las claves RSA como PKCS#1 y las EC como SEC1, ambas con
// tipo "PRIVATE KEY".
func parseKey(der []byte) (crypto.PrivateKey, error) {
	if k, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return k, nil
	}
	if k, err := x509.ParseECPrivateKey(der); err == nil {
		return k, nil
	}
	if k, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		return k, nil
	}
	return nil, errors.New("unsupported private key encoding")
}

func aliasMatchesCN(cert *x509.Certificate, alias string) bool {
	return cert != nil && alias != "" && strings.EqualFold(cert.Subject.CommonName, alias)
}
