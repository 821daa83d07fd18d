package signer

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"path/filepath"
	"testing"

	"github.com/dropDatabas3/wsaa/internal/wsaa"
	"github.com/dropDatabas3/wsaa/internal/wsaa/signer/signertest"
	"github.com/stretchr/testify/require"
)

const (
	testAlias = "wsaa-test"
	testPass  = "changeit"
)

var testDoc = []byte(`<?xml version="1.0" encoding="UTF-8"?>
<loginTicketRequest version="1.0"><header><uniqueId>1718001200</uniqueId><generationTime>2024-06-10T03:33:20</generationTime><expirationTime>2024-06-10T15:33:20</expirationTime></header><service>wsfe</service></loginTicketRequest>`)

func legacyCreds(t *testing.T, id *signertest.Identity) wsaa.Credentials {
	t.Helper()
	return wsaa.Credentials{
		KeystorePath:     signertest.WriteFile(t, id.Legacy(t, testPass)),
		KeystorePassword: testPass,
		SignerAlias:      testAlias,
	}
}

func TestSign_VerifiesTwice(t *testing.T) {
	id := signertest.NewIdentity(t, testAlias)
	creds := legacyCreds(t, id)

	first, err := Sign(testDoc, creds)
	require.NoError(t, err)
	second, err := Sign(testDoc, creds)
	require.NoError(t, err)

	for _, env := range [][]byte{first, second} {
		content, cert, err := Verify(env)
		require.NoError(t, err)
		require.Equal(t, testDoc, content, "content is attached")
		require.True(t, cert.Equal(id.Certificate), "signer certificate is embedded")
	}
}

func TestSign_ModernKeystoreFallsBackToCN(t *testing.T) {
	id := signertest.NewIdentity(t, testAlias)
	creds := wsaa.Credentials{
		KeystorePath:     signertest.WriteFile(t, id.Modern(t, testPass)),
		KeystorePassword: testPass,
		SignerAlias:      "WSAA-TEST",
	}

	env, err := Sign(testDoc, creds)
	require.NoError(t, err)
	_, cert, err := Verify(env)
	require.NoError(t, err)
	require.Equal(t, testAlias, cert.Subject.CommonName)
}

func TestSign_Errors(t *testing.T) {
	id := signertest.NewIdentity(t, testAlias)
	good := legacyCreds(t, id)

	t.Run("missing file", func(t *testing.T) {
		c := good
		c.KeystorePath = filepath.Join(t.TempDir(), "nope.p12")
		_, err := Sign(testDoc, c)
		require.ErrorIs(t, err, wsaa.ErrKeystoreUnreadable)
		require.ErrorIs(t, err, wsaa.ErrSigning)
	})

	t.Run("wrong password", func(t *testing.T) {
		c := good
		c.KeystorePassword = "wrong"
		_, err := Sign(testDoc, c)
		require.ErrorIs(t, err, wsaa.ErrKeystoreUnreadable)
	})

	t.Run("wrong password modern", func(t *testing.T) {
		c := wsaa.Credentials{
			KeystorePath:     signertest.WriteFile(t, id.Modern(t, testPass)),
			KeystorePassword: "wrong",
			SignerAlias:      testAlias,
		}
		_, err := Sign(testDoc, c)
		require.ErrorIs(t, err, wsaa.ErrKeystoreUnreadable)
	})

	t.Run("garbage", func(t *testing.T) {
		c := good
		c.KeystorePath = signertest.WriteFile(t, []byte("not a pkcs12"))
		_, err := Sign(testDoc, c)
		require.ErrorIs(t, err, wsaa.ErrKeystoreUnreadable)
	})

	t.Run("alias not found", func(t *testing.T) {
		c := good
		c.SignerAlias = "otro"
		_, err := Sign(testDoc, c)
		require.ErrorIs(t, err, wsaa.ErrAliasNotFound)
		require.ErrorIs(t, err, wsaa.ErrSigning)
	})
}

func TestSignWith_RejectsMismatchedKey(t *testing.T) {
	a := signertest.NewIdentity(t, testAlias)
	b := signertest.NewIdentity(t, testAlias)

	_, err := SignWith(testDoc, &Keystore{Alias: testAlias, PrivateKey: a.Key, Certificate: b.Certificate})
	require.ErrorIs(t, err, wsaa.ErrSignatureFailure)
}

func TestSignWith_RejectsNonRSA(t *testing.T) {
	id := signertest.NewIdentity(t, testAlias)
	ec, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	_, err = SignWith(testDoc, &Keystore{Alias: testAlias, PrivateKey: ec, Certificate: id.Certificate})
	require.ErrorIs(t, err, wsaa.ErrSignatureFailure)
}

func TestFromPEMBlocks_FriendlyNames(t *testing.T) {
	afip := signertest.NewIdentity(t, "cn-afip")
	other := signertest.NewIdentity(t, "cn-other")

	blocks := []*pem.Block{
		keyBlock(other, "other", "01"),
		certBlock(other, "other", "01"),
		keyBlock(afip, "afip", "02"),
		certBlock(afip, "afip", "02"),
		// trustedCertEntry sin clave
		{Type: "CERTIFICATE", Headers: map[string]string{"friendlyName": "ca"}, Bytes: other.Certificate.Raw},
	}

	ks, err := fromPEMBlocks(blocks, "AFIP")
	require.NoError(t, err)
	require.True(t, ks.Certificate.Equal(afip.Certificate))
	require.True(t, afip.Key.Equal(ks.PrivateKey))

	_, err = fromPEMBlocks(blocks, "ca")
	require.ErrorIs(t, err, wsaa.ErrAliasNotFound)

	// con friendlyName presentes, el CN no cuenta como alias
	_, err = fromPEMBlocks(blocks, "cn-afip")
	require.ErrorIs(t, err, wsaa.ErrAliasNotFound)
}

func TestSigner_SignAndCheck(t *testing.T) {
	id := signertest.NewIdentity(t, testAlias)
	s := New(legacyCreds(t, id))

	env, err := s.Sign(context.Background(), testDoc)
	require.NoError(t, err)
	content, _, err := Verify(env)
	require.NoError(t, err)
	require.True(t, bytes.Equal(testDoc, content))

	cert, err := s.Check(context.Background())
	require.NoError(t, err)
	require.True(t, cert.Equal(id.Certificate))
}

func TestSigner_CancelledContext(t *testing.T) {
	id := signertest.NewIdentity(t, testAlias)
	s := New(legacyCreds(t, id))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Sign(ctx, testDoc)
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, wsaa.ErrSigning)
}

func TestVerify_RejectsTampered(t *testing.T) {
	id := signertest.NewIdentity(t, testAlias)
	env, err := SignWith(testDoc, &Keystore{Alias: testAlias, PrivateKey: id.Key, Certificate: id.Certificate})
	require.NoError(t, err)

	i := bytes.Index(env, []byte("wsfe"))
	require.Positive(t, i)
	tampered := append([]byte(nil), env...)
	tampered[i] = 'X'

	_, _, err = Verify(tampered)
	require.Error(t, err)
}

func keyBlock(id *signertest.Identity, name, keyID string) *pem.Block {
	return &pem.Block{
		Type:    "PRIVATE KEY",
		Headers: map[string]string{"friendlyName": name, "localKeyId": keyID},
		Bytes:   x509.MarshalPKCS1PrivateKey(id.Key),
	}
}

func certBlock(id *signertest.Identity, name, keyID string) *pem.Block {
	return &pem.Block{
		Type:    "CERTIFICATE",
		Headers: map[string]string{"friendlyName": name, "localKeyId": keyID},
		Bytes:   id.Certificate.Raw,
	}
}
