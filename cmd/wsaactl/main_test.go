package main

import (
	"bytes"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/wsaa/internal/wsaa/signer"
	"github.com/dropDatabas3/wsaa/internal/wsaa/signer/signertest"
)

func run(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errb bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errb)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errb.String(), err
}

func fakeService(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/afip/authenticate", func(w http.ResponseWriter, r *http.Request) {
		if s := r.URL.Query().Get("service"); s != "" && s != "wsfe" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":"NOT_FOUND","message":"not found"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"T1","sign":"S1","service":"wsfe"}`))
	})
	mux.HandleFunc("/auth/afip/ticket", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unavailable"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestTicket(t *testing.T) {
	srv := fakeService(t)

	out, _, err := run(t, "--url", srv.URL, "--out-format", "json", "ticket")
	require.NoError(t, err)
	require.Contains(t, out, `"token": "T1"`)

	_, _, err = run(t, "--url", srv.URL, "ticket", "--service", "wsmtxca")
	require.ErrorContains(t, err, "status=404")
}

func TestTicket_File(t *testing.T) {
	srv := fakeService(t)
	path := filepath.Join(t.TempDir(), "ta", "wsfe.json")

	out, stderr, err := run(t, "--url", srv.URL, "ticket", "--file", path)
	require.NoError(t, err)
	require.Empty(t, out)
	require.Contains(t, stderr, path)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.JSONEq(t, `{"token":"T1","sign":"S1","service":"wsfe"}`, string(b))
}

func TestInvalidateAndReadyz(t *testing.T) {
	srv := fakeService(t)

	out, _, err := run(t, "--url", srv.URL, "invalidate")
	require.NoError(t, err)
	require.Equal(t, "ok\n", out)

	out, _, err = run(t, "--url", srv.URL, "readyz")
	require.ErrorContains(t, err, "status=503")
	require.Contains(t, out, "unavailable")
}

func TestBadOutFormat(t *testing.T) {
	_, _, err := run(t, "--out-format", "yaml", "readyz")
	require.ErrorContains(t, err, "json|text")
}

func TestRequest(t *testing.T) {
	out, _, err := run(t, "request", "--service", "wsmtxca", "--layout", "zoned", "--location", "UTC")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "<?xml"))
	require.Contains(t, out, `<loginTicketRequest version="1.0">`)
	require.Contains(t, out, "<service>wsmtxca</service>")
	require.Contains(t, out, "+00:00</expirationTime>")

	_, _, err = run(t, "request", "--layout", "rfc1123")
	require.Error(t, err)
}

func TestCMS(t *testing.T) {
	const alias, pass = "wsaactl-test", "changeit"
	id := signertest.NewIdentity(t, alias)
	ks := signertest.WriteFile(t, id.Legacy(t, pass))

	out, stderr, err := run(t, "cms", "--keystore", ks, "--password", pass, "--alias", alias, "--service", "wsfe", "--verify")
	require.NoError(t, err)
	require.Contains(t, stderr, `signer="wsaactl-test"`)

	der, err := base64.StdEncoding.DecodeString(strings.TrimSpace(out))
	require.NoError(t, err)
	content, cert, err := signer.Verify(der)
	require.NoError(t, err)
	require.Equal(t, alias, cert.Subject.CommonName)
	require.Contains(t, string(content), "<service>wsfe</service>")

	_, _, err = run(t, "cms", "--keystore", ks, "--password", "wrong", "--alias", alias)
	require.Error(t, err)

	_, _, err = run(t, "cms", "--alias", alias)
	require.ErrorContains(t, err, "--keystore")
}
