package main

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/wsaa/internal/observability/logger"
	"github.com/dropDatabas3/wsaa/internal/util/atomicwrite"
	"github.com/dropDatabas3/wsaa/internal/wsaa"
	"github.com/dropDatabas3/wsaa/internal/wsaa/request"
	"github.com/dropDatabas3/wsaa/internal/wsaa/signer"
)

// Comandos offline: no hablan con el servicio ni con el WSAA. Sirven para
// diagnosticar keystores y comparar el XML/CMS con el de otras herramientas.

type requestFlags struct {
	service  string
	window   time.Duration
	layout   string
	location string
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.service, "service", envOr("WSAA_SERVICE", "wsfe"), "Service id (wsfe, wsmtxca...)")
	cmd.Flags().DurationVar(&f.window, "window", 12*time.Hour, "Ventana de validez del request")
	cmd.Flags().StringVar(&f.layout, "layout", "local", "Formato de timestamps: local|zoned")
	cmd.Flags().StringVar(&f.location, "location", request.DefaultLocation, "Zona horaria de los timestamps")
}

func (f *requestFlags) build() ([]byte, error) {
	layout, err := request.ParseLayout(f.layout)
	if err != nil {
		return nil, fmt.Errorf("--layout %q: %w", f.layout, err)
	}
	loc, err := time.LoadLocation(f.location)
	if err != nil {
		return nil, fmt.Errorf("--location %q: %w", f.location, err)
	}
	r, err := request.NewBuilder(request.WithLayout(layout), request.WithLocation(loc)).Build(f.service, f.window)
	if err != nil {
		return nil, err
	}
	logger.S().Debugw("request built", "service", r.ServiceID, "unique_id", r.UniqueID, "expires", r.ExpirationTime)
	return r.Marshal()
}

func newRequestCmd() *cobra.Command {
	var f requestFlags
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Imprime un loginTicketRequest (sin firmar)",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := f.build()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(doc))
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newCMSCmd() *cobra.Command {
	var (
		f      requestFlags
		creds  wsaa.Credentials
		verify bool
		file   string
	)
	cmd := &cobra.Command{
		Use:   "cms",
		Short: "Firma un loginTicketRequest y lo imprime en base64 (el in0 de LoginCms)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if creds.KeystorePath == "" || creds.SignerAlias == "" {
				return fmt.Errorf("--keystore y --alias son requeridos")
			}
			doc, err := f.build()
			if err != nil {
				return err
			}
			der, err := signer.Sign(doc, creds)
			if err != nil {
				return err
			}
			if verify {
				content, cert, err := signer.Verify(der)
				if err != nil {
					return fmt.Errorf("verificación: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "firma ok: signer=%q serial=%s notAfter=%s content=%d bytes\n",
					cert.Subject.CommonName, cert.SerialNumber, cert.NotAfter.Format(time.RFC3339), len(content))
			}

			b64 := base64.StdEncoding.EncodeToString(der)
			if file != "" {
				return atomicwrite.AtomicWriteFile(file, []byte(b64+"\n"), 0o600)
			}
			fmt.Fprintln(cmd.OutOrStdout(), b64)
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&creds.KeystorePath, "keystore", envOr("WSAA_KEYSTORE_PATH", ""), "Ruta al keystore PKCS#12 (env WSAA_KEYSTORE_PATH)")
	cmd.Flags().StringVar(&creds.KeystorePassword, "password", envOr("WSAA_KEYSTORE_PASSWORD", ""), "Contraseña del keystore (env WSAA_KEYSTORE_PASSWORD)")
	cmd.Flags().StringVar(&creds.SignerAlias, "alias", envOr("WSAA_KEYSTORE_ALIAS", ""), "Alias del par clave/certificado (env WSAA_KEYSTORE_ALIAS)")
	cmd.Flags().BoolVar(&verify, "verify", false, "Verifica la firma y muestra el certificado por stderr")
	cmd.Flags().StringVar(&file, "file", "", "Escribe el base64 en este archivo en vez de stdout")
	return cmd
}
