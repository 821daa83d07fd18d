package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/wsaa/internal/observability/logger"
	"github.com/dropDatabas3/wsaa/internal/util/atomicwrite"
)

type client struct {
	BaseURL   string
	OutFormat string // "json" | "text"
	HTTP      *http.Client
}

func (c *client) do(method, path string) (int, []byte, error) {
	u := strings.TrimRight(c.BaseURL, "/") + path
	req, err := http.NewRequest(method, u, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	logger.S().Debugw("http request", "method", method, "url", u)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	logger.S().Debugw("http response", "status", resp.StatusCode, "bytes", len(b))
	return resp.StatusCode, b, nil
}

func (c *client) print(w io.Writer, status int, body []byte) {
	if c.OutFormat == "json" {
		var v any
		if json.Unmarshal(body, &v) == nil {
			p, _ := json.MarshalIndent(v, "", "  ")
			fmt.Fprintln(w, string(p))
			return
		}
	}
	if len(body) > 0 {
		fmt.Fprintln(w, strings.TrimRight(string(body), "\n"))
	} else {
		fmt.Fprintf(w, "status=%d\n", status)
	}
}

func newRootCmd() *cobra.Command {
	var (
		baseURL = envOr("WSAA_URL", "http://localhost:8080")
		out     = envOr("WSAA_OUT", "text")
		timeout = 60 * time.Second
		verbose bool
	)
	cl := &client{}

	root := &cobra.Command{
		Use:           "wsaactl",
		Short:         "CLI para el servicio WSAA (tickets de acceso AFIP)",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := "warn"
			if verbose {
				level = "debug"
			}
			logger.Init(logger.Config{Env: "dev", Level: level, OutputPaths: []string{"stderr"}})

			if out != "json" && out != "text" {
				return fmt.Errorf("--out-format debe ser json|text")
			}
			cl.BaseURL = baseURL
			cl.OutFormat = out
			cl.HTTP = &http.Client{Timeout: timeout}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&baseURL, "url", baseURL, "URL base del servicio (env WSAA_URL)")
	root.PersistentFlags().StringVar(&out, "out-format", out, "Formato de salida: json|text (env WSAA_OUT)")
	root.PersistentFlags().DurationVar(&timeout, "timeout", timeout, "Timeout HTTP")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Logs de debug por stderr")

	// ticket: GET /auth/afip/authenticate
	var ticketService, ticketFile string
	ticketCmd := &cobra.Command{
		Use:   "ticket",
		Short: "Obtiene el ticket vigente (el servicio lo renueva si hace falta)",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/auth/afip/authenticate"
			if ticketService != "" {
				path += "?service=" + url.QueryEscape(ticketService)
			}
			status, body, err := cl.do(http.MethodGet, path)
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("ticket fallo: status=%d body=%s", status, bytes.TrimSpace(body))
			}
			if ticketFile != "" {
				if err := atomicwrite.AtomicWriteFile(ticketFile, body, 0o600); err != nil {
					return fmt.Errorf("escribir %s: %w", ticketFile, err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "ticket escrito en %s\n", ticketFile)
				return nil
			}
			cl.print(cmd.OutOrStdout(), status, body)
			return nil
		},
	}
	ticketCmd.Flags().StringVar(&ticketService, "service", "", "Service id esperado (opcional, la instancia atiende uno solo)")
	ticketCmd.Flags().StringVar(&ticketFile, "file", "", "Escribe el ticket JSON en este archivo (atómico, 0600)")

	// invalidate: DELETE /auth/afip/ticket
	invalidateCmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Descarta el ticket cacheado; el próximo pedido renueva",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cl.do(http.MethodDelete, "/auth/afip/ticket")
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("invalidate fallo: status=%d body=%s", status, bytes.TrimSpace(body))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}

	// readyz
	readyzCmd := &cobra.Command{
		Use:   "readyz",
		Short: "Estado del store y del keystore",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cl.do(http.MethodGet, "/readyz")
			if err != nil {
				return err
			}
			cl.print(cmd.OutOrStdout(), status, body)
			if status/100 != 2 {
				return fmt.Errorf("readyz: status=%d", status)
			}
			return nil
		},
	}

	root.AddCommand(ticketCmd, invalidateCmd, readyzCmd, newRequestCmd(), newCMSCmd())
	return root
}

func main() {
	defer func() { _ = logger.Sync() }()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
