// Package cli comandos cobra del binario siga.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jhoicas/siga-gateway/pkg/config"
	"github.com/jhoicas/siga-gateway/pkg/logger"
)

// app estado compartido por los subcomandos; se llena en PersistentPreRunE.
type app struct {
	cfg *config.Config
	log *logger.Logger
}

// NewRootCommand arma el árbol de comandos.
func NewRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:               "siga",
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		Short:             "Gateway de firma de contenedores hashcode",
		Long:              "Crea contenedores ASiC-E hashcode y los firma por firma remota, Mobile-ID o Smart-ID.",
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("cargar configuración: %w", err)
			}
			a.cfg = cfg
			a.log = logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel, Output: cmd.ErrOrStderr()})
			return nil
		},
	}
	root.AddCommand(
		newServeCommand(a),
		newContainerCommand(a),
		newSignCommand(a),
		newCertCommand(),
	)
	return root
}

// Execute ejecuta el comando raíz y termina el proceso con código 1 ante error.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
