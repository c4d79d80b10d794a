package cli

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jhoicas/siga-gateway/internal/domain"
	"github.com/jhoicas/siga-gateway/internal/domain/entity"
)

func newContainerCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "container",
		Aliases: []string{"c"},
		Short:   "Contenedores hashcode: crear, importar, exportar y editar archivos de datos",
	}
	cmd.AddCommand(
		newContainerCreateCommand(a),
		newContainerUploadCommand(a),
		newContainerExportCommand(a),
		newContainerShowCommand(a),
		newContainerDeleteCommand(a),
		newContainerAddFileCommand(a),
		newContainerRemoveFileCommand(a),
		newContainerSignatureCommand(a),
	)
	return cmd
}

const fileFlagHelp = "archivo de datos nombre:tamaño:sha256b64[:sha512b64] (repetible)"

func newContainerCreateCommand(a *app) *cobra.Command {
	var files []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Crea un contenedor a partir de los digests de sus archivos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			digests, err := parseFileFlags(files)
			if err != nil {
				return err
			}
			svc, err := a.services(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.close()
			id, err := svc.containers.Create(cmd.Context(), digests)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{"containerId": id})
		},
	}
	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, fileFlagHelp)
	return cmd
}

func newContainerUploadCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <archivo.asice>",
		Short: "Importa un contenedor hashcode existente",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("leer %s: %w", args[0], err)
			}
			svc, err := a.services(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.close()
			id, err := svc.containers.Upload(cmd.Context(), archive)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{"containerId": id})
		},
	}
}

func newContainerExportCommand(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export <containerId>",
		Short: "Exporta el contenedor hashcode con sus firmas",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.close()
			archive, err := svc.containers.Export(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(archive)
				return err
			}
			return os.WriteFile(out, archive, 0o644)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "archivo destino (por defecto stdout)")
	return cmd
}

func newContainerShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <containerId>",
		Short: "Muestra archivos de datos, firmas y operación en curso",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.close()
			s, err := svc.containers.Session(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), newSessionView(s))
		},
	}
}

func newContainerDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <containerId>",
		Short: "Elimina la sesión del contenedor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.close()
			return svc.containers.Delete(cmd.Context(), args[0])
		},
	}
}

func newContainerAddFileCommand(a *app) *cobra.Command {
	var files []string
	cmd := &cobra.Command{
		Use:   "add-file <containerId>",
		Short: "Agrega archivos de datos a un contenedor sin firmas",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			digests, err := parseFileFlags(files)
			if err != nil {
				return err
			}
			svc, err := a.services(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.close()
			return svc.containers.AddDataFiles(cmd.Context(), args[0], digests...)
		},
	}
	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, fileFlagHelp)
	return cmd
}

func newContainerRemoveFileCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-file <containerId> <nombre>",
		Short: "Quita un archivo de datos de un contenedor sin firmas",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.close()
			return svc.containers.DeleteDataFile(cmd.Context(), args[0], args[1])
		},
	}
}

func newContainerSignatureCommand(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "signature <containerId> <índice>",
		Short: "Escribe el XML de una firma recolectada",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("%w: índice %q", domain.ErrInvalidInput, args[1])
			}
			svc, err := a.services(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.close()
			sigs, err := svc.containers.Signatures(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if index < 0 || index >= len(sigs) {
				return fmt.Errorf("%w: firma %d (el contenedor tiene %d)", domain.ErrNotFound, index, len(sigs))
			}
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(sigs[index].Signature)
				return err
			}
			return os.WriteFile(out, sigs[index].Signature, 0o644)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "archivo destino (por defecto stdout)")
	return cmd
}

// parseFileFlags interpreta "nombre:tamaño:sha256b64[:sha512b64]". Base64 no usa ':' y los nombres tampoco pueden.
func parseFileFlags(values []string) ([]entity.DataFileDigest, error) {
	out := make([]entity.DataFileDigest, 0, len(values))
	for _, v := range values {
		parts := strings.Split(v, ":")
		if len(parts) < 3 || len(parts) > 4 {
			return nil, fmt.Errorf("%w: --file %q debe ser nombre:tamaño:sha256[:sha512]", domain.ErrInvalidInput, v)
		}
		size, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: tamaño %q inválido", domain.ErrInvalidInput, parts[1])
		}
		sha512 := ""
		if len(parts) == 4 {
			sha512 = parts[3]
		}
		f, err := entity.NewDataFileDigestFromBase64(parts[0], size, parts[2], sha512)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// ── Vistas JSON ──────────────────────────────────────────────────────────────

type dataFileView struct {
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
	SHA512 string `json:"sha512,omitempty"`
}

type signatureView struct {
	Index     int                                      `json:"index"`
	Bytes     int                                      `json:"bytes"`
	DataFiles map[string]entity.SignatureDataFileEntry `json:"dataFiles"`
}

type sessionView struct {
	ContainerID      string              `json:"containerId"`
	State            entity.SessionState `json:"state"`
	PendingOperation entity.SigningType  `json:"pendingOperation,omitempty"`
	DataFiles        []dataFileView      `json:"dataFiles"`
	Signatures       []signatureView     `json:"signatures"`
	Revision         int64               `json:"revision"`
	UpdatedAt        time.Time           `json:"updatedAt"`
}

func newSessionView(s *entity.SigningSession) sessionView {
	v := sessionView{
		ContainerID: s.ContainerID,
		State:       s.State(),
		DataFiles:   make([]dataFileView, 0, len(s.DataFiles)),
		Signatures:  make([]signatureView, 0, len(s.Signatures)),
		Revision:    s.Revision,
		UpdatedAt:   s.UpdatedAt,
	}
	if s.PendingOperation != nil {
		v.PendingOperation = s.PendingOperation.Type
	}
	for _, f := range s.DataFiles {
		fv := dataFileView{Name: f.Name, Size: f.Size, SHA256: base64.StdEncoding.EncodeToString(f.SHA256)}
		if f.SHA512 != nil {
			fv.SHA512 = base64.StdEncoding.EncodeToString(f.SHA512)
		}
		v.DataFiles = append(v.DataFiles, fv)
	}
	for i, sig := range s.Signatures {
		v.Signatures = append(v.Signatures, signatureView{Index: i, Bytes: len(sig.Signature), DataFiles: sig.DataFiles})
	}
	return v
}
