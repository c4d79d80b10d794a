package cli

import (
	"crypto"
	"crypto/rand"
	"crypto/sha512"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jhoicas/siga-gateway/internal/domain/entity"
	"github.com/jhoicas/siga-gateway/internal/infrastructure/xades"
)

// newCertCommand utilidades de diagnóstico del certificado del firmante. No necesitan configuración.
func newCertCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cert",
		Short: "Diagnóstico de certificados PKCS#12 y firma local de prueba",
		// Sin almacén ni proveedores: no carga configuración.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	}
	cmd.AddCommand(newCertInspectCommand(), newCertSignCommand())
	return cmd
}

type certView struct {
	Subject   string    `json:"subject"`
	Issuer    string    `json:"issuer"`
	Serial    string    `json:"serial"`
	NotBefore time.Time `json:"notBefore"`
	NotAfter  time.Time `json:"notAfter"`
	KeyType   string    `json:"keyType"`
	DigestB64 string    `json:"sha512"`
	HasKey    bool      `json:"hasPrivateKey"`
}

func newCertInspectCommand() *cobra.Command {
	var password, out string
	cmd := &cobra.Command{
		Use:   "inspect <archivo>",
		Short: "Verifica que el .p12 abre con la contraseña (o que el certificado PEM/DER es legible)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cert, key, err := loadSigner(args[0], password)
			if err != nil {
				return err
			}
			if out != "" {
				if err := os.WriteFile(out, cert.Raw, 0o644); err != nil {
					return fmt.Errorf("escribir %s: %w", out, err)
				}
			}
			digest, issuer, serial := xades.CertDigestAndIssuerSerial(cert, entity.DigestSHA512)
			return printJSON(cmd.OutOrStdout(), certView{
				Subject:   cert.Subject.String(),
				Issuer:    issuer,
				Serial:    serial,
				NotBefore: cert.NotBefore,
				NotAfter:  cert.NotAfter,
				KeyType:   fmt.Sprintf("%T", cert.PublicKey),
				DigestB64: digest,
				HasKey:    key != nil,
			})
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "contraseña del .p12")
	cmd.Flags().StringVar(&out, "out", "", "escribe el certificado en DER en este archivo")
	return cmd
}

// newCertSignCommand firma localmente el dataToSign de una firma remota (SHA-512), como lo haría el cliente.
func newCertSignCommand() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "sign <archivo.p12> <dataToSignB64>",
		Short: "Calcula el valor de firma en Base64 con la llave del .p12",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, key, err := loadSigner(args[0], password)
			if err != nil {
				return err
			}
			signer, ok := key.(crypto.Signer)
			if !ok {
				return fmt.Errorf("el archivo %s no contiene una llave privada utilizable", args[0])
			}
			payload, err := base64.StdEncoding.DecodeString(strings.TrimSpace(args[1]))
			if err != nil {
				return fmt.Errorf("dataToSign no es Base64: %w", err)
			}
			digest := sha512.Sum512(payload)
			value, err := signer.Sign(rand.Reader, digest[:], crypto.SHA512)
			if err != nil {
				return fmt.Errorf("firmar: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), base64.StdEncoding.EncodeToString(value))
			return err
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "contraseña del .p12")
	return cmd
}

// loadSigner abre .p12/.pfx con llave; cualquier otra extensión se lee como certificado sin llave.
func loadSigner(path, password string) (*x509.Certificate, crypto.PrivateKey, error) {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".p12") || strings.HasSuffix(lower, ".pfx") {
		return xades.LoadFromP12(path, password)
	}
	cert, err := xades.LoadCertificate(path)
	return cert, nil, err
}
