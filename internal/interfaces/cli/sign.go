package cli

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jhoicas/siga-gateway/internal/application/signing"
	"github.com/jhoicas/siga-gateway/internal/domain/entity"
	"github.com/jhoicas/siga-gateway/internal/infrastructure/xades"
)

func newSignCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Firma de contenedores: remota, Mobile-ID y Smart-ID",
	}
	cmd.AddCommand(
		newRemoteStartCommand(a),
		newRemoteFinalizeCommand(a),
		newMobileIDStartCommand(a),
		newPollCommand(a, "mid-poll", "Consulta el estado de la firma Mobile-ID", (*signing.Orchestrator).PollMobileIDStatus),
		newSmartIDStartCommand(a),
		newPollCommand(a, "sid-poll", "Consulta el estado de la firma Smart-ID", (*signing.Orchestrator).PollSmartIDStatus),
		newAbandonCommand(a),
	)
	return cmd
}

// signerFlags parámetros del firmante comunes a los tres canales.
type signerFlags struct {
	profile string
	roles   []string
	place   signing.ProductionPlace
}

func (f *signerFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.profile, "profile", "", "perfil de firma (LT, LT_TM, LTA); por defecto SIGNATURE_DEFAULT_PROFILE")
	cmd.Flags().StringArrayVar(&f.roles, "role", nil, "rol declarado del firmante (repetible)")
	cmd.Flags().StringVar(&f.place.City, "city", "", "ciudad de firma")
	cmd.Flags().StringVar(&f.place.StateOrProvince, "state", "", "provincia de firma")
	cmd.Flags().StringVar(&f.place.PostalCode, "postal-code", "", "código postal de firma")
	cmd.Flags().StringVar(&f.place.CountryName, "country-name", "", "país de firma")
}

func (f *signerFlags) profileOr(def string) string {
	if f.profile == "" {
		return def
	}
	return f.profile
}

func newRemoteStartCommand(a *app) *cobra.Command {
	var (
		certPath string
		signer   signerFlags
	)
	cmd := &cobra.Command{
		Use:   "remote-start <containerId>",
		Short: "Inicia una firma remota y devuelve los bytes a firmar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cert, err := xades.LoadCertificate(certPath)
			if err != nil {
				return err
			}
			svc, err := a.services(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.close()
			res, err := svc.signing.StartRemoteSigning(cmd.Context(), signing.RemoteSigningRequest{
				ContainerID: args[0],
				Certificate: cert.Raw,
				Profile:     signer.profileOr(a.cfg.Signature.DefaultProfile),
				Roles:       signer.roles,
				Place:       signer.place,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{
				"dataToSign":      base64.StdEncoding.EncodeToString(res.DataToSign),
				"digestAlgorithm": string(res.DigestAlgorithm),
			})
		},
	}
	cmd.Flags().StringVar(&certPath, "cert", "", "certificado del firmante (PEM o DER)")
	_ = cmd.MarkFlagRequired("cert")
	signer.register(cmd)
	return cmd
}

func newRemoteFinalizeCommand(a *app) *cobra.Command {
	var valueFile string
	cmd := &cobra.Command{
		Use:   "remote-finalize <containerId> [signatureValueB64]",
		Short: "Completa la firma remota con el valor de firma en Base64",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := signatureValueArg(args, valueFile)
			if err != nil {
				return err
			}
			svc, err := a.services(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.close()
			if err := svc.signing.FinalizeRemoteSigning(cmd.Context(), args[0], value); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{"status": "OK"})
		},
	}
	cmd.Flags().StringVar(&valueFile, "value-file", "", "archivo con el valor de firma en Base64")
	return cmd
}

func signatureValueArg(args []string, valueFile string) (string, error) {
	switch {
	case len(args) == 2 && valueFile == "":
		return args[1], nil
	case len(args) == 1 && valueFile != "":
		raw, err := os.ReadFile(valueFile)
		if err != nil {
			return "", fmt.Errorf("leer %s: %w", valueFile, err)
		}
		return string(raw), nil
	default:
		return "", fmt.Errorf("indique el valor de firma como argumento o con --value-file")
	}
}

func newMobileIDStartCommand(a *app) *cobra.Command {
	var (
		req    signing.MobileIDSigningRequest
		signer signerFlags
	)
	cmd := &cobra.Command{
		Use:   "mid-start <containerId>",
		Short: "Inicia una firma Mobile-ID y devuelve el código de verificación",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.close()
			req.ContainerID = args[0]
			req.Profile = signer.profileOr(a.cfg.Signature.DefaultProfile)
			req.Roles = signer.roles
			req.Place = signer.place
			challenge, err := svc.signing.StartMobileIDSigning(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{"challengeId": challenge})
		},
	}
	cmd.Flags().StringVar(&req.PersonIdentifier, "person", "", "código personal del firmante")
	cmd.Flags().StringVar(&req.Country, "country", "EE", "país del código personal")
	cmd.Flags().StringVar(&req.PhoneNo, "phone", "", "número de teléfono con prefijo internacional")
	cmd.Flags().StringVar(&req.Language, "language", "EST", "idioma del mensaje en el teléfono")
	cmd.Flags().StringVar(&req.MessageToDisplay, "message", "", "texto a mostrar en el teléfono")
	_ = cmd.MarkFlagRequired("person")
	_ = cmd.MarkFlagRequired("phone")
	signer.register(cmd)
	return cmd
}

func newSmartIDStartCommand(a *app) *cobra.Command {
	var (
		req    signing.SmartIDSigningRequest
		signer signerFlags
	)
	cmd := &cobra.Command{
		Use:   "sid-start <containerId>",
		Short: "Inicia una firma Smart-ID y devuelve el código de verificación",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.close()
			req.ContainerID = args[0]
			req.Profile = signer.profileOr(a.cfg.Signature.DefaultProfile)
			req.Roles = signer.roles
			req.Place = signer.place
			challenge, err := svc.signing.StartSmartIDSigning(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{"challengeId": challenge})
		},
	}
	cmd.Flags().StringVar(&req.PersonIdentifier, "person", "", "código personal del firmante")
	cmd.Flags().StringVar(&req.Country, "country", "EE", "país del código personal")
	cmd.Flags().StringVar(&req.MessageToDisplay, "message", "", "texto a mostrar en el dispositivo")
	_ = cmd.MarkFlagRequired("person")
	signer.register(cmd)
	return cmd
}

type pollFunc func(o *signing.Orchestrator, ctx context.Context, containerID string) (entity.ProviderStatus, error)

func newPollCommand(a *app, use, short string, poll pollFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <containerId>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.close()
			status, err := poll(svc.signing, cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{"status": string(status)})
		},
	}
}

func newAbandonCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "abandon <containerId>",
		Short: "Descarta la operación de firma en curso",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.close()
			return svc.signing.AbandonSigning(cmd.Context(), args[0])
		},
	}
}
