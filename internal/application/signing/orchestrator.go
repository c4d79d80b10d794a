package signing

import (
	"context"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/jhoicas/siga-gateway/internal/domain"
	"github.com/jhoicas/siga-gateway/internal/domain/entity"
	"github.com/jhoicas/siga-gateway/internal/domain/repository"
	"github.com/jhoicas/siga-gateway/internal/infrastructure/hashcode"
	"github.com/jhoicas/siga-gateway/pkg/logger"
)

// Orchestrator orquesta la firma de un contenedor hashcode por tres canales:
//
//	Remota:    StartRemoteSigning → (el cliente firma) → FinalizeRemoteSigning
//	Mobile-ID: StartMobileIDSigning → PollMobileIDStatus ... → SIGNATURE
//	Smart-ID:  StartSmartIDSigning → PollSmartIDStatus ... → SIGNATURE
//
// Cada llamada lee la sesión, hace las llamadas externas (constructor de firmas, proveedor) sin bloqueo
// y luego escribe con SessionRepository.Update, que revalida el estado observado antes de la llamada.
// El sondeo lo dirige el cliente; aquí no hay reintentos ni temporizadores.
type Orchestrator struct {
	sessions repository.SessionRepository
	builder  SignatureBuilder
	mobileID IdentityProvider // nil = canal deshabilitado
	smartID  IdentityProvider // nil = canal deshabilitado
	events   EventRecorder
	log      *logger.Logger
}

// NewOrchestrator construye el orquestador. mobileID, smartID y events pueden ser nil.
func NewOrchestrator(
	sessions repository.SessionRepository,
	builder SignatureBuilder,
	mobileID IdentityProvider,
	smartID IdentityProvider,
	events EventRecorder,
	log *logger.Logger,
) *Orchestrator {
	if log == nil {
		log = logger.Nop()
	}
	return &Orchestrator{
		sessions: sessions,
		builder:  builder,
		mobileID: mobileID,
		smartID:  smartID,
		events:   events,
		log:      log,
	}
}

// RemoteSigningRequest datos para iniciar una firma remota.
type RemoteSigningRequest struct {
	ContainerID string
	Certificate []byte // DER
	Profile     string
	Roles       []string
	Place       ProductionPlace
}

// RemoteSigningResult bytes que el cliente debe firmar y el algoritmo de digest a usar.
type RemoteSigningResult struct {
	DataToSign      []byte
	DigestAlgorithm entity.DigestAlgorithm
}

// MobileIDSigningRequest datos para iniciar una firma con Mobile-ID.
type MobileIDSigningRequest struct {
	ContainerID      string
	PersonIdentifier string
	Country          string
	PhoneNo          string
	Language         string
	MessageToDisplay string
	Profile          string
	Roles            []string
	Place            ProductionPlace
}

// SmartIDSigningRequest datos para iniciar una firma con Smart-ID.
type SmartIDSigningRequest struct {
	ContainerID      string
	PersonIdentifier string
	Country          string
	MessageToDisplay string
	Profile          string
	Roles            []string
	Place            ProductionPlace
}

// ═══════════════════════════════════════════════════════════════════════════
// Firma remota
// ═══════════════════════════════════════════════════════════════════════════

// StartRemoteSigning calcula el dato a firmar (SHA-512) y deja la sesión en REMOTE_PENDING.
func (o *Orchestrator) StartRemoteSigning(ctx context.Context, req RemoteSigningRequest) (*RemoteSigningResult, error) {
	profile, err := entity.ParseSignatureProfile(req.Profile)
	if err != nil {
		return nil, err
	}
	if len(req.Certificate) == 0 {
		return nil, invalid("certificado de firma vacío")
	}
	if err := validateRolesAndPlace(req.Roles, req.Place); err != nil {
		return nil, err
	}
	snapshot, err := o.readForStart(ctx, req.ContainerID)
	if err != nil {
		return nil, o.rejected(entity.SigningTypeRemote, req.ContainerID, err)
	}

	dts, err := o.builder.BuildDataToSign(snapshot.DataFiles, SignatureParameters{
		Certificate: req.Certificate,
		Profile:     profile,
		Roles:       req.Roles,
		Place:       req.Place,
	})
	if err != nil {
		return nil, o.rejected(entity.SigningTypeRemote, req.ContainerID, err)
	}

	if err := o.install(ctx, snapshot, entity.NewRemoteOperation(dts)); err != nil {
		return nil, o.rejected(entity.SigningTypeRemote, req.ContainerID, err)
	}
	o.started(entity.SigningTypeRemote, req.ContainerID)
	return &RemoteSigningResult{DataToSign: dts.Payload, DigestAlgorithm: dts.DigestAlgorithm}, nil
}

// FinalizeRemoteSigning completa la firma remota con el valor de firma del cliente (Base64).
// Una segunda llamada sobre la misma operación falla con ErrInvalidSessionState.
func (o *Orchestrator) FinalizeRemoteSigning(ctx context.Context, containerID, signatureValueB64 string) error {
	snapshot, err := o.get(ctx, containerID)
	if err != nil {
		return err
	}
	op, err := snapshot.PendingOperationOf(entity.SigningTypeRemote)
	if err != nil {
		return o.rejected(entity.SigningTypeRemote, containerID, err)
	}
	value, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signatureValueB64))
	if err != nil || len(value) == 0 {
		return o.rejected(entity.SigningTypeRemote, containerID, invalid("valor de firma no es Base64"))
	}
	if err := o.complete(ctx, containerID, snapshot.DataFiles, op, value); err != nil {
		return o.rejected(entity.SigningTypeRemote, containerID, err)
	}
	o.completed(entity.SigningTypeRemote, containerID)
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Mobile-ID / Smart-ID
// ═══════════════════════════════════════════════════════════════════════════

// StartMobileIDSigning obtiene el certificado del firmante, envía el hash al proveedor y deja la sesión
// en MOBILE_ID_PENDING. Devuelve el código de verificación a mostrar al usuario.
func (o *Orchestrator) StartMobileIDSigning(ctx context.Context, req MobileIDSigningRequest) (string, error) {
	if err := firstError(
		validatePersonIdentifier(req.PersonIdentifier),
		validateCountry(req.Country),
		validatePhoneNo(req.PhoneNo),
		validateLanguage(req.Language),
		validateDisplayText(req.MessageToDisplay, maxMobileIDMessage),
		validateRolesAndPlace(req.Roles, req.Place),
	); err != nil {
		return "", err
	}
	profile, err := entity.ParseSignatureProfile(req.Profile)
	if err != nil {
		return "", err
	}
	return o.startProviderSigning(ctx, entity.SigningTypeMobileID, o.mobileID, req.ContainerID,
		CertificateRequest{PersonIdentifier: req.PersonIdentifier, Country: req.Country, PhoneNo: req.PhoneNo},
		SignHashRequest{
			PersonIdentifier: req.PersonIdentifier,
			Country:          req.Country,
			PhoneNo:          req.PhoneNo,
			Language:         strings.ToUpper(req.Language),
			DisplayText:      req.MessageToDisplay,
		},
		SignatureParameters{Profile: profile, Roles: req.Roles, Place: req.Place},
	)
}

// PollMobileIDStatus consulta el estado en el proveedor. Mientras no sea SIGNATURE la sesión no cambia;
// con SIGNATURE se completa la firma una sola vez. Un timeout del proveedor devuelve PROVIDER_TIMEOUT.
func (o *Orchestrator) PollMobileIDStatus(ctx context.Context, containerID string) (entity.ProviderStatus, error) {
	return o.pollProviderStatus(ctx, entity.SigningTypeMobileID, o.mobileID, containerID)
}

// StartSmartIDSigning equivalente a StartMobileIDSigning para Smart-ID (sin teléfono ni idioma).
func (o *Orchestrator) StartSmartIDSigning(ctx context.Context, req SmartIDSigningRequest) (string, error) {
	if err := firstError(
		validatePersonIdentifier(req.PersonIdentifier),
		validateCountry(req.Country),
		validateDisplayText(req.MessageToDisplay, maxSmartIDMessage),
		validateRolesAndPlace(req.Roles, req.Place),
	); err != nil {
		return "", err
	}
	profile, err := entity.ParseSignatureProfile(req.Profile)
	if err != nil {
		return "", err
	}
	return o.startProviderSigning(ctx, entity.SigningTypeSmartID, o.smartID, req.ContainerID,
		CertificateRequest{PersonIdentifier: req.PersonIdentifier, Country: strings.ToUpper(req.Country)},
		SignHashRequest{
			PersonIdentifier: req.PersonIdentifier,
			Country:          strings.ToUpper(req.Country),
			DisplayText:      req.MessageToDisplay,
		},
		SignatureParameters{Profile: profile, Roles: req.Roles, Place: req.Place},
	)
}

// PollSmartIDStatus equivalente a PollMobileIDStatus para Smart-ID.
func (o *Orchestrator) PollSmartIDStatus(ctx context.Context, containerID string) (entity.ProviderStatus, error) {
	return o.pollProviderStatus(ctx, entity.SigningTypeSmartID, o.smartID, containerID)
}

// AbandonSigning descarta la operación pendiente para permitir iniciar otra.
func (o *Orchestrator) AbandonSigning(ctx context.Context, containerID string) error {
	var abandoned *entity.SigningOperation
	_, err := o.sessions.Update(ctx, containerID, func(s *entity.SigningSession) error {
		op, err := s.AbandonOperation()
		abandoned = op
		return err
	})
	if err != nil {
		return err
	}
	o.log.Info().Str("container_id", containerID).Str("signing_type", string(abandoned.Type)).Msg("operación de firma abandonada")
	return nil
}

func (o *Orchestrator) startProviderSigning(
	ctx context.Context,
	channel entity.SigningType,
	provider IdentityProvider,
	containerID string,
	certReq CertificateRequest,
	hashReq SignHashRequest,
	params SignatureParameters,
) (string, error) {
	if provider == nil {
		return "", fmt.Errorf("%w: canal %s no configurado", domain.ErrProviderUnavailable, channel)
	}
	snapshot, err := o.readForStart(ctx, containerID)
	if err != nil {
		return "", o.rejected(channel, containerID, err)
	}

	cert, err := provider.ResolveCertificate(ctx, certReq)
	if err != nil {
		return "", o.rejected(channel, containerID, providerError(err))
	}
	params.Certificate = cert
	dts, err := o.builder.BuildDataToSign(snapshot.DataFiles, params)
	if err != nil {
		return "", o.rejected(channel, containerID, err)
	}

	digest := sha512.Sum512(dts.Payload)
	hashReq.Hash = hex.EncodeToString(digest[:])
	hashReq.HashType = dts.DigestAlgorithm
	resp, err := provider.SubmitSignHash(ctx, hashReq)
	if err != nil {
		return "", o.rejected(channel, containerID, providerError(err))
	}
	if resp.Status != entity.StatusOK {
		o.recordStatus(channel, resp.Status)
		return "", o.rejected(channel, containerID, fmt.Errorf("%w: estado %s", domain.ErrProviderRejected, resp.Status))
	}

	var op *entity.SigningOperation
	if channel == entity.SigningTypeSmartID {
		op, err = entity.NewSmartIDOperation(dts, resp.SessionCode)
	} else {
		op, err = entity.NewMobileIDOperation(dts, resp.SessionCode)
	}
	if err != nil {
		return "", o.rejected(channel, containerID, fmt.Errorf("%w: respuesta sin código de sesión", domain.ErrProviderRejected))
	}
	if err := o.install(ctx, snapshot, op); err != nil {
		// El proceso en el proveedor queda huérfano; expira solo.
		o.log.Warn().Str("container_id", containerID).Str("signing_type", string(channel)).
			Str("provider_session", resp.SessionCode).Err(err).Msg("no se pudo registrar la operación iniciada en el proveedor")
		return "", o.rejected(channel, containerID, err)
	}
	o.started(channel, containerID)
	return resp.ChallengeID, nil
}

func (o *Orchestrator) pollProviderStatus(ctx context.Context, channel entity.SigningType, provider IdentityProvider, containerID string) (entity.ProviderStatus, error) {
	snapshot, err := o.get(ctx, containerID)
	if err != nil {
		return "", err
	}
	op, err := snapshot.PendingOperationOf(channel)
	if err != nil {
		return "", o.rejected(channel, containerID, err)
	}
	if provider == nil {
		return "", fmt.Errorf("%w: canal %s no configurado", domain.ErrProviderUnavailable, channel)
	}

	status, err := provider.PollSignHashStatus(ctx, op.ProviderSessionCode)
	if err != nil {
		if errors.Is(err, domain.ErrProviderTimeout) || errors.Is(err, context.DeadlineExceeded) {
			o.log.Warn().Str("container_id", containerID).Str("signing_type", string(channel)).Msg("timeout consultando al proveedor")
			o.recordStatus(channel, entity.StatusProviderTimeout)
			return entity.StatusProviderTimeout, nil
		}
		return "", providerError(err)
	}
	o.recordStatus(channel, status.Status)
	if !status.Status.IsSignature() {
		o.log.Debug().Str("container_id", containerID).Str("status", string(status.Status)).Msg("estado del proveedor")
		return status.Status, nil
	}

	if err := o.complete(ctx, containerID, snapshot.DataFiles, op, status.SignatureValue); err != nil {
		return "", o.rejected(channel, containerID, err)
	}
	o.completed(channel, containerID)
	return entity.StatusSignature, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Unidad atómica de lectura-validación-escritura
// ═══════════════════════════════════════════════════════════════════════════

func (o *Orchestrator) get(ctx context.Context, containerID string) (*entity.SigningSession, error) {
	if err := entity.ValidateContainerID(containerID); err != nil {
		return nil, err
	}
	return o.sessions.Get(ctx, containerID)
}

// readForStart lee la sesión y falla rápido si no se puede iniciar una firma.
func (o *Orchestrator) readForStart(ctx context.Context, containerID string) (*entity.SigningSession, error) {
	s, err := o.get(ctx, containerID)
	if err != nil {
		return nil, err
	}
	if err := s.CanStartSigning(); err != nil {
		return nil, err
	}
	return s, nil
}

// install escribe la operación pendiente si la sesión no cambió desde snapshot. Si otra llamada ganó,
// devuelve ErrInvalidSessionState (operación en curso) o ErrConflict (cambiaron los archivos).
func (o *Orchestrator) install(ctx context.Context, snapshot *entity.SigningSession, op *entity.SigningOperation) error {
	_, err := o.sessions.Update(ctx, snapshot.ContainerID, func(s *entity.SigningSession) error {
		if err := s.CanStartSigning(); err != nil {
			return err
		}
		if s.Revision != snapshot.Revision {
			return fmt.Errorf("%w: la sesión cambió durante la operación, reintente", domain.ErrConflict)
		}
		return s.BeginOperation(op)
	})
	return err
}

// complete arma la firma final fuera del bloqueo, la verifica contra los archivos de la sesión
// y la agrega sólo si la operación pendiente sigue siendo op.
func (o *Orchestrator) complete(ctx context.Context, containerID string, dataFiles []entity.DataFileDigest, op *entity.SigningOperation, value []byte) error {
	signature, err := o.builder.FinalizeSignature(op.DataToSign, value)
	if err != nil {
		return err
	}
	entries, err := hashcode.ParseSignatureDataFiles(signature)
	if err != nil {
		return fmt.Errorf("firma generada ilegible: %w", err)
	}
	if err := hashcode.VerifySignatureDataFiles(dataFiles, entries); err != nil {
		return err
	}
	collected, err := entity.NewCollectedSignature(signature, entries)
	if err != nil {
		return err
	}
	_, err = o.sessions.Update(ctx, containerID, func(s *entity.SigningSession) error {
		return s.CompleteOperation(op, collected)
	})
	return err
}

// ═══════════════════════════════════════════════════════════════════════════
// Logging y eventos
// ═══════════════════════════════════════════════════════════════════════════

func (o *Orchestrator) started(t entity.SigningType, containerID string) {
	o.log.Info().Str("container_id", containerID).Str("signing_type", string(t)).Msg("firma iniciada")
	if o.events != nil {
		o.events.SigningStarted(t)
	}
}

func (o *Orchestrator) completed(t entity.SigningType, containerID string) {
	o.log.Info().Str("container_id", containerID).Str("signing_type", string(t)).Msg("firma completada")
	if o.events != nil {
		o.events.SigningCompleted(t)
	}
}

func (o *Orchestrator) rejected(t entity.SigningType, containerID string, err error) error {
	o.log.Warn().Str("container_id", containerID).Str("signing_type", string(t)).Err(err).Msg("operación de firma rechazada")
	if o.events != nil {
		o.events.SigningRejected(t, reasonOf(err))
	}
	return err
}

func (o *Orchestrator) recordStatus(t entity.SigningType, status entity.ProviderStatus) {
	if o.events != nil {
		o.events.ProviderStatus(t, status)
	}
}

// reasonOf reduce el error a una etiqueta de baja cardinalidad para métricas.
func reasonOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrNoDataFiles):
		return "no_data_files"
	case errors.Is(err, domain.ErrInvalidSessionState):
		return "invalid_state"
	case errors.Is(err, domain.ErrProviderRejected):
		return "provider_rejected"
	case errors.Is(err, domain.ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, domain.ErrInvalidSignatureValue):
		return "invalid_signature_value"
	case errors.Is(err, domain.ErrContainerIntegrity):
		return "integrity"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}

// providerError deja pasar los errores de dominio y la cancelación del llamador; envuelve el resto como proveedor no disponible.
func providerError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, domain.ErrProviderRejected) || errors.Is(err, domain.ErrProviderUnavailable) || errors.Is(err, domain.ErrInvalidInput) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
