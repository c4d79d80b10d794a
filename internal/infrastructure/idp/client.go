// Package idp cliente JSON del proxy de parte confiante (relying party) de Mobile-ID y Smart-ID.
package idp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/jhoicas/siga-gateway/internal/application/signing"
	"github.com/jhoicas/siga-gateway/internal/domain"
	"github.com/jhoicas/siga-gateway/internal/domain/entity"
)

const maxResponseBytes = 1 << 20

// Config parámetros del cliente.
type Config struct {
	BaseURL          string
	RelyingPartyName string
	RelyingPartyUUID string
	Timeout          time.Duration // por llamada
	RequestsPerSec   float64
	HTTPClient       *http.Client // opcional
}

// Client implementa signing.IdentityProvider contra el proxy.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

var _ signing.IdentityProvider = (*Client)(nil)

// NewClient construye el cliente. Timeout y RequestsPerSec deben ser positivos.
func NewClient(cfg Config) (*Client, error) {
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("idp: base URL inválida: %w", err)
	}
	if cfg.Timeout <= 0 || cfg.RequestsPerSec <= 0 {
		return nil, fmt.Errorf("idp: timeout y tasa deben ser positivos")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	burst := int(cfg.RequestsPerSec)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		cfg:     cfg,
		http:    hc,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), burst),
	}, nil
}

// ── Estructuras del proxy ────────────────────────────────────────────────────

type certificateRequest struct {
	RelyingPartyName string `json:"relyingPartyName"`
	RelyingPartyUUID string `json:"relyingPartyUUID"`
	PersonIdentifier string `json:"personIdentifier"`
	Country          string `json:"country,omitempty"`
	PhoneNo          string `json:"phoneNumber,omitempty"`
}

type certificateResponse struct {
	Status string `json:"status"`
	Cert   string `json:"cert"`
}

type signatureRequest struct {
	RelyingPartyName string `json:"relyingPartyName"`
	RelyingPartyUUID string `json:"relyingPartyUUID"`
	PersonIdentifier string `json:"personIdentifier"`
	Country          string `json:"country,omitempty"`
	PhoneNo          string `json:"phoneNumber,omitempty"`
	Language         string `json:"language,omitempty"`
	DisplayText      string `json:"displayText,omitempty"`
	Hash             string `json:"hash"`
	HashType         string `json:"hashType"`
}

type signatureResponse struct {
	Status      string `json:"status"`
	SessionID   string `json:"sessionId"`
	ChallengeID string `json:"challengeId"`
}

type sessionStatusResponse struct {
	State     string `json:"state"`
	Result    string `json:"result"`
	Signature *struct {
		Value string `json:"value"`
	} `json:"signature"`
}

// ── IdentityProvider ─────────────────────────────────────────────────────────

// ResolveCertificate obtiene el certificado de firma (DER) de la persona.
func (c *Client) ResolveCertificate(ctx context.Context, req signing.CertificateRequest) ([]byte, error) {
	var resp certificateResponse
	err := c.do(ctx, http.MethodPost, "/certificate", certificateRequest{
		RelyingPartyName: c.cfg.RelyingPartyName,
		RelyingPartyUUID: c.cfg.RelyingPartyUUID,
		PersonIdentifier: req.PersonIdentifier,
		Country:          req.Country,
		PhoneNo:          req.PhoneNo,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Status != string(entity.StatusOK) {
		return nil, fmt.Errorf("idp: %w: certificado no disponible (%s)", domain.ErrProviderRejected, resp.Status)
	}
	der, err := base64.StdEncoding.DecodeString(resp.Cert)
	if err != nil || len(der) == 0 {
		return nil, fmt.Errorf("idp: %w: certificado no es Base64", domain.ErrProviderUnavailable)
	}
	return der, nil
}

// SubmitSignHash inicia el proceso de firma del hash.
func (c *Client) SubmitSignHash(ctx context.Context, req signing.SignHashRequest) (*signing.SignHashResponse, error) {
	var resp signatureResponse
	err := c.do(ctx, http.MethodPost, "/signature", signatureRequest{
		RelyingPartyName: c.cfg.RelyingPartyName,
		RelyingPartyUUID: c.cfg.RelyingPartyUUID,
		PersonIdentifier: req.PersonIdentifier,
		Country:          req.Country,
		PhoneNo:          req.PhoneNo,
		Language:         req.Language,
		DisplayText:      req.DisplayText,
		Hash:             req.Hash,
		HashType:         string(req.HashType),
	}, &resp)
	if err != nil {
		return nil, err
	}
	status := entity.StatusOK
	if resp.Status != "" {
		status = entity.ProviderStatus(resp.Status)
	}
	return &signing.SignHashResponse{Status: status, SessionCode: resp.SessionID, ChallengeID: resp.ChallengeID}, nil
}

// PollSignHashStatus consulta el estado del proceso de firma.
func (c *Client) PollSignHashStatus(ctx context.Context, sessionCode string) (*signing.SignHashStatus, error) {
	var resp sessionStatusResponse
	if err := c.do(ctx, http.MethodGet, "/signature/session/"+url.PathEscape(sessionCode), nil, &resp); err != nil {
		return nil, err
	}
	status := mapSessionStatus(resp.State, resp.Result)
	out := &signing.SignHashStatus{Status: status}
	if status.IsSignature() {
		if resp.Signature == nil || resp.Signature.Value == "" {
			return nil, fmt.Errorf("idp: %w: sesión completa sin valor de firma", domain.ErrProviderUnavailable)
		}
		value, err := base64.StdEncoding.DecodeString(resp.Signature.Value)
		if err != nil {
			return nil, fmt.Errorf("idp: %w: valor de firma no es Base64", domain.ErrProviderUnavailable)
		}
		out.SignatureValue = value
	}
	return out, nil
}

// mapSessionStatus traduce estado/resultado del proxy al estado de proceso del gateway.
func mapSessionStatus(state, result string) entity.ProviderStatus {
	if state == "RUNNING" {
		return entity.StatusOutstandingTransaction
	}
	switch result {
	case "OK":
		return entity.StatusSignature
	case "TIMEOUT", "EXPIRED_TRANSACTION":
		return entity.StatusExpiredTransaction
	case "USER_CANCELLED", "USER_REFUSED":
		return entity.StatusUserCancel
	case "NOT_MID_CLIENT", "DOCUMENT_UNUSABLE", "SIGNATURE_HASH_MISMATCH", "WRONG_VC":
		return entity.StatusNotValid
	case "PHONE_ABSENT":
		return entity.StatusPhoneAbsent
	case "DELIVERY_ERROR":
		return entity.StatusSendingError
	case "SIM_ERROR":
		return entity.StatusSIMError
	default:
		return entity.StatusInternalError
	}
}

// do ejecuta una llamada JSON con ritmo limitado y timeout propio.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		// Wait devuelve ctx.Err() si el contexto terminó, o un error propio si la espera excedería el deadline.
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("idp: %w", err)
		}
		return fmt.Errorf("idp: %w: %v", domain.ErrProviderTimeout, err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("idp: serializar solicitud: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("idp: crear request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return fmt.Errorf("idp: %w", ctx.Err())
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("idp: %w: %s %s", domain.ErrProviderTimeout, method, path)
		}
		return fmt.Errorf("idp: %w: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("idp: %w: leyendo respuesta", domain.ErrProviderTimeout)
		}
		return fmt.Errorf("idp: %w: leer respuesta: %v", domain.ErrProviderUnavailable, err)
	}
	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("idp: %w: HTTP %d", domain.ErrProviderUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("idp: %w: HTTP %d", domain.ErrProviderRejected, resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("idp: %w: respuesta ilegible: %v", domain.ErrProviderUnavailable, err)
	}
	return nil
}
