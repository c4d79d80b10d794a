package entity

// ProviderStatus estado de un proceso de firma en el proveedor de identidad (Mobile-ID / Smart-ID).
type ProviderStatus string

// Estados del proceso de firma. SIGNATURE es el único terminal exitoso.
const (
	StatusOK                     ProviderStatus = "OK"
	StatusOutstandingTransaction ProviderStatus = "OUTSTANDING_TRANSACTION"
	StatusSignature              ProviderStatus = "SIGNATURE"
	StatusExpiredTransaction     ProviderStatus = "EXPIRED_TRANSACTION"
	StatusUserCancel             ProviderStatus = "USER_CANCEL"
	StatusNotValid               ProviderStatus = "NOT_VALID"
	StatusMIDNotReady            ProviderStatus = "MID_NOT_READY"
	StatusPhoneAbsent            ProviderStatus = "PHONE_ABSENT"
	StatusSendingError           ProviderStatus = "SENDING_ERROR"
	StatusSIMError               ProviderStatus = "SIM_ERROR"
	StatusRevokedCertificate     ProviderStatus = "REVOKED_CERTIFICATE"
	StatusInternalError          ProviderStatus = "INTERNAL_ERROR"

	// StatusProviderTimeout es local: la consulta al proveedor excedió su timeout. No altera la sesión;
	// el cliente puede volver a consultar.
	StatusProviderTimeout ProviderStatus = "PROVIDER_TIMEOUT"
)

// IsSignature indica si el proveedor ya devolvió la firma.
func (s ProviderStatus) IsSignature() bool {
	return s == StatusSignature
}
