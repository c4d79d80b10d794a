package domain

import "errors"

// Errores de dominio (sin dependencias externas).
// Se envuelven con fmt.Errorf("%w: detalle") y se comparan con errors.Is.
var (
	ErrNotFound     = errors.New("recurso no encontrado")
	ErrInvalidInput = errors.New("entrada inválida")
	ErrConflict     = errors.New("conflicto con el estado actual")

	// ErrInvalidSessionState: la operación no está permitida en el estado actual de la sesión
	// (sin operación pendiente, canal distinto o código de sesión del proveedor ausente).
	ErrInvalidSessionState = errors.New("estado de sesión inválido")
	// ErrNoDataFiles: se intentó firmar un contenedor sin archivos de datos.
	ErrNoDataFiles = errors.New("el contenedor no tiene archivos de datos")
	// ErrProviderRejected: el proveedor de identidad respondió con un estado distinto de OK al iniciar la firma.
	ErrProviderRejected = errors.New("el proveedor de identidad rechazó la solicitud")
	// ErrProviderUnavailable: falla de transporte o respuesta ilegible del proveedor de identidad.
	ErrProviderUnavailable = errors.New("proveedor de identidad no disponible")
	// ErrProviderTimeout: el proveedor no respondió a tiempo. En una consulta de estado no es fatal.
	ErrProviderTimeout = errors.New("tiempo de espera del proveedor de identidad agotado")
	// ErrContainerIntegrity: el manifiesto de una firma no coincide con los hashcodes del contenedor.
	ErrContainerIntegrity = errors.New("integridad del contenedor comprometida")
	// ErrInvalidContainer: el archivo no es un contenedor hashcode legible.
	ErrInvalidContainer = errors.New("contenedor inválido")
	// ErrInvalidSignatureValue: el valor de firma no corresponde al certificado de la operación pendiente.
	ErrInvalidSignatureValue = errors.New("valor de firma inválido")
)
