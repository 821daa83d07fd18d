package errors

import "net/http"

// =================================================================================
// ERRORES PREDEFINIDOS
// =================================================================================

var (
	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "La solicitud contiene sintaxis inválida o parámetros faltantes.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "El recurso solicitado no fue encontrado.",
		HTTPStatus: http.StatusNotFound,
	}

	ErrMethodNotAllowed = &AppError{
		Code:       "METHOD_NOT_ALLOWED",
		Message:    "El método HTTP no está permitido para este recurso.",
		HTTPStatus: http.StatusMethodNotAllowed,
	}

	ErrRequestCanceled = &AppError{
		Code:       "REQUEST_CANCELED",
		Message:    "La solicitud fue cancelada antes de obtener el ticket.",
		HTTPStatus: 499,
	}
)

// ---------------------------------------------------------------------------------
// 5xx - Credenciales, autoridad y cache
// ---------------------------------------------------------------------------------

var (
	ErrInternalServerError = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Ocurrió un error inesperado en el servidor.",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrKeystoreUnreadable = &AppError{
		Code:       "KEYSTORE_UNREADABLE",
		Message:    "No se pudo leer el keystore PKCS#12 configurado.",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrAliasNotFound = &AppError{
		Code:       "SIGNER_ALIAS_NOT_FOUND",
		Message:    "El alias del firmante no existe en el keystore.",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrSignatureFailure = &AppError{
		Code:       "SIGNATURE_FAILURE",
		Message:    "No se pudo firmar el loginTicketRequest.",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrAuthorityTransport = &AppError{
		Code:       "AUTHORITY_UNREACHABLE",
		Message:    "No se pudo contactar al WSAA.",
		HTTPStatus: http.StatusBadGateway,
	}

	ErrAuthorityTimeout = &AppError{
		Code:       "AUTHORITY_TIMEOUT",
		Message:    "El WSAA no respondió a tiempo.",
		HTTPStatus: http.StatusGatewayTimeout,
	}

	ErrAuthorityProtocol = &AppError{
		Code:       "AUTHORITY_PROTOCOL_ERROR",
		Message:    "El WSAA devolvió una respuesta inválida o un SOAP Fault.",
		HTTPStatus: http.StatusBadGateway,
	}

	ErrAlreadyAuthenticated = &AppError{
		Code:       "AUTHORITY_ALREADY_AUTHENTICATED",
		Message:    "El WSAA ya emitió un ticket vigente para este servicio y no devuelve otro hasta que venza.",
		HTTPStatus: http.StatusBadGateway,
	}

	ErrCacheUnavailable = &AppError{
		Code:       "TICKET_CACHE_UNAVAILABLE",
		Message:    "El almacenamiento de tickets no está disponible.",
		HTTPStatus: http.StatusServiceUnavailable,
	}
)
