package errors

import (
	"context"
	stderrors "errors"

	"github.com/dropDatabas3/wsaa/internal/wsaa"
)

// FromError convierte cualquier error en un AppError. Los *AppError pasan
// tal cual; los errores del dominio wsaa se mapean por kind; el resto es 500.
func FromError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	if mapped := fromDomain(err); mapped != nil {
		return mapped.WithCause(err)
	}
	return ErrInternalServerError.WithCause(err)
}

func fromDomain(err error) *AppError {
	var fault *wsaa.AuthorityFault
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, wsaa.ErrKeystoreUnreadable):
		return ErrKeystoreUnreadable
	case stderrors.Is(err, wsaa.ErrAliasNotFound):
		return ErrAliasNotFound
	case stderrors.Is(err, wsaa.ErrSignatureFailure):
		return ErrSignatureFailure
	case stderrors.Is(err, wsaa.ErrTransport):
		if wsaa.IsTimeout(err) {
			return ErrAuthorityTimeout
		}
		return ErrAuthorityTransport
	case stderrors.Is(err, wsaa.ErrAlreadyAuthenticated):
		return ErrAlreadyAuthenticated
	case stderrors.Is(err, wsaa.ErrProtocol):
		if stderrors.As(err, &fault) {
			return ErrAuthorityProtocol.WithDetail(fault.Code + ": " + fault.String)
		}
		return ErrAuthorityProtocol
	case stderrors.Is(err, wsaa.ErrCacheUnavailable):
		return ErrCacheUnavailable
	case stderrors.Is(err, context.Canceled):
		return ErrRequestCanceled
	case stderrors.Is(err, context.DeadlineExceeded):
		return ErrAuthorityTimeout
	}
	return nil
}
