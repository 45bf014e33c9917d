package service

import "errors"

var (
	ErrValidation          = errors.New("validation failed")
	ErrAuth                = errors.New("gateway authentication failed")
	ErrGateway             = errors.New("gateway request failed")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrMalformedCallback   = errors.New("malformed callback")
	ErrUnknownTransaction  = errors.New("unknown transaction")
	ErrProviderUnsupported = errors.New("provider is not supported")
	ErrForbidden           = errors.New("payment belongs to another user")
)
