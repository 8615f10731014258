package store

import "errors"

var (
	ErrTxnAlreadyExists = errors.New("bridge transaction already exists")
	ErrTxnNotFound      = errors.New("bridge transaction not found")
	ErrPartnerConflict  = errors.New("bridge transaction is paired with another leg")
)
