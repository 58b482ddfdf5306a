package token

import "errors"

var (
	// ErrUnauthorized means the presented authority does not hold the
	// account or mint it tried to mutate.
	ErrUnauthorized = errors.New("unauthorized")

	ErrMintNotFound        = errors.New("mint not found")
	ErrMintExists          = errors.New("mint already exists")
	ErrAccountNotFound     = errors.New("token account not found")
	ErrAccountExists       = errors.New("token account already exists")
	ErrMintMismatch        = errors.New("token account mint mismatch")
	ErrInsufficientBalance = errors.New("insufficient token balance")
	ErrNonZeroBalance      = errors.New("cannot close account with nonzero balance")
	ErrBalanceOverflow     = errors.New("token balance overflow")
)
