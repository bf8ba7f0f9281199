package vat

import (
	"errors"

	"vatchain/core/fixedpoint"
	nativecommon "vatchain/native/common"
)

var (
	ErrNotAuthorized       = errors.New("vat: not authorized")
	ErrUnknownIlk          = errors.New("vat: collateral type not initialised")
	ErrAlreadyInitialized  = errors.New("vat: collateral type already initialised")
	ErrInvalidIlk          = errors.New("vat: invalid collateral identifier")
	ErrCeilingExceeded     = errors.New("vat: debt ceiling exceeded")
	ErrNotSafe             = errors.New("vat: position not safe")
	ErrBelowDust           = errors.New("vat: position below dust")
	ErrInsufficientBalance = errors.New("vat: insufficient balance")
	ErrSystemCaged         = errors.New("vat: system caged")
	ErrUnrecognizedParam   = errors.New("vat: unrecognized parameter")
	ErrNilState            = errors.New("vat: state not configured")
	ErrAlreadyDeployed     = errors.New("vat: ledger already deployed")
)

// Arithmetic and pause failures surface with the same identity as their
// source packages so errors.Is matches either name.
var (
	ErrOverflow      = fixedpoint.ErrOverflow
	ErrUnderflow     = fixedpoint.ErrUnderflow
	ErrSignMismatch  = fixedpoint.ErrSignMismatch
	ErrInvalidAmount = fixedpoint.ErrInvalidAmount
	ErrModulePaused  = nativecommon.ErrModulePaused
)
