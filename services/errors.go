package services

import "errors"

var (
	ErrNotFound        = errors.New("record not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmailTaken      = errors.New("email is already registered")
	ErrNotPending      = errors.New("account is not pending approval")
	ErrSlotOverlap     = errors.New("availability overlaps an existing slot")
	ErrInvalidLogin    = errors.New("invalid credentials")
	ErrAccountPending  = errors.New("account is awaiting admin approval")
	ErrAccountInactive = errors.New("account is deactivated")
)
