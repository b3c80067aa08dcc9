package domain

import (
	"errors"
	"fmt"
)

var (
	// authorization
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNotAMember is an authorization failure: errors.Is(ErrNotAMember,
	// ErrPermissionDenied) holds.
	ErrNotAMember = fmt.Errorf("not a member: %w", ErrPermissionDenied)
	// not found
	ErrChannelNotFound = errors.New("channel not found")
	ErrMemberNotFound  = errors.New("member not found")
	// validation
	ErrValidation = errors.New("validation failed")
	// membership rules
	ErrChannelFull    = errors.New("channel is full")
	ErrAlreadyMember  = errors.New("already a member")
	ErrAlreadyAdmin   = errors.New("member is already admin")
	ErrLastAdmin      = errors.New("channel must keep at least one admin")
	ErrChannelExpired = errors.New("channel expired")
	// ErrConflict stands in for any conflict code received from a peer.
	ErrConflict = errors.New("conflict")
	// io
	ErrTransient = errors.New("transient io error")
)

// Error codes used on the wire.
const (
	CodePermissionDenied = "permission_denied"
	CodeNotAMember       = "not_a_member"
	CodeNotFound         = "not_found"
	CodeValidation       = "validation"
	CodeConflict         = "conflict"
	CodeExpired          = "expired"
	CodeTransient        = "transient"
	CodeInternal         = "internal"
)

// Code classifies err into a wire code.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotAMember):
		return CodeNotAMember
	case errors.Is(err, ErrPermissionDenied):
		return CodePermissionDenied
	case errors.Is(err, ErrChannelNotFound), errors.Is(err, ErrMemberNotFound):
		return CodeNotFound
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrChannelFull), errors.Is(err, ErrAlreadyMember),
		errors.Is(err, ErrAlreadyAdmin), errors.Is(err, ErrLastAdmin),
		errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrChannelExpired):
		return CodeExpired
	case errors.Is(err, ErrTransient):
		return CodeTransient
	}

	return CodeInternal
}

// FromCode maps a wire code back to its sentinel. Unknown codes map to nil.
func FromCode(code string) error {
	switch code {
	case CodePermissionDenied:
		return ErrPermissionDenied
	case CodeNotAMember:
		return ErrNotAMember
	case CodeNotFound:
		return ErrChannelNotFound
	case CodeConflict:
		return ErrConflict
	case CodeValidation:
		return ErrValidation
	case CodeExpired:
		return ErrChannelExpired
	case CodeTransient:
		return ErrTransient
	}

	return nil
}
