package channel

import "errors"

var (
	ErrChannelNotFound     = errors.New("channel not found")
	ErrMemberNotFound      = errors.New("member not found")
	ErrMemberAlreadyExists = errors.New("member already exists")
	ErrChannelFull         = errors.New("channel is full")
	ErrNotAdmin            = errors.New("member is not admin")
	ErrAlreadyAdmin        = errors.New("member is already admin")
	ErrLastAdmin           = errors.New("last admin")
	ErrTxConflict          = errors.New("transaction retries exhausted")
	ErrDuplicateMessage    = errors.New("duplicate client message id")
)
