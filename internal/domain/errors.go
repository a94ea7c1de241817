package domain

import "errors"

var (
	ErrIdentityEmpty      = errors.New("identity empty")
	ErrIdentityTooLong    = errors.New("identity too long")
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrNoMembers          = errors.New("message has no conversation members")
	ErrNoTarget           = errors.New("signal has no target identity")
	ErrNotRegistered      = errors.New("session has no bound identity")
	ErrUnknownSession     = errors.New("unknown session")
	ErrUnreachable        = errors.New("target identity has no live session")
	ErrBusy               = errors.New("a call is already in progress")
	ErrNoCall             = errors.New("no call in progress")
	ErrInvalidMediaKind   = errors.New("invalid media kind")
)
