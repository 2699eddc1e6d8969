package domain

import (
	"context"
	"errors"
	"fmt"
)

type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindConflict         Kind = "conflict"
	KindUnauthorized     Kind = "unauthorized"
	KindValidationFailed Kind = "validation_failed"
	KindTransient        Kind = "transient_store_failure"
	KindInternal         Kind = "internal"
)

// Error carries a Kind so transports can map failures without string matching.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

var (
	ErrRoomNotFound     = NewError(KindNotFound, "Room not found")
	ErrRoomExists       = NewError(KindConflict, "Room already exists")
	ErrRoomFull         = NewError(KindConflict, "Room is full")
	ErrNotInRoom        = NewError(KindConflict, "Not in a room")
	ErrUnknownPlayer    = NewError(KindNotFound, "User not found")
	ErrPlayerExists     = NewError(KindConflict, "User already exists")
	ErrMatchNotFound    = NewError(KindNotFound, "Match not found")
	ErrNotInMatch       = NewError(KindConflict, "Player is not part of this match")
	ErrUnauthorized     = NewError(KindUnauthorized, "Unauthorized")
	ErrValidationFailed = NewError(KindValidationFailed, "Invalid game state")
	ErrBadRequest       = NewError(KindValidationFailed, "Invalid request")
)

// Transient marks a store failure (timeout, connection loss) so callers can retry.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindTransient, Message: op, Err: err}
}

// Validation wraps ErrValidationFailed with the rule that rejected the state.
func Validation(reason string) error {
	return &Error{
		Kind:    KindValidationFailed,
		Message: ErrValidationFailed.Message + ": " + reason,
		Err:     ErrValidationFailed,
	}
}

func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	return KindInternal
}

// PublicMessage is the text safe to hand back to a peer.
func PublicMessage(err error) string {
	var de *Error
	if errors.As(err, &de) && de.Kind != KindTransient && de.Kind != KindInternal {
		return de.Message
	}
	return "Internal error"
}
