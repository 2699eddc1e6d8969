package server

import (
	"errors"
	"ht2peer/internal/domain"

	"connectrpc.com/connect"
)

func codeOf(err error) connect.Code {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return connect.CodeNotFound
	case domain.KindConflict:
		if errors.Is(err, domain.ErrRoomExists) || errors.Is(err, domain.ErrPlayerExists) {
			return connect.CodeAlreadyExists
		}
		return connect.CodeFailedPrecondition
	case domain.KindUnauthorized:
		return connect.CodeUnauthenticated
	case domain.KindValidationFailed:
		return connect.CodeInvalidArgument
	case domain.KindTransient:
		return connect.CodeUnavailable
	default:
		return connect.CodeInternal
	}
}

// toConnectError keeps internal details out of the reply.
func toConnectError(err error) *connect.Error {
	return connect.NewError(codeOf(err), errors.New(domain.PublicMessage(err)))
}
