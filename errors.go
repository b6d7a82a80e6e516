package ppg

import (
	"github.com/prisma/ppg-go/pgerror"
)

// The error taxonomy lives in pgerror so the transports can share it; the
// aliases keep errors.As usable without a second import.
type (
	ValidationError   = pgerror.ValidationError
	HTTPResponseError = pgerror.HTTPResponseError
	WebSocketError    = pgerror.WebSocketError
	DatabaseError     = pgerror.DatabaseError
)

var (
	ErrProtocol = pgerror.ErrProtocol
	ErrClosed   = pgerror.ErrClosed
)
