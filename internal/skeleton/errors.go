package skeleton

import "errors"

// Sentinel errors used for wrapping so callers can classify via errors.Is.
var (
	ErrListen     = errors.New("skeleton: listen")
	ErrAccept     = errors.New("skeleton: accept")
	ErrConnect    = errors.New("skeleton: connect")
	ErrProtocol   = errors.New("skeleton: protocol")
	ErrTerminated = errors.New("skeleton: terminated")
	ErrNoShape    = errors.New("skeleton: no begin_detection shape recorded")
)
