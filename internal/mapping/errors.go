package mapping

import "errors"

// Sentinel errors used for wrapping so callers can classify via errors.Is.
var (
	ErrListen      = errors.New("mapping: listen")
	ErrAccept      = errors.New("mapping: accept")
	ErrHandshake   = errors.New("mapping: handshake")
	ErrConnect     = errors.New("mapping: connect")
	ErrProtocol    = errors.New("mapping: protocol")
	ErrTerminated  = errors.New("mapping: terminated")
	ErrUnknownPeer = errors.New("mapping: unknown client")
)
