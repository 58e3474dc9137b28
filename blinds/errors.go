package blinds

import "errors"

var (
	ErrNoWriteHandle    = errors.New("blinds: write characteristic not resolved")
	ErrNotConnected     = errors.New("blinds: not connected")
	ErrHandshakeAborted = errors.New("blinds: handshake aborted")
	ErrLinkBusy         = errors.New("blinds: link still up, connect not requested")
)
