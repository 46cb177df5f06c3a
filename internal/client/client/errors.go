package client

import "errors"

var (
	ErrUnavailable = errors.New("transport unavailable")
	ErrClosed      = errors.New("client closed")
)
