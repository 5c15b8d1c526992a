package domain

import "errors"

var (
	ErrMalformedPacket     = errors.New("malformed packet")
	ErrUnsupportedArgument = errors.New("unsupported argument type")
	ErrInvalidNeighbor     = errors.New("invalid neighbor descriptor")
	ErrInvalidCommand      = errors.New("invalid steering command")
)
