package board

import "errors"

var (
	ErrUnknownConnection = errors.New("unknown connection")
	ErrEmptyStroke       = errors.New("stroke has no points")
	ErrWidthOutOfRange   = errors.New("stroke width out of range")
	ErrUnknownTool       = errors.New("unknown tool")
	ErrBadCoordinate     = errors.New("coordinate is not a finite number")
	ErrConnectionExists  = errors.New("connection already joined")
)
