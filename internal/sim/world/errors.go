package world

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrTooFewAvatars = errors.New("at least two avatars are required")
	ErrBadRequest    = errors.New("bad request")
)
