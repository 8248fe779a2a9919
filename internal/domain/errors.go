package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionDisposed   = errors.New("session disposed")
	ErrUnsupportedPage   = errors.New("unsupported page")
	ErrCaptureNotAllowed = errors.New("capture not allowed on this site")
	ErrNoVideoFrame      = errors.New("no video frame available")
)
