package domain

import "errors"

var (
	ErrCaptureStart   = errors.New("capture could not start")
	ErrCaptureProduce = errors.New("capture produced no audio")
	ErrEngine         = errors.New("speech engine failed")
	ErrEnhancement    = errors.New("enhancement failed")
	ErrStoreWrite     = errors.New("shared state write failed")

	// ErrStaleSession marks results dropped because a newer session began.
	// It is never shown to the user.
	ErrStaleSession = errors.New("stale session ignored")
)
