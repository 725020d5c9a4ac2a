package diag

import "errors"

// ErrNotInitialized reports that the TTS façade or its service is not
// present in the page yet.
var ErrNotInitialized = errors.New("tts ui not initialized")

// ErrScreenNotFound reports that no screen element matched a lookup.
var ErrScreenNotFound = errors.New("screen not found")
