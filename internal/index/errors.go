package index

import "errors"

// ErrAlreadyInitialized is returned by Initialize when called twice without
// an intervening Shutdown.
var ErrAlreadyInitialized = errors.New("index: already initialized")

// ErrNotInitialized is returned by operations called before Initialize or
// after Shutdown.
var ErrNotInitialized = errors.New("index: not initialized")

// ErrConflictingFilters names the conflict of setting both synced_only and
// cloud_only. SearchWithFilters does not return it: for that combination it
// returns an empty result and a nil error.
var ErrConflictingFilters = errors.New("index: synced_only and cloud_only are mutually exclusive")
