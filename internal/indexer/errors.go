package indexer

import "errors"

// ErrAlreadyIndexing is returned by Start when a run is already in flight.
var ErrAlreadyIndexing = errors.New("indexer: a run is already in progress")

// errStopStreaming is an internal sentinel used to unwind streamRecords
// cleanly on cancellation without treating it as a parse failure.
var errStopStreaming = errors.New("indexer: streaming stopped by cancellation")
