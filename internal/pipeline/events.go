package pipeline

import "github.com/lyrplay/slimclient/internal/pee"

// Event is what the pipeline hands to its outbound channel. It reuses
// pee.Event directly: the coordinator's only job with it is to forward
// Kind/ErrorCode into a pee.Emitter, so a second parallel enum would be
// pure duplication.
type Event struct {
	Kind      pee.Event
	ErrorCode string
}
