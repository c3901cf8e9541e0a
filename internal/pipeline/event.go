package pipeline

import (
	"fmt"
	"time"
)

type Layer int

const (
	LayerTranscribe Layer = iota + 1
	LayerOrganize
	LayerFormat
	LayerPolish
	LayerCleanup
)

const layerCount = int(LayerCleanup) + 1

func (l Layer) String() string {
	switch l {
	case LayerTranscribe:
		return "transcribe"
	case LayerOrganize:
		return "organize"
	case LayerFormat:
		return "format"
	case LayerPolish:
		return "polish"
	case LayerCleanup:
		return "cleanup"
	default:
		return fmt.Sprintf("layer(%d)", int(l))
	}
}

type Status string

const (
	StatusStarted   Status = "started"
	StatusProgress  Status = "progress"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Event reports pipeline progress. Consumers only observe; nothing in the
// pipeline waits on them.
type Event struct {
	SessionID string
	Layer     Layer
	Status    Status
	ChunkID   string
	Sequence  int64
	// ChunkStartedAt is when the chunk's audio began. Layer 1 events only.
	ChunkStartedAt time.Time
	Payload        string
	Fragment       int
	Fragments      int
	Err            error
	At             time.Time
}

type EventSink interface {
	Publish(Event)
}

type SinkFunc func(Event)

func (f SinkFunc) Publish(e Event) {
	f(e)
}

type discardSink struct{}

func (discardSink) Publish(Event) {}
