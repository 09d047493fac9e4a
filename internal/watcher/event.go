package watcher

import "time"

// EventType says what happened to a watched file.
type EventType uint8

const (
	EventAdded    EventType = iota // a new file settled
	EventModified                  // an existing file was rewritten and settled
	EventRemoved                   // the file was deleted or moved away
)

var eventNames = [...]string{
	EventAdded:    "added",
	EventModified: "modified",
	EventRemoved:  "removed",
}

func (t EventType) String() string {
	if int(t) < len(eventNames) {
		return eventNames[t]
	}
	return "unknown"
}

// Event is a settled change to a file under a watched root.
type Event struct {
	Type EventType
	Path string

	// Size and ModTime are the values observed when the file settled.
	// Both are zero for removals.
	Size    int64
	ModTime time.Time
}
