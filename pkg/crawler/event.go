package crawler

import "github.com/google/uuid"

const (
	QuitSignal EventType = iota
	IndexAdvanced
	IndexUnchanged
)

type EventType int

func (et EventType) String() string {
	switch et {
	case QuitSignal:
		return "QuitSignal"
	case IndexAdvanced:
		return "IndexAdvanced"
	case IndexUnchanged:
		return "IndexUnchanged"
	default:
		return "Unknown"
	}
}

type QuitEvent struct{}

func (q QuitEvent) Type() EventType {
	return QuitSignal
}

// IndexEvent is emitted after every successful resync of an address space.
type IndexEvent struct {
	ID        uuid.UUID
	EventType EventType
	// Key identifies the observed address space.
	Key      string
	Previous uint32
	Current  uint32
}

func (i IndexEvent) Type() EventType {
	return i.EventType
}
