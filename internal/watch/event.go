package watch

import "github.com/fsnotify/fsnotify"

// EventKind classifies a filesystem notification.
type EventKind int

const (
	// KindIgnored covers notifications that say nothing about content (chmod and the like).
	KindIgnored EventKind = iota
	KindCreated
	KindModified
	KindRemoved
)

func (k EventKind) String() string {
	switch k {
	case KindCreated:
		return "created"
	case KindModified:
		return "modified"
	case KindRemoved:
		return "removed"
	default:
		return "ignored"
	}
}

// ChangeEvent is one notification for one or more absolute paths.
type ChangeEvent struct {
	Kind  EventKind
	Paths []string
}

// FromFSNotify maps an fsnotify event. A rename reports the old name, so it is a removal;
// fsnotify emits a separate Create for the new name.
func FromFSNotify(ev fsnotify.Event) ChangeEvent {
	kind := KindIgnored
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		kind = KindRemoved
	case ev.Has(fsnotify.Create):
		kind = KindCreated
	case ev.Has(fsnotify.Write):
		kind = KindModified
	}
	return ChangeEvent{Kind: kind, Paths: []string{ev.Name}}
}
