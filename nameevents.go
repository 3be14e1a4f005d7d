package dbus

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// NameEventKind classifies a semantic bus-name lifecycle event derived from
// the daemon's NameOwnerChanged signal.
type NameEventKind int

const (
	// NameOnline reports that a name acquired an owner where it had none.
	NameOnline NameEventKind = iota
	// NameOffline reports that a name lost its owner entirely.
	NameOffline
	// NameReplaced reports that a name's owner changed from one unique
	// connection to another without an intervening gap.
	NameReplaced
)

func (k NameEventKind) String() string {
	switch k {
	case NameOnline:
		return "online"
	case NameOffline:
		return "offline"
	case NameReplaced:
		return "replaced"
	default:
		return "unknown"
	}
}

// NameEvent reports a bus name appearing, disappearing, or changing owner.
type NameEvent struct {
	Name     string
	Kind     NameEventKind
	OldOwner string
	NewOwner string
}

// nameEventHandler fans NameEvent values out to registered channels,
// discarding an event for a subscriber whose channel isn't ready to receive
// it, mirroring Conn.Signal's best-effort delivery contract.
type nameEventHandler struct {
	mu   sync.Mutex
	subs []chan<- *NameEvent
}

func (h *nameEventHandler) add(c chan<- *NameEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs = append(h.subs, c)
}

func (h *nameEventHandler) remove(c chan<- *NameEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, s := range h.subs {
		if s == c {
			h.subs = append(h.subs[:i], h.subs[i+1:]...)
			return
		}
	}
}

func (h *nameEventHandler) deliver(ev *NameEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.subs {
		select {
		case c <- ev:
		default:
		}
	}
}

// NameEvents registers c to receive online/offline/replaced events derived
// from NameOwnerChanged. The caller must buffer c sufficiently; a channel
// that isn't ready to receive simply misses the event, as with Conn.Signal.
func (conn *Conn) NameEvents(c chan<- *NameEvent) {
	conn.nameEvt.add(c)
}

// RemoveNameEvents stops c from receiving events registered with NameEvents.
func (conn *Conn) RemoveNameEvents(c chan<- *NameEvent) {
	conn.nameEvt.remove(c)
}

// handleNameOwnerChanged repairs any ServiceHandle registered for name and
// emits the corresponding semantic event to NameEvents subscribers.
func (conn *Conn) handleNameOwnerChanged(name, oldOwner, newOwner string) {
	var kind NameEventKind
	switch {
	case oldOwner == "" && newOwner != "":
		kind = NameOnline
	case oldOwner != "" && newOwner == "":
		kind = NameOffline
	default:
		kind = NameReplaced
	}

	conn.svcHandlesLck.Lock()
	svc, tracked := conn.svcHandles[name]
	conn.svcHandlesLck.Unlock()
	if tracked {
		if kind != NameOnline {
			conn.log.WithFields(logrus.Fields{"name": name, "kind": kind.String(), "new_owner": newOwner}).
				Warn("dbus: repairing service handle after NameOwnerChanged")
		}
		svc.repair(newOwner)
	}

	conn.nameEvt.deliver(&NameEvent{Name: name, Kind: kind, OldOwner: oldOwner, NewOwner: newOwner})
}
