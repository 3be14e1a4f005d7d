package dbus

import "strings"

// RequestNameFlags represents the possible flags for the RequestName call.
type RequestNameFlags uint32

const (
	NameFlagAllowReplacement RequestNameFlags = 1 << iota
	NameFlagReplaceExisting
	NameFlagDoNotQueue
)

// RequestNameReply is the possible outcome of a RequestName call.
type RequestNameReply uint32

const (
	RequestReplyPrimaryOwner RequestNameReply = 1 + iota
	RequestReplyInQueue
	RequestReplyExists
	RequestReplyAlreadyOwner
)

// ReleaseNameReply is the possible outcome of a ReleaseName call.
type ReleaseNameReply uint32

const (
	ReleaseReplyReleased ReleaseNameReply = 1 + iota
	ReleaseReplyNonExistent
	ReleaseReplyNotOwner
)

// RequestName calls org.freedesktop.DBus.RequestName to acquire a
// well-known bus name.
func (conn *Conn) RequestName(name string, flags RequestNameFlags) (RequestNameReply, error) {
	var r uint32
	err := conn.busObj.Call("org.freedesktop.DBus.RequestName", 0, name, uint32(flags)).Store(&r)
	if err != nil {
		return 0, err
	}
	return RequestNameReply(r), nil
}

// ReleaseName calls org.freedesktop.DBus.ReleaseName to give up a
// well-known bus name previously acquired with RequestName.
func (conn *Conn) ReleaseName(name string) (ReleaseNameReply, error) {
	var r uint32
	err := conn.busObj.Call("org.freedesktop.DBus.ReleaseName", 0, name).Store(&r)
	if err != nil {
		return 0, err
	}
	return ReleaseNameReply(r), nil
}

// ListNames calls org.freedesktop.DBus.ListNames.
func (conn *Conn) ListNames() ([]string, error) {
	var names []string
	err := conn.busObj.Call("org.freedesktop.DBus.ListNames", 0).Store(&names)
	return names, err
}

// ListActivatableNames calls org.freedesktop.DBus.ListActivatableNames.
func (conn *Conn) ListActivatableNames() ([]string, error) {
	var names []string
	err := conn.busObj.Call("org.freedesktop.DBus.ListActivatableNames", 0).Store(&names)
	return names, err
}

// NameHasOwner calls org.freedesktop.DBus.NameHasOwner.
func (conn *Conn) NameHasOwner(name string) (bool, error) {
	var has bool
	err := conn.busObj.Call("org.freedesktop.DBus.NameHasOwner", 0, name).Store(&has)
	return has, err
}

// GetNameOwner calls org.freedesktop.DBus.GetNameOwner.
func (conn *Conn) GetNameOwner(name string) (string, error) {
	var owner string
	err := conn.busObj.Call("org.freedesktop.DBus.GetNameOwner", 0, name).Store(&owner)
	return owner, err
}

// GetConnectionUnixProcessID calls
// org.freedesktop.DBus.GetConnectionUnixProcessID.
func (conn *Conn) GetConnectionUnixProcessID(name string) (uint32, error) {
	var pid uint32
	err := conn.busObj.Call("org.freedesktop.DBus.GetConnectionUnixProcessID", 0, name).Store(&pid)
	return pid, err
}

// GetConnectionUnixUser calls org.freedesktop.DBus.GetConnectionUnixUser.
func (conn *Conn) GetConnectionUnixUser(name string) (uint32, error) {
	var uid uint32
	err := conn.busObj.Call("org.freedesktop.DBus.GetConnectionUnixUser", 0, name).Store(&uid)
	return uid, err
}

// StartServiceByName calls org.freedesktop.DBus.StartServiceByName to
// request that the bus start an activatable service. This library does not
// itself implement bus activation; it only issues the call.
func (conn *Conn) StartServiceByName(name string, flags uint32) (uint32, error) {
	var r uint32
	err := conn.busObj.Call("org.freedesktop.DBus.StartServiceByName", 0, name, flags).Store(&r)
	return r, err
}

// ReloadConfig calls org.freedesktop.DBus.ReloadConfig.
func (conn *Conn) ReloadConfig() error {
	return conn.busObj.Call("org.freedesktop.DBus.ReloadConfig", 0).Err
}

// MatchOption represents a single key=value clause of a match rule.
type MatchOption struct {
	key   string
	value string
}

// WithMatchType restricts a match rule to a given message type ("signal",
// "method_call", "method_return", "error").
func WithMatchType(typ string) MatchOption { return MatchOption{"type", typ} }

// WithMatchSender restricts a match rule to signals from the given sender.
func WithMatchSender(sender string) MatchOption { return MatchOption{"sender", sender} }

// WithMatchObjectPath restricts a match rule to the given object path.
func WithMatchObjectPath(path ObjectPath) MatchOption {
	return MatchOption{"path", string(path)}
}

// WithMatchInterface restricts a match rule to the given interface.
func WithMatchInterface(iface string) MatchOption { return MatchOption{"interface", iface} }

// WithMatchMember restricts a match rule to the given signal or method name.
func WithMatchMember(member string) MatchOption { return MatchOption{"member", member} }

// WithMatchDestination restricts a match rule to the given destination.
func WithMatchDestination(dest string) MatchOption {
	return MatchOption{"destination", dest}
}

func formatMatchOptions(options []MatchOption) string {
	parts := make([]string, 0, len(options)+1)
	hasType := false
	for _, o := range options {
		if o.key == "type" {
			hasType = true
		}
		parts = append(parts, o.key+"='"+o.value+"'")
	}
	if !hasType {
		parts = append([]string{"type='signal'"}, parts...)
	}
	return strings.Join(parts, ",")
}

// AddMatchSignal adds a match rule to the bus so that matching signals are
// delivered to this connection, and increments the rule's local reference
// count. The first subscriber for a given rule issues AddMatch on the bus;
// later subscribers to the identical rule reuse it.
func (conn *Conn) AddMatchSignal(options ...MatchOption) error {
	rule := formatMatchOptions(options)
	conn.matchRefsLck.Lock()
	defer conn.matchRefsLck.Unlock()
	if conn.matchRefs[rule] > 0 {
		conn.matchRefs[rule]++
		return nil
	}
	if err := conn.busObj.Call("org.freedesktop.DBus.AddMatch", 0, rule).Err; err != nil {
		return err
	}
	conn.matchRefs[rule] = 1
	return nil
}

// RemoveMatchSignal decrements the rule's local reference count, issuing
// RemoveMatch on the bus once no subscriber remains for it.
func (conn *Conn) RemoveMatchSignal(options ...MatchOption) error {
	rule := formatMatchOptions(options)
	conn.matchRefsLck.Lock()
	defer conn.matchRefsLck.Unlock()
	if conn.matchRefs[rule] == 0 {
		return nil
	}
	conn.matchRefs[rule]--
	if conn.matchRefs[rule] > 0 {
		return nil
	}
	delete(conn.matchRefs, rule)
	conn.log.WithField("rule", rule).Debug("dbus: pruning last signal subscriber for match rule")
	return conn.busObj.Call("org.freedesktop.DBus.RemoveMatch", 0, rule).Err
}
