package dbus

import "strings"

// Name validation rules per the DBus specification. Each entity kind raises
// its own typed error so callers can distinguish what was wrong without
// parsing a message string.

func isMemberChar(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z') ||
		(c >= 'a' && c <= 'z') || c == '_'
}

func isBusNameChar(c rune) bool {
	return isMemberChar(c) || c == '-'
}

// isValidInterface returns whether s is a valid name for an interface, e.g.
// "org.freedesktop.DBus".
func isValidInterface(s string) bool {
	if len(s) == 0 || len(s) > 255 || s[0] == '.' {
		return false
	}
	elem := strings.Split(s, ".")
	if len(elem) < 2 {
		return false
	}
	for _, v := range elem {
		if len(v) == 0 {
			return false
		}
		if v[0] >= '0' && v[0] <= '9' {
			return false
		}
		for _, c := range v {
			if !isMemberChar(c) {
				return false
			}
		}
	}
	return true
}

// isValidMember returns whether s is a valid name for a method, signal, or
// property: up to 255 bytes, [A-Za-z_][A-Za-z0-9_]*, no dots.
func isValidMember(s string) bool {
	if len(s) == 0 || len(s) > 255 {
		return false
	}
	if strings.IndexByte(s, '.') != -1 {
		return false
	}
	if s[0] >= '0' && s[0] <= '9' {
		return false
	}
	for _, c := range s {
		if !isMemberChar(c) {
			return false
		}
	}
	return true
}

// isValidServiceName returns whether s is a valid well-known bus name. Up to
// 255 bytes, two or more dot-separated elements, each starting with a
// letter/underscore/hyphen and containing [A-Za-z0-9_-]; no leading,
// trailing, or consecutive dots. A unique name (starting with ':') is always
// considered valid since its grammar is bus-assigned, not caller-chosen.
func isValidServiceName(s string) bool {
	if len(s) == 0 || len(s) > 255 {
		return false
	}
	if s[0] == ':' {
		return true
	}
	if s[0] == '.' || s[len(s)-1] == '.' {
		return false
	}
	elem := strings.Split(s, ".")
	if len(elem) < 2 {
		return false
	}
	for _, v := range elem {
		if len(v) == 0 {
			return false
		}
		if v[0] >= '0' && v[0] <= '9' {
			return false
		}
		for _, c := range v {
			if !isBusNameChar(c) {
				return false
			}
		}
	}
	return true
}

// isValidObjectPath returns whether s is a valid object path.
func isValidObjectPath(s string) bool {
	return ObjectPath(s).IsValid() && len(s) <= 255
}

// InvalidNameError is raised when a caller-supplied name fails validation
// for the entity kind named in Kind.
type InvalidNameError struct {
	Kind string
	Name string
}

func (e InvalidNameError) Error() string {
	return "dbus: invalid " + e.Kind + " name: " + e.Name
}

func validateServiceName(name string) error {
	if !isValidServiceName(name) {
		return InvalidNameError{"service", name}
	}
	return nil
}

func validateObjectPath(path ObjectPath) error {
	if !isValidObjectPath(string(path)) {
		return InvalidNameError{"object path", string(path)}
	}
	return nil
}

func validateInterfaceName(name string) error {
	if !isValidInterface(name) {
		return InvalidNameError{"interface", name}
	}
	return nil
}

func validateMemberName(kind, name string) error {
	if !isValidMember(name) {
		return InvalidNameError{kind, name}
	}
	return nil
}
