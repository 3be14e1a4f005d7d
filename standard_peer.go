package dbus

import (
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// machineIDPaths are tried in order for org.freedesktop.DBus.Peer.GetMachineId,
// matching the locations a real bus daemon populates.
var machineIDPaths = []string{"/etc/machine-id", "/var/lib/dbus/machine-id"}

var (
	machineIDOnce sync.Once
	machineIDVal  string
)

// peerObject implements org.freedesktop.DBus.Peer. It is installed on every
// object a Service creates, rather than special-cased in Conn.handleCall, so
// it shows up like any other exported interface in introspection and
// GetManagedObjects.
type peerObject struct {
	conn *Conn
}

func (p peerObject) Ping() *Error { return nil }

func (p peerObject) GetMachineId() (string, *Error) { return p.conn.machineID(), nil }

// machineID returns a stable identifier for this host, read once from
// /etc/machine-id or /var/lib/dbus/machine-id and cached for the lifetime
// of the process. If neither file is readable, a random UUID is generated
// and cached instead so repeated calls on this connection stay stable.
func (conn *Conn) machineID() string {
	machineIDOnce.Do(func() {
		for _, p := range machineIDPaths {
			b, err := os.ReadFile(p)
			if err != nil {
				continue
			}
			id := strings.TrimSpace(string(b))
			if id != "" {
				machineIDVal = id
				return
			}
		}
		machineIDVal = strings.ReplaceAll(uuid.NewString(), "-", "")
	})
	return machineIDVal
}
