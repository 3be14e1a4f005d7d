package dbus

import (
	"bytes"
	"os"
	"os/exec"
	"reflect"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const defaultSystemBusAddress = "unix:path=/var/run/dbus/system_bus_socket"

var (
	systemBus  *Conn
	sessionBus *Conn
)

// SignalHandler dispatches received signals to interested subscribers. The
// default implementation (NewSequentialSignalHandler) guarantees that
// signals are delivered to each subscriber channel in the order they were
// received on the connection.
type SignalHandler interface {
	DeliverSignal(iface, member string, signal *Signal)
	Terminate()
	AddSignal(ch chan<- *Signal)
	RemoveSignal(ch chan<- *Signal)
}

// Conn represents a connection to a message bus (usually, the system or
// session bus).
//
// Multiple goroutines may invoke methods on a connection simultaneously.
type Conn struct {
	transport
	uuid            string
	names           []string
	namesLck        sync.RWMutex
	serial          chan uint32
	serialUsed      chan uint32
	calls           map[uint32]*Call
	callsLck        sync.RWMutex
	out             chan *Message
	handler         SignalHandler
	eavesdropped    chan *Message
	eavesdroppedLck sync.Mutex
	busObj          *Object
	unixFD          bool
	authMethods     []Auth
	log             *logrus.Entry
	service         *Service
	svcLck          sync.RWMutex

	isServer          bool
	serverAuthMethods []ServerAuth
	noHello           bool

	matchRefs    map[string]int
	matchRefsLck sync.Mutex

	svcHandles    map[string]*ServiceHandle
	svcHandlesLck sync.Mutex
	nameEvt       nameEventHandler
}

// ConnOption configures a Conn before the initial handshake runs.
type ConnOption func(*Conn)

// WithAuth overrides the authentication mechanisms tried during Dial, in
// order. Without this option, EXTERNAL (keyed off the process uid),
// DBUS_COOKIE_SHA1, then ANONYMOUS are tried in turn.
func WithAuth(methods ...Auth) ConnOption {
	return func(conn *Conn) { conn.authMethods = methods }
}

// withServerAuth configures a Conn to run the listening side of the
// handshake instead of the client side, used by Server.Accept. The
// connection skips the initial Hello call since peer-to-peer connections
// have no bus daemon to register a unique name with.
func withServerAuth(uuid string, methods []ServerAuth) ConnOption {
	return func(conn *Conn) {
		conn.isServer = true
		conn.noHello = true
		conn.uuid = uuid
		conn.serverAuthMethods = methods
	}
}

// WithoutHello skips the initial org.freedesktop.DBus.Hello call, for the
// dialing side of a peer-to-peer connection established directly against
// another Conn's Server.Accept rather than a bus daemon. Conn.Export still
// works on the result; there is simply no unique name or bus object to ask
// for one.
func WithoutHello() ConnOption {
	return func(conn *Conn) { conn.noHello = true }
}

// WithSignalHandler overrides the handler used to dispatch received
// signals. The default is NewSequentialSignalHandler().
func WithSignalHandler(handler SignalHandler) ConnOption {
	return func(conn *Conn) { conn.handler = handler }
}

// WithLogger attaches a logrus entry used for this connection's structured
// log records. Without this option, a disabled (no-op) logger is used.
func WithLogger(log *logrus.Entry) ConnOption {
	return func(conn *Conn) { conn.log = log }
}

// SessionBus returns the connection to the session bus, connecting to it if
// not already done.
func SessionBus() (conn *Conn, err error) {
	if sessionBus != nil {
		return sessionBus, nil
	}
	defer func() {
		if conn != nil {
			sessionBus = conn
		}
	}()
	address := os.Getenv("DBUS_SESSION_BUS_ADDRESS")
	if address != "" && address != "autolaunch:" {
		return Dial(address)
	}
	cmd := exec.Command("dbus-launch")
	b, err := cmd.CombinedOutput()
	if err != nil {
		return nil, errors.Wrap(err, "dbus: launching session bus")
	}
	i := bytes.IndexByte(b, '=')
	j := bytes.IndexByte(b, '\n')
	if i == -1 || j == -1 {
		return nil, errors.New("dbus: couldn't determine address of the session bus")
	}
	return Dial(string(b[i+1 : j]))
}

// SystemBus returns the connection to the system bus, connecting to it if
// not already done.
func SystemBus() (conn *Conn, err error) {
	if systemBus != nil {
		return systemBus, nil
	}
	defer func() {
		if conn != nil {
			systemBus = conn
		}
	}()
	address := os.Getenv("DBUS_SYSTEM_BUS_ADDRESS")
	if address != "" {
		return Dial(address)
	}
	return Dial(defaultSystemBusAddress)
}

// Dial establishes a new connection to the message bus specified by address.
func Dial(address string, opts ...ConnOption) (*Conn, error) {
	tr, err := getTransport(address)
	if err != nil {
		return nil, errors.Wrap(err, "dbus: dial")
	}
	return newConn(tr, opts...)
}

// newConn wraps an already-established transport (used by Dial and by
// Server.Accept) into an authenticated, running *Conn.
func newConn(tr transport, opts ...ConnOption) (*Conn, error) {
	conn := new(Conn)
	conn.transport = tr
	conn.handler = NewSequentialSignalHandler()
	conn.log = nullLogEntry()
	conn.matchRefs = make(map[string]int)
	for _, opt := range opts {
		opt(conn)
	}

	if conn.isServer {
		if err := conn.serverAuth(conn.serverAuthMethods); err != nil {
			conn.transport.Close()
			return nil, errors.Wrap(err, "dbus: authentication")
		}
	} else {
		if err := conn.auth(); err != nil {
			conn.transport.Close()
			return nil, errors.Wrap(err, "dbus: authentication")
		}
	}
	conn.calls = make(map[uint32]*Call)
	conn.out = make(chan *Message, 10)
	conn.serial = make(chan uint32)
	conn.serialUsed = make(chan uint32)
	go conn.inWorker()
	go conn.outWorker()
	go conn.serials()
	if conn.noHello {
		// Peer-to-peer connections have no bus daemon to Hello with; the
		// Service (if any) is wired in by the caller after Dial/Accept
		// returns, via Export or NewService.
		return conn, nil
	}
	conn.busObj = conn.Object("org.freedesktop.DBus", "/org/freedesktop/DBus")
	if err := conn.hello(); err != nil {
		conn.transport.Close()
		return nil, errors.Wrap(err, "dbus: hello")
	}
	// Subscribe to NameOwnerChanged so cached ServiceHandles can be repaired
	// and online/offline/replaced events emitted; failure to subscribe is
	// not fatal to the connection, only to that repair/notification path.
	if err := conn.AddMatchSignal(
		WithMatchSender("org.freedesktop.DBus"),
		WithMatchInterface("org.freedesktop.DBus"),
		WithMatchMember("NameOwnerChanged"),
	); err != nil {
		conn.log.WithError(err).Debug("dbus: could not subscribe to NameOwnerChanged")
	}
	return conn, nil
}

// BusObject returns the message bus object.
func (conn *Conn) BusObject() *Object {
	return conn.busObj
}

// Close closes the connection. Any blocked operations will return with
// errors and the handler's channels are terminated.
func (conn *Conn) Close() error {
	close(conn.out)
	conn.handler.Terminate()
	conn.eavesdroppedLck.Lock()
	if conn.eavesdropped != nil {
		close(conn.eavesdropped)
	}
	conn.eavesdroppedLck.Unlock()
	return conn.transport.Close()
}

// Eavesdrop changes the channel to which all messages are sent whose
// destination field is not one of the known names of this connection and
// which are not signals. The caller has to make sure that c is sufficiently
// buffered; if a message arrives when a write to c is not possible, the
// message is discarded.
//
// The channel can be reset by passing nil.
func (conn *Conn) Eavesdrop(c chan *Message) {
	conn.eavesdroppedLck.Lock()
	conn.eavesdropped = c
	conn.eavesdroppedLck.Unlock()
}

// hello sends the initial org.freedesktop.DBus.Hello call.
func (conn *Conn) hello() error {
	var s string
	if err := conn.busObj.Call("org.freedesktop.DBus.Hello", 0).Store(&s); err != nil {
		return err
	}
	conn.namesLck.Lock()
	conn.names = []string{s}
	conn.namesLck.Unlock()
	conn.log.WithField("name", s).Debug("dbus: acquired unique name")
	return nil
}

// inWorker runs in its own goroutine, reading incoming messages from the
// transport and dispatching them appropriately.
func (conn *Conn) inWorker() {
	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			if _, ok := err.(InvalidMessageError); ok {
				continue
			}
			// Some read error occurred (usually EOF); shut everything down
			// and return errors to all pending replies.
			conn.log.WithError(err).Error("dbus: connection closed by read error")
			conn.Close()
			conn.callsLck.RLock()
			for _, v := range conn.calls {
				v.Err = err
				if v.Done != nil {
					v.Done <- v
				}
			}
			conn.callsLck.RUnlock()
			return
		}

		dest, _ := msg.Headers[FieldDestination].value.(string)
		found := false
		conn.namesLck.RLock()
		if len(conn.names) == 0 {
			found = true
		}
		for _, v := range conn.names {
			if dest == v {
				found = true
				break
			}
		}
		conn.namesLck.RUnlock()

		conn.eavesdroppedLck.Lock()
		if !found && (msg.Type != TypeSignal || conn.eavesdropped != nil) {
			select {
			case conn.eavesdropped <- msg:
			default:
			}
			conn.eavesdroppedLck.Unlock()
			continue
		}
		conn.eavesdroppedLck.Unlock()

		switch msg.Type {
		case TypeMethodReply, TypeError:
			conn.dispatchReply(msg)
		case TypeSignal:
			conn.dispatchSignal(msg)
		case TypeMethodCall:
			go conn.handleCall(msg)
		}
	}
}

func (conn *Conn) dispatchReply(msg *Message) {
	serial, _ := msg.Headers[FieldReplySerial].value.(uint32)
	conn.callsLck.Lock()
	c, ok := conn.calls[serial]
	if ok {
		delete(conn.calls, serial)
	}
	conn.callsLck.Unlock()
	if !ok {
		return
	}
	if msg.Type == TypeError {
		name, _ := msg.Headers[FieldErrorName].value.(string)
		c.Err = Error{name, msg.Body}
	} else {
		c.Body = msg.Body
	}
	if c.Done != nil {
		c.Done <- c
	}
	conn.serialUsed <- serial
}

func (conn *Conn) dispatchSignal(msg *Message) {
	iface, _ := msg.Headers[FieldInterface].value.(string)
	member, _ := msg.Headers[FieldMember].value.(string)
	sender, _ := msg.Headers[FieldSender].value.(string)

	if iface == "org.freedesktop.DBus" && sender == "org.freedesktop.DBus" {
		switch member {
		case "NameLost":
			name, _ := firstString(msg.Body)
			conn.forgetName(name)
		case "NameAcquired":
			name, _ := firstString(msg.Body)
			conn.rememberName(name)
		case "NameOwnerChanged":
			if len(msg.Body) == 3 {
				name, _ := msg.Body[0].(string)
				oldOwner, _ := msg.Body[1].(string)
				newOwner, _ := msg.Body[2].(string)
				conn.handleNameOwnerChanged(name, oldOwner, newOwner)
			}
		}
	}

	signal := &Signal{
		Sender: sender,
		Path:   msg.Headers[FieldPath].value.(ObjectPath),
		Name:   iface + "." + member,
		Body:   msg.Body,
	}
	conn.handler.DeliverSignal(iface, member, signal)
}

func firstString(body []interface{}) (string, bool) {
	if len(body) == 0 {
		return "", false
	}
	s, ok := body[0].(string)
	return s, ok
}

func (conn *Conn) forgetName(name string) {
	conn.namesLck.Lock()
	defer conn.namesLck.Unlock()
	for i, v := range conn.names {
		if v == name {
			conn.names = append(conn.names[:i], conn.names[i+1:]...)
			return
		}
	}
}

func (conn *Conn) rememberName(name string) {
	conn.namesLck.Lock()
	defer conn.namesLck.Unlock()
	for _, v := range conn.names {
		if v == name {
			return
		}
	}
	conn.names = append(conn.names, name)
}

// Names returns the list of all names that are currently owned by this
// connection. On a connection to a bus, the first element is the unique
// name of the connection; a connection made with WithoutHello, or accepted
// by a Server, starts with no names, so the slice may be empty.
func (conn *Conn) Names() []string {
	conn.namesLck.RLock()
	s := make([]string, len(conn.names))
	copy(s, conn.names)
	conn.namesLck.RUnlock()
	return s
}

// Object returns the object identified by the given destination name and
// path.
func (conn *Conn) Object(dest string, path ObjectPath) *Object {
	return &Object{conn, dest, path}
}

// outWorker runs in its own goroutine, encoding and sending messages that
// are sent to conn.out.
func (conn *Conn) outWorker() {
	for msg := range conn.out {
		err := conn.SendMessage(msg)
		conn.callsLck.RLock()
		if err != nil {
			if c := conn.calls[msg.Serial()]; c != nil {
				c.Err = err
				if c.Done != nil {
					c.Done <- c
				}
			}
			conn.serialUsed <- msg.Serial()
		} else if msg.Type != TypeMethodCall {
			conn.serialUsed <- msg.Serial()
		}
		conn.callsLck.RUnlock()
	}
}

// Send the given message to the message bus. You usually don't need to use
// this; use the higher-level equivalents (Object.Call, Object.Go) instead.
// The returned call is nil if msg isn't a method call or if
// FlagNoReplyExpected is set.
func (conn *Conn) Send(msg *Message, ch chan *Call) *Call {
	msg.SetSerial(<-conn.serial)
	if msg.Type == TypeMethodCall && msg.Flags&FlagNoReplyExpected == 0 {
		if ch == nil {
			ch = make(chan *Call, 5)
		} else if cap(ch) == 0 {
			panic("dbus: (*Conn).Send: unbuffered channel")
		}
		call := new(Call)
		call.Destination, _ = msg.Headers[FieldDestination].value.(string)
		call.Path, _ = msg.Headers[FieldPath].value.(ObjectPath)
		iface, _ := msg.Headers[FieldInterface].value.(string)
		member, _ := msg.Headers[FieldMember].value.(string)
		call.Method = iface + "." + member
		call.Args = msg.Body
		call.Done = ch
		conn.callsLck.Lock()
		conn.calls[msg.Serial()] = call
		conn.callsLck.Unlock()
		conn.out <- msg
		return call
	}
	conn.out <- msg
	return nil
}

// sendError creates an error message corresponding to the parameters and
// sends it to conn.out.
func (conn *Conn) sendError(e Error, dest string, serial uint32) {
	msg := new(Message)
	msg.Type = TypeError
	msg.SetSerial(<-conn.serial)
	msg.Headers = make(map[HeaderField]Variant)
	msg.Headers[FieldDestination] = MakeVariant(dest)
	msg.Headers[FieldErrorName] = MakeVariant(e.Name)
	msg.Headers[FieldReplySerial] = MakeVariant(serial)
	msg.Body = e.Body
	if len(e.Body) > 0 {
		msg.Headers[FieldSignature] = MakeVariant(SignatureOf(e.Body...))
	}
	conn.out <- msg
}

// sendReply creates a method reply message corresponding to the parameters
// and sends it to conn.out.
func (conn *Conn) sendReply(dest string, serial uint32, values ...interface{}) {
	msg := new(Message)
	msg.Type = TypeMethodReply
	msg.SetSerial(<-conn.serial)
	msg.Headers = make(map[HeaderField]Variant)
	msg.Headers[FieldDestination] = MakeVariant(dest)
	msg.Headers[FieldReplySerial] = MakeVariant(serial)
	msg.Body = values
	if len(values) > 0 {
		msg.Headers[FieldSignature] = MakeVariant(SignatureOf(values...))
	}
	conn.out <- msg
}

// serials runs in its own goroutine, constantly sending serials on
// conn.serial and reading serials that are ready for "recycling" from
// conn.serialUsed.
func (conn *Conn) serials() {
	s := uint32(1)
	used := make(map[uint32]bool)
	used[0] = true // ensure that 0 is never used
	for {
		select {
		case conn.serial <- s:
			used[s] = true
			s++
			if s == 0 {
				// Wrapped past the uint32 range back to 0, which is
				// reserved; skip straight to 1.
				conn.log.Debug("dbus: serial counter wrapped around")
				s = 1
			}
			for used[s] {
				s++
			}
		case n := <-conn.serialUsed:
			delete(used, n)
		}
	}
}

// Signal registers c to receive all received signal messages. The caller
// has to make sure that c is sufficiently buffered; if a message arrives
// when a write to c is not possible, it is discarded.
//
// This is a convenience wrapper around the connection's SignalHandler; for
// per-subscriber match rules use AddMatchSignal plus this method.
func (conn *Conn) Signal(c chan<- *Signal) {
	conn.handler.AddSignal(c)
}

// RemoveSignal stops c from receiving signals registered with Signal.
func (conn *Conn) RemoveSignal(c chan<- *Signal) {
	conn.handler.RemoveSignal(c)
	if sh, ok := conn.handler.(*sequentialSignalHandler); ok {
		conn.log.WithField("remaining_subscribers", sh.Len()).Debug("dbus: pruned signal subscriber")
	}
}

// SupportsUnixFDs returns whether the underlying transport supports passing
// of Unix file descriptors. Per this library's scope this is always false:
// descriptors are addressed by index only, never passed out of band.
func (conn *Conn) SupportsUnixFDs() bool {
	return conn.unixFD
}

// Error represents a DBus message of type Error.
type Error struct {
	Name string
	Body []interface{}
}

func (e Error) Error() string {
	if len(e.Body) > 0 {
		if s, ok := e.Body[0].(string); ok {
			return s
		}
	}
	return e.Name
}

// Signal represents a DBus message of type Signal. The name member is given
// in "interface.member" notation, e.g. org.freedesktop.DBus.NameLost.
type Signal struct {
	Sender string
	Path   ObjectPath
	Name   string
	Body   []interface{}
}

// transport is a DBus transport.
type transport interface {
	// Read and Write raw data (for example, for the authentication protocol).
	Read([]byte) (int, error)
	Write([]byte) (int, error)
	Close() error

	// SendNullByte sends the initial null byte used for the EXTERNAL
	// mechanism.
	SendNullByte() error

	// SupportsUnixFDs returns whether this transport supports passing Unix
	// FDs. Always false: see UnixFD's documentation.
	SupportsUnixFDs() bool

	// EnableUnixFDs signals the transport that Unix FD passing is enabled
	// for this connection. A no-op, kept for wire compatibility with peers
	// that negotiate it.
	EnableUnixFDs()

	// ReadMessage / SendMessage read and send a single framed message.
	ReadMessage() (*Message, error)
	SendMessage(*Message) error
}

func getTransport(address string) (transport, error) {
	var err error
	var t transport

	m := map[string]func(string) (transport, error){
		"unix": newUnixTransport,
		"tcp":  newTCPTransport,
	}
	addresses := strings.Split(address, ";")
	for _, v := range addresses {
		pkgLog().WithField("address", v).Debug("dbus: attempting transport address")
		i := strings.IndexRune(v, ':')
		if i == -1 {
			err = errors.New("dbus: bad address: no transport")
			pkgLog().WithField("address", v).Warn("dbus: transport address attempt failed")
			continue
		}
		f := m[v[:i]]
		if f == nil {
			err = errors.New("dbus: bad address: invalid or unsupported transport")
			pkgLog().WithField("address", v).Warn("dbus: transport address attempt failed")
			continue
		}
		t, err = f(v[i+1:])
		if err == nil {
			return t, nil
		}
		pkgLog().WithError(err).WithField("address", v).Warn("dbus: transport address attempt failed")
	}
	return nil, err
}

// dereferenceAll returns a slice that, assuming that vs is a slice of
// pointers of arbitrary types, contains the values obtained from
// dereferencing all elements in vs.
func dereferenceAll(vs []interface{}) []interface{} {
	for i := range vs {
		v := reflect.ValueOf(vs[i])
		v = v.Elem()
		vs[i] = v.Interface()
	}
	return vs
}

// getKey gets a key from the list of comma-separated key=value pairs in s.
// Returns "" if not found.
func getKey(s, key string) string {
	i := strings.Index(s, key)
	if i == -1 {
		return ""
	}
	if i+len(key)+1 >= len(s) || s[i+len(key)] != '=' {
		return ""
	}
	j := strings.Index(s[i:], ",")
	if j == -1 {
		return s[i+len(key)+1:]
	}
	return s[i+len(key)+1 : i+j]
}
