package dbus

// propertyProvider is implemented by org.freedesktop.DBus.Properties
// handlers (see the prop package). ObjectManager uses it to project each
// exported interface's current properties without importing prop, which
// itself depends on this package.
type propertyProvider interface {
	GetAll(iface string) (map[string]Variant, *Error)
}

// objectManager implements org.freedesktop.DBus.ObjectManager, installed on
// the root object ("/") of every Service.
type objectManager struct {
	svc *Service
}

func newObjectManager(svc *Service) *objectManager {
	return &objectManager{svc: svc}
}

// GetManagedObjects implements org.freedesktop.DBus.ObjectManager.GetManagedObjects.
func (m *objectManager) GetManagedObjects() (map[ObjectPath]map[string]map[string]Variant, *Error) {
	m.svc.mut.RLock()
	objs := make(map[ObjectPath]*object, len(m.svc.objects))
	for p, o := range m.svc.objects {
		objs[p] = o
	}
	m.svc.mut.RUnlock()

	result := make(map[ObjectPath]map[string]map[string]Variant, len(objs))
	for path, obj := range objs {
		result[path] = ifacesSnapshot(obj)
	}
	return result, nil
}
