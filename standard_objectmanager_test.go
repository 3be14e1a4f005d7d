package dbus

import "testing"

type fakePropertyProvider struct {
	props map[string]Variant
	err   *Error
}

func (f fakePropertyProvider) GetAll(iface string) (map[string]Variant, *Error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.props, nil
}

func TestObjectManagerGetManagedObjects(t *testing.T) {
	svc := &Service{objects: make(map[ObjectPath]*object)}
	svc.objects["/"] = &object{ifaces: map[string]*exportedIntf{
		"org.freedesktop.DBus.ObjectManager": newExportedIntf("org.freedesktop.DBus.ObjectManager", newObjectManager(svc)),
	}}
	svc.objects["/org/example/Foo"] = &object{ifaces: map[string]*exportedIntf{
		"org.example.Foo": newExportedIntf("org.example.Foo", adder{}),
	}}

	mgr := newObjectManager(svc)
	got, err := mgr.GetManagedObjects()
	if err != nil {
		t.Fatalf("GetManagedObjects: %v", err)
	}

	if _, ok := got["/"]["org.freedesktop.DBus.ObjectManager"]; ok {
		t.Error("expected ObjectManager itself to be excluded from its own listing")
	}
	if _, ok := got["/org/example/Foo"]; !ok {
		t.Fatal("expected /org/example/Foo to be present")
	}
	if props, ok := got["/org/example/Foo"]["org.example.Foo"]; !ok || len(props) != 0 {
		t.Errorf("got %v, want an empty property map for an interface without a Properties provider", props)
	}
}

func TestObjectManagerUsesPropertyProvider(t *testing.T) {
	svc := &Service{objects: make(map[ObjectPath]*object)}
	want := map[string]Variant{"Value": MakeVariant(int32(7))}
	svc.objects["/org/example/Foo"] = &object{ifaces: map[string]*exportedIntf{
		"org.example.Foo":                newExportedIntf("org.example.Foo", adder{}),
		"org.freedesktop.DBus.Properties": newExportedIntf("org.freedesktop.DBus.Properties", fakePropertyProvider{props: want}),
	}}

	mgr := newObjectManager(svc)
	got, err := mgr.GetManagedObjects()
	if err != nil {
		t.Fatalf("GetManagedObjects: %v", err)
	}
	props := got["/org/example/Foo"]["org.example.Foo"]
	if len(props) != 1 || props["Value"].Value() != int32(7) {
		t.Errorf("got %v, want %v", props, want)
	}
}

func TestObjectManagerPropertyProviderError(t *testing.T) {
	svc := &Service{objects: make(map[ObjectPath]*object)}
	svc.objects["/org/example/Foo"] = &object{ifaces: map[string]*exportedIntf{
		"org.example.Foo":                newExportedIntf("org.example.Foo", adder{}),
		"org.freedesktop.DBus.Properties": newExportedIntf("org.freedesktop.DBus.Properties", fakePropertyProvider{err: &errInvalidArgs}),
	}}

	mgr := newObjectManager(svc)
	got, err := mgr.GetManagedObjects()
	if err != nil {
		t.Fatalf("GetManagedObjects: %v", err)
	}
	if props, ok := got["/org/example/Foo"]["org.example.Foo"]; !ok || len(props) != 0 {
		t.Errorf("got %v, want an empty property map when GetAll fails", props)
	}
}
