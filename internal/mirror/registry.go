package mirror

import "sync"

// ServiceRecord is what the Name Registry tracks for one mirrored service:
// its full bus name, the D-Bus unique name (owner) currently holding it, and
// the device instance used to build its topics (spec.md §5 "Name Registry").
type ServiceRecord struct {
	Name           string
	Owner          string
	ServiceType    string
	DeviceInstance int
}

// ShortName is the registry key other components resolve inbound topics
// against, e.g. "battery/257".
func (s ServiceRecord) ShortName() string {
	return shortServiceName(s.ServiceType, s.DeviceInstance)
}

// Registry tracks every service currently known to the bridge, indexed both
// by short name (for inbound topic resolution) and by D-Bus owner (for
// NameOwnerChanged teardown). It is owned exclusively by the orchestrator's
// single dispatch goroutine; the mutex exists only to let metrics/tests read
// it concurrently, not to support concurrent mutation (spec.md §6 "single
// dispatcher goroutine owns all shared state").
type Registry struct {
	mu        sync.RWMutex
	byShort   map[string]ServiceRecord // "type/instance" -> record
	byName    map[string]ServiceRecord // full bus name -> record
	ownerName map[string]string        // owner (":1.42") -> full bus name
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byShort:   make(map[string]ServiceRecord),
		byName:    make(map[string]ServiceRecord),
		ownerName: make(map[string]string),
	}
}

// Put records or replaces a service.
func (r *Registry) Put(rec ServiceRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byShort[rec.ShortName()] = rec
	r.byName[rec.Name] = rec
	if rec.Owner != "" {
		r.ownerName[rec.Owner] = rec.Name
	}
}

// RemoveByName deletes a service record by its full bus name, returning it
// if it existed.
func (r *Registry) RemoveByName(name string) (ServiceRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byName[name]
	if !ok {
		return ServiceRecord{}, false
	}
	delete(r.byName, name)
	delete(r.byShort, rec.ShortName())
	if rec.Owner != "" {
		delete(r.ownerName, rec.Owner)
	}
	return rec, true
}

// ByShortName resolves a service's full bus name from its "type/instance"
// short name, as needed to satisfy an inbound R/ or W/ request.
func (r *Registry) ByShortName(short string) (ServiceRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byShort[short]
	return rec, ok
}

// ByName resolves a service record by its full bus name.
func (r *Registry) ByName(name string) (ServiceRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byName[name]
	return rec, ok
}

// ByOwner resolves which service name a D-Bus unique name currently owns.
func (r *Registry) ByOwner(owner string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.ownerName[owner]
	return name, ok
}

// Len returns the number of services currently tracked.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}
