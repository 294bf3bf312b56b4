package state

import (
	"fmt"
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// entry is one device slot. exists is false while the first Update of a
// new ID is in flight; such slots are invisible to readers. removed is set
// when a failed first Update drops the slot from the table, so writers that
// were queued on it retry with a fresh slot.
type entry struct {
	mu      sync.Mutex
	state   DeviceState
	exists  bool
	removed bool
}

// Store is a concurrency-safe device state table.
//
// All public methods are thread-safe.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry

	listenersMu sync.RWMutex
	listeners   []Listener

	logger Logger
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]*entry),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// OnChange registers a listener for every successful write.
func (s *Store) OnChange(listener Listener) {
	s.listenersMu.Lock()
	s.listeners = append(s.listeners, listener)
	s.listenersMu.Unlock()
}

// slot returns the entry for id, creating an empty one if needed.
func (s *Store) slot(id string) *entry {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[id]; !ok {
		e = &entry{}
		s.entries[id] = e
	}
	return e
}

// Get returns a deep copy of a device's state.
// Returns ErrDeviceNotFound if the device has never been written.
func (s *Store) Get(id string) (DeviceState, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return DeviceState{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.exists {
		return DeviceState{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return e.state.Clone(), nil
}

// List returns deep copies of all device states, sorted by device ID.
func (s *Store) List() []DeviceState {
	s.mu.RLock()
	ids := make([]string, 0, len(s.entries))
	slots := make(map[string]*entry, len(s.entries))
	for id, e := range s.entries {
		ids = append(ids, id)
		slots[id] = e
	}
	s.mu.RUnlock()

	sort.Strings(ids)

	out := make([]DeviceState, 0, len(ids))
	for _, id := range ids {
		e := slots[id]
		e.mu.Lock()
		if e.exists {
			out = append(out, e.state.Clone())
		}
		e.mu.Unlock()
	}
	return out
}

// Count returns the number of known devices.
func (s *Store) Count() int {
	s.mu.RLock()
	slots := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		slots = append(slots, e)
	}
	s.mu.RUnlock()

	n := 0
	for _, e := range slots {
		e.mu.Lock()
		if e.exists {
			n++
		}
		e.mu.Unlock()
	}
	return n
}

// Put replaces a device's state.
func (s *Store) Put(next DeviceState, source Source) DeviceState {
	saved, _ := s.Update(next.DeviceID, source, func(DeviceState, bool) (DeviceState, error) {
		return next, nil
	})
	return saved
}

// Merge overlays partial onto the device's current state.
//
// A device with no state starts from {deviceId: id, deviceType: "unknown"}.
// A non-empty string "deviceType" in partial replaces the type; "deviceId"
// in partial is ignored. Every other key is copied into the attributes.
//
// Returns the merged state.
func (s *Store) Merge(id string, partial map[string]any, source Source) DeviceState {
	merged, _ := s.Update(id, source, func(current DeviceState, exists bool) (DeviceState, error) {
		if !exists {
			current = DeviceState{DeviceID: id, DeviceType: UnknownType, Attributes: map[string]any{}}
		}
		for k, v := range partial {
			switch k {
			case keyDeviceID:
			case keyDeviceType:
				if typ, ok := v.(string); ok && typ != "" {
					current.DeviceType = typ
				}
			default:
				current.Attributes[k] = copyValue(v)
			}
		}
		return current, nil
	})
	return merged
}

// Update performs an atomic read-modify-write of one device.
//
// fn receives a deep copy of the current state (zero value when exists is
// false) and returns the next state. Concurrent writers of the same ID are
// serialised around fn. If fn returns an error nothing is written and the
// error is returned unchanged; a device that did not exist before leaves no
// trace. Every successful write increments the state's Revision.
//
// The stored DeviceID is always id, regardless of what fn returns.
//
// Parameters:
//   - id: Device identifier
//   - source: Recorded on the Change delivered to listeners
//   - fn: Transition from current to next state
//
// Returns:
//   - DeviceState: Deep copy of the written state
//   - error: The error returned by fn, if any
func (s *Store) Update(id string, source Source, fn func(current DeviceState, exists bool) (DeviceState, error)) (DeviceState, error) {
	for {
		e := s.slot(id)

		e.mu.Lock()
		if e.removed {
			e.mu.Unlock()
			continue
		}

		var current DeviceState
		if e.exists {
			current = e.state.Clone()
		}
		next, err := fn(current, e.exists)
		if err != nil {
			if !e.exists {
				s.drop(id, e)
			}
			e.mu.Unlock()
			return DeviceState{}, err
		}

		next = next.Clone()
		next.DeviceID = id
		next.Revision = e.state.Revision + 1
		e.state = next
		e.exists = true
		saved := next.Clone()
		e.mu.Unlock()

		s.notify(saved, source)
		return saved, nil
	}
}

// drop removes a slot that never held a state. The caller holds e.mu.
func (s *Store) drop(id string, e *entry) {
	e.removed = true
	s.mu.Lock()
	if s.entries[id] == e {
		delete(s.entries, id)
	}
	s.mu.Unlock()
}

func (s *Store) notify(saved DeviceState, source Source) {
	s.listenersMu.RLock()
	listeners := append([]Listener(nil), s.listeners...)
	s.listenersMu.RUnlock()

	for _, l := range listeners {
		s.deliver(l, Change{State: saved.Clone(), Source: source})
	}
}

func (s *Store) deliver(l Listener, change Change) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("state listener panic recovered", "device_id", change.State.DeviceID, "panic", r)
		}
	}()
	l(change)
}
