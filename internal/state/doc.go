// Package state holds the authoritative in-memory view of every known
// device.
//
// The Store is the single source of truth for device state. Records are
// written by the command dispatcher (full replace), by the bus bridge
// (shallow merge of inbound status) and by startup seeding. Every read
// returns a deep copy so callers can never alias stored maps.
//
// Locking:
//   - A map-level RWMutex guards the entry table.
//   - Each entry has its own mutex; writes to one device are serialised
//     without blocking readers or writers of other devices.
//   - Change listeners run after all locks are released.
package state
