package dispatch

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultHistorySize is the number of results kept for status lookup.
const DefaultHistorySize = 100

// history is a fixed-capacity FIFO of results keyed by command ID.
// The oldest result is evicted first, regardless of lookups.
type history struct {
	mu    sync.RWMutex
	ring  []string
	next  int
	byID  map[string]Result
	limit int
}

func newHistory(size int) *history {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &history{
		ring:  make([]string, size),
		byID:  make(map[string]Result, size),
		limit: size,
	}
}

func (h *history) add(r Result) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old := h.ring[h.next]; old != "" {
		delete(h.byID, old)
	}
	h.ring[h.next] = r.CommandID
	h.byID[r.CommandID] = r
	h.next = (h.next + 1) % h.limit
}

func (h *history) get(id string) (Result, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.byID[id]
	return r, ok
}

// recent returns up to n results, newest first.
func (h *history) recent(n int) []Result {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n <= 0 || n > len(h.byID) {
		n = len(h.byID)
	}
	out := make([]Result, 0, n)
	for i := 1; len(out) < n && i <= h.limit; i++ {
		id := h.ring[(h.next-i+h.limit)%h.limit]
		if id == "" {
			break
		}
		out = append(out, h.byID[id])
	}
	return out
}

// newCommandID returns cmd_<base36 unix millis>_<5 random hex digits>.
func newCommandID(now time.Time) string {
	return "cmd_" + strconv.FormatInt(now.UnixMilli(), 36) + "_" + uuid.NewString()[:5]
}
