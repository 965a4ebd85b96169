package process

import "sync"

// PortRegistry records every VM service port announced by any child of the
// run, in discovery order.
type PortRegistry struct {
	mu    sync.Mutex
	ports []int
	seen  map[int]struct{}
}

// NewPortRegistry creates an empty registry.
func NewPortRegistry() *PortRegistry {
	return &PortRegistry{seen: make(map[int]struct{})}
}

// Record adds port unless it was already seen.
func (r *PortRegistry) Record(port int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seen[port]; ok {
		return
	}
	r.seen[port] = struct{}{}
	r.ports = append(r.ports, port)
}

// Snapshot returns the ports recorded so far.
func (r *PortRegistry) Snapshot() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.ports...)
}

// Since returns ports recorded after the snapshot before was taken.
func (r *PortRegistry) Since(before []int) []int {
	known := make(map[int]struct{}, len(before))
	for _, p := range before {
		known[p] = struct{}{}
	}
	var added []int
	for _, p := range r.Snapshot() {
		if _, ok := known[p]; !ok {
			added = append(added, p)
		}
	}
	return added
}
