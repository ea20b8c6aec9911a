// Package redispool implements a size-bounded pool of redisconn
// Connections: leasing, warm-connection maintenance, backoff
// reconnection, round-robin address selection, strict/leaky overflow
// policy, and a reserved pub/sub connection slot (§4.5).
package redispool

import "sync"

// addressRotator holds an ordered target list and a cursor, implementing
// round-robin selection with wrap and no weighting or health-awareness
// (§4.4). It is the pool's sole policy for choosing where the next
// connection attempt goes.
type addressRotator struct {
	mu        sync.Mutex
	addresses []string
	cursor    int
}

func newAddressRotator(addresses []string) *addressRotator {
	r := &addressRotator{}
	r.update(addresses)
	return r
}

// nextTarget returns the next address in round-robin order, or "" if
// the rotator holds no addresses.
func (r *addressRotator) nextTarget() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.addresses) == 0 {
		r.cursor = 0
		return ""
	}
	addr := r.addresses[r.cursor]
	r.cursor = (r.cursor + 1) % len(r.addresses)
	return addr
}

// update replaces the address list and resets the cursor to the start.
func (r *addressRotator) update(addresses []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addresses = append([]string(nil), addresses...)
	r.cursor = 0
}
