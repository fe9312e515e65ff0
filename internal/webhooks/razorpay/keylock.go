package razorpaywebhook

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 64

// keyLock serializes work per string key over a fixed set of mutex stripes.
// Two deliveries for the same gateway subscription always contend on the
// same stripe; unrelated keys rarely do.
type keyLock struct {
	stripes [lockStripes]sync.Mutex
}

func newKeyLock() *keyLock {
	return &keyLock{}
}

// Lock acquires the stripe for key and returns the unlock func.
func (l *keyLock) Lock(key string) func() {
	stripe := &l.stripes[l.index(key)]
	stripe.Lock()
	return stripe.Unlock
}

func (l *keyLock) index(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % lockStripes
}
