package mbuf

import (
	"sync"
	"sync/atomic"
)

// Pool recycles Mbufs of a fixed capacity to reduce GC pressure
type Pool struct {
	pool     sync.Pool
	capacity int
	created  atomic.Int64
	inUse    atomic.Int64
}

// PoolStats is a snapshot of a pools counters
type PoolStats struct {
	Created int64
	InUse   int64
}

// NewPool creates a pool handing out Mbufs of the given capacity
func NewPool(capacity int) *Pool {
	p := &Pool{
		capacity: capacity,
	}

	p.pool.New = func() interface{} {
		p.created.Add(1)
		return &Mbuf{
			buf:  make([]byte, capacity),
			pool: p,
		}
	}

	return p
}

// Capacity returns the capacity of Mbufs handed out by p
func (p *Pool) Capacity() int {
	return p.capacity
}

// Get returns an empty Mbuf
func (p *Pool) Get() *Mbuf {
	m := p.pool.Get().(*Mbuf)
	m.pooled = false
	p.inUse.Add(1)
	return m
}

// FromBytes returns an Mbuf holding a copy of data
func (p *Pool) FromBytes(data []byte) (*Mbuf, error) {
	m := p.Get()
	err := m.load(data)
	if err != nil {
		p.Put(m)
		return nil, err
	}

	return m, nil
}

// Put clears m and returns it to the pool. Mbufs not created by p and Mbufs
// already returned are ignored.
func (p *Pool) Put(m *Mbuf) {
	if m == nil || m.pool != p || m.pooled {
		return
	}

	m.pooled = true
	m.Reset()
	p.inUse.Add(-1)
	p.pool.Put(m)
}

// Stats returns the current counters of p
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Created: p.created.Load(),
		InUse:   p.inUse.Load(),
	}
}
