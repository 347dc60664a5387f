package ipfix

import (
	"sync"

	bnet "github.com/bio-routing/bio-rd/net"
	"github.com/bio-routing/framehouse/pkg/packet/ipfix"
)

// domainKey identifies an observation domain of an exporter
type domainKey struct {
	agent             bnet.IP
	observationDomain uint32
}

type templateCacheKey struct {
	domainKey
	templateID uint16
}

// cache is a concurrency safe map shared by the packet workers
type cache[K comparable, V any] struct {
	data   map[K]V
	dataMu sync.RWMutex
}

func newCache[K comparable, V any]() *cache[K, V] {
	return &cache[K, V]{
		data: make(map[K]V),
	}
}

func (c *cache[K, V]) set(k K, v V) {
	c.dataMu.Lock()
	defer c.dataMu.Unlock()

	c.data[k] = v
}

func (c *cache[K, V]) get(k K) (V, bool) {
	c.dataMu.RLock()
	defer c.dataMu.RUnlock()

	v, ok := c.data[k]
	return v, ok
}

// templateCache holds the templates announced per agent, observation domain and template ID
type templateCache struct {
	*cache[templateCacheKey, *ipfix.TemplateRecords]
}

func newTemplateCache() *templateCache {
	return &templateCache{
		cache: newCache[templateCacheKey, *ipfix.TemplateRecords](),
	}
}

func (c *templateCache) setTemplate(agent bnet.IP, domainID uint32, t *ipfix.TemplateRecords) {
	c.set(templateCacheKey{domainKey{agent, domainID}, t.TemplateID}, t)
}

func (c *templateCache) getTemplate(agent bnet.IP, domainID uint32, templateID uint16) *ipfix.TemplateRecords {
	t, _ := c.get(templateCacheKey{domainKey{agent, domainID}, templateID})
	return t
}

// sampleRateCache holds the sampling interval announced via options records per observation domain
type sampleRateCache struct {
	*cache[domainKey, uint64]
}

func newSampleRateCache() *sampleRateCache {
	return &sampleRateCache{
		cache: newCache[domainKey, uint64](),
	}
}

func (c *sampleRateCache) setRate(agent bnet.IP, domainID uint32, rate uint64) {
	c.set(domainKey{agent, domainID}, rate)
}

// getRate returns 0 if no rate is known
func (c *sampleRateCache) getRate(agent bnet.IP, domainID uint32) uint64 {
	rate, _ := c.get(domainKey{agent, domainID})
	return rate
}
