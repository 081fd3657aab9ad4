// Package cache stores each tenant's latest analysis report and counters.
package cache

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/opensource-finance/fakeguard/internal/domain"
)

var ErrTenantIDRequired = errors.New("tenantID is required")

// LRUCache keeps whole tenant workspaces in memory, evicting the least
// recently used tenant once maxTenants is exceeded. A tenant's report and
// counters are evicted together.
type LRUCache struct {
	mu         sync.Mutex
	maxTenants int
	tenants    map[string]*list.Element
	order      *list.List
}

type workspaceEntry struct {
	tenantID  string
	report    *domain.AnalysisReport
	reportExp time.Time
	counters  map[string]*counter
}

type counter struct {
	count     int64
	expiresAt time.Time
}

// NewLRUCache creates a cache holding at most maxTenants workspaces.
func NewLRUCache(maxTenants int) *LRUCache {
	if maxTenants <= 0 {
		maxTenants = 10000
	}
	return &LRUCache{
		maxTenants: maxTenants,
		tenants:    make(map[string]*list.Element),
		order:      list.New(),
	}
}

// entry returns the tenant's workspace, marking it most recently used.
// Must be called with c.mu held.
func (c *LRUCache) entry(tenantID string, create bool) *workspaceEntry {
	if elem, ok := c.tenants[tenantID]; ok {
		c.order.MoveToFront(elem)
		return elem.Value.(*workspaceEntry)
	}
	if !create {
		return nil
	}

	e := &workspaceEntry{tenantID: tenantID, counters: make(map[string]*counter)}
	c.tenants[tenantID] = c.order.PushFront(e)

	for c.order.Len() > c.maxTenants {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.tenants, oldest.Value.(*workspaceEntry).tenantID)
	}
	return e
}

func (c *LRUCache) GetReport(ctx context.Context, tenantID string) (*domain.AnalysisReport, error) {
	if tenantID == "" {
		return nil, ErrTenantIDRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entry(tenantID, false)
	if e == nil || e.report == nil {
		return nil, nil
	}
	if time.Now().After(e.reportExp) {
		e.report = nil
		return nil, nil
	}
	return e.report, nil
}

func (c *LRUCache) SetReport(ctx context.Context, tenantID string, report *domain.AnalysisReport, ttl time.Duration) error {
	if tenantID == "" {
		return ErrTenantIDRequired
	}
	if report == nil {
		return errReportRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entry(tenantID, true)
	e.report = report
	e.reportExp = time.Now().Add(ttl)
	return nil
}

// dropReport forgets a tenant's report but keeps its counters.
func (c *LRUCache) dropReport(tenantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e := c.entry(tenantID, false); e != nil {
		e.report = nil
	}
}

func (c *LRUCache) IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error) {
	if tenantID == "" {
		return 0, ErrTenantIDRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	e := c.entry(tenantID, true)
	ctr, ok := e.counters[key]
	if !ok || now.After(ctr.expiresAt) {
		e.counters[key] = &counter{count: 1, expiresAt: now.Add(window)}
		return 1, nil
	}

	ctr.count++
	return ctr.count, nil
}

func (c *LRUCache) GetCounter(ctx context.Context, tenantID string, key string) (int64, error) {
	if tenantID == "" {
		return 0, ErrTenantIDRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entry(tenantID, false)
	if e == nil {
		return 0, nil
	}
	ctr, ok := e.counters[key]
	if !ok || time.Now().After(ctr.expiresAt) {
		return 0, nil
	}
	return ctr.count, nil
}

func (c *LRUCache) Ping(ctx context.Context) error {
	return nil
}

// Close drops every workspace.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tenants = make(map[string]*list.Element)
	c.order.Init()
	return nil
}

// Stats returns the number of cached tenant workspaces and the limit.
func (c *LRUCache) Stats() (tenants int, capacity int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len(), c.maxTenants
}
