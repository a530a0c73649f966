// Package di wires the daemon's services together. Services are registered
// by name and built lazily on first use.
package di

import (
	"errors"
	"io"
	"sync"
)

// Container holds service instances and the builders that create them.
type Container struct {
	mu       sync.RWMutex
	services map[string]any
	builders map[string]Builder
	order    []string
}

// Builder creates a service instance. Builders may resolve their own
// dependencies from the container.
type Builder func(c *Container) (any, error)

// New creates an empty container.
func New() *Container {
	return &Container{
		services: make(map[string]any),
		builders: make(map[string]Builder),
	}
}

// Register stores an already-built service instance.
func (c *Container) Register(name string, service any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[name] = service
	c.order = append(c.order, name)
}

// RegisterBuilder registers a builder for lazy instantiation.
func (c *Container) RegisterBuilder(name string, builder Builder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.builders[name] = builder
}

// Get returns the named service, building it if needed.
func (c *Container) Get(name string) (any, error) {
	c.mu.RLock()
	service, exists := c.services[name]
	c.mu.RUnlock()

	if exists {
		return service, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another goroutine may have built it while we waited for the lock.
	if service, exists := c.services[name]; exists {
		return service, nil
	}

	builder, hasBuilder := c.builders[name]
	if !hasBuilder {
		return nil, errors.New("service not found: " + name)
	}

	service, err := builder(c)
	if err != nil {
		return nil, err
	}

	c.services[name] = service
	c.order = append(c.order, name)
	return service, nil
}

// MustGet returns the named service or panics.
func (c *Container) MustGet(name string) any {
	service, err := c.Get(name)
	if err != nil {
		panic(err)
	}
	return service
}

// Has reports whether a service or builder is registered under name.
func (c *Container) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, exists := c.services[name]; exists {
		return true
	}
	_, exists := c.builders[name]
	return exists
}

// ServiceNames returns every registered service and builder name.
func (c *Container) ServiceNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]bool)
	for name := range c.services {
		seen[name] = true
	}
	for name := range c.builders {
		seen[name] = true
	}

	result := make([]string, 0, len(seen))
	for name := range seen {
		result = append(result, name)
	}
	return result
}

// Close shuts down built services in reverse construction order. Services
// that do not implement io.Closer are skipped.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for i := len(c.order) - 1; i >= 0; i-- {
		service := c.services[c.order[i]]
		closer, ok := service.(io.Closer)
		if !ok || closer == nil {
			continue
		}
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.services = make(map[string]any)
	c.builders = make(map[string]Builder)
	c.order = nil
	return firstErr
}

// Service names used across the daemon.
const (
	ServiceConfig     = "config"
	ServiceKV         = "storage.kv"
	ServiceStateStore = "storage.states"
	ServiceEventDB    = "storage.events"
	ServiceNode       = "node"
	ServiceRPC        = "rpc.service"
)
