package di

import (
	"context"
	"log"
	"path/filepath"

	"github.com/crclabs/backingd/internal/config"
	"github.com/crclabs/backingd/internal/node"
	"github.com/crclabs/backingd/internal/rpc"
	"github.com/crclabs/backingd/internal/storage/eventdb"
	"github.com/crclabs/backingd/internal/storage/kv"
	"github.com/crclabs/backingd/internal/storage/statestore"
)

// Provider registers the daemon's standard service builders.
type Provider struct {
	container *Container
	config    *config.Config
	logger    *log.Logger
}

// NewProvider creates a provider bound to a container and configuration.
func NewProvider(container *Container, cfg *config.Config, logger *log.Logger) *Provider {
	return &Provider{
		container: container,
		config:    cfg,
		logger:    logger,
	}
}

// RegisterAll registers the configuration and every service builder.
func (p *Provider) RegisterAll() error {
	p.container.Register(ServiceConfig, p.config)

	p.registerStorageBuilders()
	p.registerNodeBuilder()
	p.registerRPCBuilder()

	return nil
}

func (p *Provider) registerStorageBuilders() {
	p.container.RegisterBuilder(ServiceKV, func(c *Container) (any, error) {
		path := filepath.Join(p.config.Node.DataDir, "state")
		return kv.Open(p.config.Node.KVEngine, path)
	})

	p.container.RegisterBuilder(ServiceStateStore, func(c *Container) (any, error) {
		db, err := c.Get(ServiceKV)
		if err != nil {
			return nil, err
		}
		return statestore.New(db.(kv.DB), p.config.Node.CacheSize)
	})

	p.container.RegisterBuilder(ServiceEventDB, func(c *Container) (any, error) {
		if !p.config.EventDB.Enabled {
			return nil, nil
		}
		return eventdb.Open(context.Background(), p.config.EventDB.ToEventDB())
	})
}

func (p *Provider) registerNodeBuilder() {
	p.container.RegisterBuilder(ServiceNode, func(c *Container) (any, error) {
		protocol, err := p.config.Protocol.ToBacking()
		if err != nil {
			return nil, err
		}

		states, err := c.Get(ServiceStateStore)
		if err != nil {
			return nil, err
		}
		raw, err := c.Get(ServiceEventDB)
		if err != nil {
			return nil, err
		}
		events, _ := raw.(*eventdb.Store)

		return node.New(node.Options{
			Protocol:   protocol,
			Settlement: p.config.Protocol.Settlement(),
			States:     states.(*statestore.Store),
			Events:     events,
			Logger:     p.logger,
		})
	})
}

func (p *Provider) registerRPCBuilder() {
	p.container.RegisterBuilder(ServiceRPC, func(c *Container) (any, error) {
		n, err := c.Get(ServiceNode)
		if err != nil {
			return nil, err
		}
		raw, err := c.Get(ServiceEventDB)
		if err != nil {
			return nil, err
		}
		events, _ := raw.(*eventdb.Store)

		backend := rpc.Backend{
			Node:   n.(*node.Node),
			Events: events,
		}
		return rpc.NewService(backend, p.config.RPC.Listen, p.logger, p.config.RPC.Timeout()), nil
	})
}

// Node returns the built node service.
func (p *Provider) Node() (*node.Node, error) {
	n, err := p.container.Get(ServiceNode)
	if err != nil {
		return nil, err
	}
	return n.(*node.Node), nil
}

// RPCService returns the built RPC service.
func (p *Provider) RPCService() (*rpc.Service, error) {
	svc, err := p.container.Get(ServiceRPC)
	if err != nil {
		return nil, err
	}
	return svc.(*rpc.Service), nil
}

// Config returns the configuration held by the provider.
func (p *Provider) Config() *config.Config {
	return p.config
}
