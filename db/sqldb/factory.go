package sqldb

import (
	"fmt"
	"sync"
)

// ClientFactory is a callback that constructs a Client from Conf.
// It is registered with RegisterFactory and called by sqldb.New.
type ClientFactory func(conf *Conf) (Client, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]ClientFactory{}
)

func RegisterFactory(dbType string, factory ClientFactory) {
	registryMu.Lock()
	registry[dbType] = factory
	registryMu.Unlock()
}

func New(dbType string, conf *Conf) (Client, error) {
	registryMu.RLock()
	factory, ok := registry[dbType]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
	return factory(conf)
}
