// Package di registers the process-wide services with xdi. Configure must be
// called before the first accessor; objects are built lazily on first use.
package di

import (
	"sync"

	"crontub/config"
)

var (
	mu   sync.RWMutex
	conf = &config.Config{}
)

func Configure(cfg *config.Config) {
	mu.Lock()
	conf = cfg
	mu.Unlock()
}

func current() *config.Config {
	mu.RLock()
	defer mu.RUnlock()
	return conf
}
