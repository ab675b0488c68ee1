//-------------------------------------------------------------------------
//
// pgEdge Retail KPI Pipeline
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

var (
	registry = make(map[string]Driver)
	mu       sync.RWMutex
)

// Register adds a backend driver to the registry.
func Register(d Driver) {
	mu.Lock()
	defer mu.Unlock()
	registry[d.Name()] = d
}

// Get retrieves a driver by name.
func Get(name string) (Driver, error) {
	mu.RLock()
	defer mu.RUnlock()

	d, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown backend: %s", name)
	}
	return d, nil
}

// Open looks up the named driver and opens a backend with it.
func Open(ctx context.Context, name, conn string) (Backend, error) {
	d, err := Get(name)
	if err != nil {
		return nil, err
	}
	return d.Open(ctx, conn)
}

// List returns all registered backend names, sorted.
func List() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns all registered drivers, sorted by name.
func All() []Driver {
	mu.RLock()
	defer mu.RUnlock()

	drivers := make([]Driver, 0, len(registry))
	for _, d := range registry {
		drivers = append(drivers, d)
	}
	sort.Slice(drivers, func(i, j int) bool { return drivers[i].Name() < drivers[j].Name() })
	return drivers
}
