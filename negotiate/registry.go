// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package negotiate

import (
	"sort"
	"sync"

	"github.com/platinasystems/dptx"
)

// Registry counts the connected ports of each topology against the
// board's connector limits. One is shared by every port of a device.
type Registry struct {
	mutex  sync.Mutex
	limits map[string]int
	ports  map[string]string
}

// NewRegistry returns a registry with the given per-topology limits. A
// topology without an entry is unlimited.
func NewRegistry(limits map[string]int) *Registry {
	r := &Registry{
		limits: make(map[string]int),
		ports:  make(map[string]string),
	}
	for k, v := range limits {
		r.limits[k] = v
	}
	return r
}

// Claim admits port as a connected connector of kind. Claiming twice is
// harmless.
func (r *Registry) Claim(kind, port string) error {
	if r == nil {
		return nil
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, found := r.ports[port]; found {
		return nil
	}
	if limit, found := r.limits[kind]; found && r.count(kind) >= limit {
		return dptx.ErrConnectorLimit
	}
	r.ports[port] = kind
	return nil
}

// Release frees port's claim, if any.
func (r *Registry) Release(port string) {
	if r == nil {
		return
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.ports, port)
}

// Claimed returns the sorted ports holding a claim of kind.
func (r *Registry) Claimed(kind string) []string {
	if r == nil {
		return nil
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	var ports []string
	for port, k := range r.ports {
		if k == kind {
			ports = append(ports, port)
		}
	}
	sort.Strings(ports)
	return ports
}

func (r *Registry) count(kind string) (n int) {
	for _, k := range r.ports {
		if k == kind {
			n++
		}
	}
	return
}
