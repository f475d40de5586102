// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-webauthn-rp.
//
// go-webauthn-rp is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package authenticator

import (
	"sync"

	"github.com/google/uuid"
)

// Registry is the device-level repository: a concurrent map from device id
// to Device with lock-free reads.
type Registry struct {
	devices sync.Map // uuid.UUID -> *Device
}

// NewRegistry creates an empty device registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a device. Fails with ErrDuplicateDevice if its id is taken.
func (r *Registry) Register(d *Device) error {
	if _, loaded := r.devices.LoadOrStore(d.ID(), d); loaded {
		return NewError("registry.Register", ErrDuplicateDevice)
	}
	return nil
}

// Get returns the device with the given id, or ErrDeviceNotFound.
func (r *Registry) Get(id uuid.UUID) (*Device, error) {
	v, ok := r.devices.Load(id)
	if !ok {
		return nil, NewError("registry.Get", ErrDeviceNotFound)
	}
	return v.(*Device), nil
}

// Remove deletes the device with the given id and returns it, or
// ErrDeviceNotFound.
func (r *Registry) Remove(id uuid.UUID) (*Device, error) {
	v, ok := r.devices.LoadAndDelete(id)
	if !ok {
		return nil, NewError("registry.Remove", ErrDeviceNotFound)
	}
	return v.(*Device), nil
}

// Devices returns a snapshot of all registered devices. Order is not
// specified.
func (r *Registry) Devices() []*Device {
	var out []*Device
	r.devices.Range(func(_, v any) bool {
		out = append(out, v.(*Device))
		return true
	})
	return out
}
