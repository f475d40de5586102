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
	"encoding/json"
	"sort"
	"sync"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/google/uuid"
)

// Device is the aggregate root for a deployment unit: a named container of
// virtual authenticators with a tag set. Authenticator ids are unique within
// a device. Safe for concurrent use.
type Device struct {
	mu             sync.RWMutex
	id             uuid.UUID
	displayName    string
	tags           map[string]struct{}
	authenticators map[uuid.UUID]*VirtualAuthenticator
	order          []uuid.UUID
}

// NewDevice creates a device with the given display name and tags.
func NewDevice(displayName string, tags ...string) *Device {
	d := &Device{
		id:             uuid.New(),
		displayName:    displayName,
		tags:           make(map[string]struct{}, len(tags)),
		authenticators: make(map[uuid.UUID]*VirtualAuthenticator),
	}
	for _, tag := range tags {
		d.tags[tag] = struct{}{}
	}
	return d
}

// ID returns the device identifier.
func (d *Device) ID() uuid.UUID {
	return d.id
}

// DisplayName returns the device's display name.
func (d *Device) DisplayName() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.displayName
}

// SetDisplayName updates the device's display name.
func (d *Device) SetDisplayName(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.displayName = name
}

// Tags returns the device's tags, sorted for deterministic output.
func (d *Device) Tags() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	tags := make([]string, 0, len(d.tags))
	for tag := range d.tags {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Tag adds a tag to the device.
func (d *Device) Tag(tag string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tags[tag] = struct{}{}
}

// Untag removes a tag from the device.
func (d *Device) Untag(tag string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.tags, tag)
}

// Add registers an authenticator on the device. Fails with
// ErrDuplicateAuthenticator if its id is already taken.
func (d *Device) Add(a *VirtualAuthenticator) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.authenticators[a.ID()]; ok {
		return NewError("device.Add", ErrDuplicateAuthenticator)
	}
	d.authenticators[a.ID()] = a
	d.order = append(d.order, a.ID())
	return nil
}

// Get returns the authenticator with the given id, or
// ErrAuthenticatorNotFound.
func (d *Device) Get(id uuid.UUID) (*VirtualAuthenticator, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	a, ok := d.authenticators[id]
	if !ok {
		return nil, NewError("device.Get", ErrAuthenticatorNotFound)
	}
	return a, nil
}

// Update replaces the authenticator with the same id. Fails with
// ErrAuthenticatorNotFound if no authenticator with that id exists.
func (d *Device) Update(a *VirtualAuthenticator) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.authenticators[a.ID()]; !ok {
		return NewError("device.Update", ErrAuthenticatorNotFound)
	}
	d.authenticators[a.ID()] = a
	return nil
}

// Remove deletes the authenticator with the given id and returns it, or
// ErrAuthenticatorNotFound.
func (d *Device) Remove(id uuid.UUID) (*VirtualAuthenticator, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	a, ok := d.authenticators[id]
	if !ok {
		return nil, NewError("device.Remove", ErrAuthenticatorNotFound)
	}
	delete(d.authenticators, id)
	for i, key := range d.order {
		if key == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return a, nil
}

// Clear drains the device and returns the removed authenticators in
// insertion order.
func (d *Device) Clear() []*VirtualAuthenticator {
	d.mu.Lock()
	defer d.mu.Unlock()

	removed := make([]*VirtualAuthenticator, 0, len(d.order))
	for _, id := range d.order {
		removed = append(removed, d.authenticators[id])
	}
	d.authenticators = make(map[uuid.UUID]*VirtualAuthenticator)
	d.order = nil
	return removed
}

// Import replaces the device's authenticators with the given set. Fails
// with ErrDuplicateAuthenticator if the set contains duplicate ids; the
// device is unchanged on failure.
func (d *Device) Import(authenticators []*VirtualAuthenticator) error {
	replacement := make(map[uuid.UUID]*VirtualAuthenticator, len(authenticators))
	order := make([]uuid.UUID, 0, len(authenticators))
	for _, a := range authenticators {
		if _, ok := replacement[a.ID()]; ok {
			return NewError("device.Import", ErrDuplicateAuthenticator)
		}
		replacement[a.ID()] = a
		order = append(order, a.ID())
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.authenticators = replacement
	d.order = order
	return nil
}

// Authenticators returns the device's authenticators in insertion order.
func (d *Device) Authenticators() []*VirtualAuthenticator {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*VirtualAuthenticator, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.authenticators[id])
	}
	return out
}

// Len returns the number of authenticators on the device.
func (d *Device) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.authenticators)
}

// MatchForRegistration returns the authenticators able to satisfy the
// registration options, in insertion order. Pure filter; no state changes.
func (d *Device) MatchForRegistration(options *protocol.CredentialCreation) []*VirtualAuthenticator {
	var matched []*VirtualAuthenticator
	for _, a := range d.Authenticators() {
		if a.MatchForRegistration(options) {
			matched = append(matched, a)
		}
	}
	return matched
}

// MatchForAssertion returns the authenticators holding a credential in the
// options' allow-list, in insertion order. Pure filter; no state changes.
func (d *Device) MatchForAssertion(options *protocol.CredentialAssertion) []*VirtualAuthenticator {
	var matched []*VirtualAuthenticator
	for _, a := range d.Authenticators() {
		if a.MatchForAssertion(options) {
			matched = append(matched, a)
		}
	}
	return matched
}

type deviceJSON struct {
	ID             string                  `json:"deviceId"`
	DisplayName    string                  `json:"displayName"`
	Tags           []string                `json:"tags"`
	Authenticators []*VirtualAuthenticator `json:"authenticators"`
}

// MarshalJSON serializes the device and its authenticators, private keys
// included, so device state survives export/import.
func (d *Device) MarshalJSON() ([]byte, error) {
	return json.Marshal(deviceJSON{
		ID:             d.id.String(),
		DisplayName:    d.DisplayName(),
		Tags:           d.Tags(),
		Authenticators: d.Authenticators(),
	})
}

// UnmarshalJSON restores a device serialized by MarshalJSON.
func (d *Device) UnmarshalJSON(data []byte) error {
	var raw deviceJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return NewError("device.UnmarshalJSON", err)
	}
	id, err := uuid.Parse(raw.ID)
	if err != nil {
		return NewError("device.UnmarshalJSON", err)
	}

	d.mu.Lock()
	d.id = id
	d.displayName = raw.DisplayName
	d.tags = make(map[string]struct{}, len(raw.Tags))
	for _, tag := range raw.Tags {
		d.tags[tag] = struct{}{}
	}
	d.authenticators = make(map[uuid.UUID]*VirtualAuthenticator)
	d.order = nil
	d.mu.Unlock()

	return d.Import(raw.Authenticators)
}
