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

// Package ceremony caches in-flight registration and assertion ceremony
// state: a relying party saves the options it issued, then loads them back
// when the client's response arrives. Records live in a persistent store
// with a bounded in-memory cache in front.
package ceremony

import (
	"errors"
	"time"
)

// RequestType tags the ceremony variant a record belongs to.
type RequestType string

const (
	// Registration marks stored registration ceremony options.
	Registration RequestType = "REGISTRATION"

	// Assertion marks stored assertion ceremony requests.
	Assertion RequestType = "ASSERTION"
)

var (
	// ErrDuplicateRequest is returned when saving a request id that already
	// exists.
	ErrDuplicateRequest = errors.New("ceremony: request already exists")

	// ErrNotFound is returned when a request is absent, expired or of the
	// wrong type for the requested payload. A type mismatch deliberately
	// masks as not-found.
	ErrNotFound = errors.New("ceremony: request not found")
)

// Record is one persisted ceremony request.
type Record struct {
	RequestID string      `json:"requestId"`
	Type      RequestType `json:"requestType"`
	CreatedAt time.Time   `json:"createdTime"`
	ExpiresAt time.Time   `json:"expiryTime"`
	Payload   []byte      `json:"payload"`
}

// Expired reports whether the record is past its expiry at the given time.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
