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

package keys

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path"
	"time"

	vault "github.com/hashicorp/vault/api"

	"github.com/jeremyhahn/go-webauthn-rp/pkg/secret"
)

// VaultConfig configures the Vault-backed key store.
type VaultConfig struct {
	// Address is the Vault server URL.
	Address string

	// Token authenticates the client.
	Token string

	// Namespace is an optional Vault enterprise namespace.
	Namespace string

	// Mount is the KV v2 mount point. Defaults to "secret".
	Mount string

	// Prefix is the path prefix under the mount. Defaults to "webauthn-keys".
	Prefix string

	// TLSSkipVerify disables TLS certificate verification. Development only.
	TLSSkipVerify bool
}

// VaultStore persists key records in a HashiCorp Vault KV v2 engine. Records
// are serialized to JSON and, when an encryptor is configured, sealed with
// the AEAD service before leaving the process.
type VaultStore struct {
	client    *vault.Client
	mount     string
	prefix    string
	encryptor *secret.Encryptor
}

// VaultOption configures a VaultStore.
type VaultOption func(*VaultStore)

// WithEncryptor seals key material with the AEAD service before writing it
// to Vault and opens it on read.
func WithEncryptor(encryptor *secret.Encryptor) VaultOption {
	return func(s *VaultStore) {
		s.encryptor = encryptor
	}
}

// NewVaultStore connects to Vault and returns a key store rooted at the
// configured mount and prefix.
func NewVaultStore(config *VaultConfig, opts ...VaultOption) (*VaultStore, error) {
	vaultConfig := vault.DefaultConfig()
	if config.Address != "" {
		vaultConfig.Address = config.Address
	}
	if config.TLSSkipVerify {
		if err := vaultConfig.ConfigureTLS(&vault.TLSConfig{Insecure: true}); err != nil {
			return nil, fmt.Errorf("keys: vault TLS config: %w", err)
		}
	}

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("keys: vault client: %w", err)
	}
	client.SetToken(config.Token)
	if config.Namespace != "" {
		client.SetNamespace(config.Namespace)
	}

	mount := config.Mount
	if mount == "" {
		mount = "secret"
	}
	prefix := config.Prefix
	if prefix == "" {
		prefix = "webauthn-keys"
	}

	s := &VaultStore{client: client, mount: mount, prefix: prefix}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *VaultStore) dataPath(kid string) string {
	return path.Join(s.mount, "data", s.prefix, kid)
}

func (s *VaultStore) metadataPath(kid string) string {
	return path.Join(s.mount, "metadata", s.prefix, kid)
}

// seal serializes a record for storage, encrypting it when an encryptor is
// configured.
func (s *VaultStore) seal(record *Record) (string, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("keys: serialize record: %w", err)
	}
	if s.encryptor != nil {
		if data, err = s.encryptor.Encrypt(data); err != nil {
			return "", fmt.Errorf("keys: seal record: %w", err)
		}
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func (s *VaultStore) open(sealed string) (*Record, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("keys: decode record: %w", err)
	}
	if s.encryptor != nil {
		if data, err = s.encryptor.Decrypt(data); err != nil {
			return nil, fmt.Errorf("keys: open record: %w", err)
		}
	}
	record := &Record{}
	if err := json.Unmarshal(data, record); err != nil {
		return nil, fmt.Errorf("keys: deserialize record: %w", err)
	}
	return record, nil
}

// Save persists a record, failing with ErrDuplicateKey on a kid collision.
func (s *VaultStore) Save(ctx context.Context, record *Record) error {
	existing, err := s.client.Logical().ReadWithContext(ctx, s.dataPath(record.Kid))
	if err != nil {
		return fmt.Errorf("keys: vault read: %w", err)
	}
	if existing != nil && existing.Data["data"] != nil {
		return ErrDuplicateKey
	}

	sealed, err := s.seal(record)
	if err != nil {
		return err
	}
	_, err = s.client.Logical().WriteWithContext(ctx, s.dataPath(record.Kid), map[string]interface{}{
		"data": map[string]interface{}{
			"record": sealed,
			"use":    string(record.Use),
			"expiry": record.ExpiresAt.Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("keys: vault write: %w", err)
	}
	return nil
}

// Get returns the record with the given kid, or ErrKeyNotFound.
func (s *VaultStore) Get(ctx context.Context, kid string) (*Record, error) {
	resp, err := s.client.Logical().ReadWithContext(ctx, s.dataPath(kid))
	if err != nil {
		return nil, fmt.Errorf("keys: vault read: %w", err)
	}
	if resp == nil || resp.Data["data"] == nil {
		return nil, ErrKeyNotFound
	}
	data, ok := resp.Data["data"].(map[string]interface{})
	if !ok {
		return nil, ErrKeyNotFound
	}
	sealed, ok := data["record"].(string)
	if !ok {
		return nil, ErrKeyNotFound
	}
	return s.open(sealed)
}

// Delete permanently removes the record and its version history.
func (s *VaultStore) Delete(ctx context.Context, kid string) error {
	if _, err := s.client.Logical().DeleteWithContext(ctx, s.metadataPath(kid)); err != nil {
		return fmt.Errorf("keys: vault delete: %w", err)
	}
	return nil
}

// LatestByUse lists all stored keys and returns the unexpired record of the
// given use with the most distant expiry.
func (s *VaultStore) LatestByUse(ctx context.Context, use KeyUse, now time.Time) (*Record, error) {
	records, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var latest *Record
	for _, record := range records {
		if record.Use != use || record.Expired(now) {
			continue
		}
		if latest == nil || record.ExpiresAt.After(latest.ExpiresAt) {
			latest = record
		}
	}
	if latest == nil {
		return nil, ErrKeyNotFound
	}
	return latest, nil
}

// List returns all records under the store's prefix.
func (s *VaultStore) List(ctx context.Context) ([]*Record, error) {
	resp, err := s.client.Logical().ListWithContext(ctx, path.Join(s.mount, "metadata", s.prefix))
	if err != nil {
		return nil, fmt.Errorf("keys: vault list: %w", err)
	}
	if resp == nil || resp.Data["keys"] == nil {
		return nil, nil
	}
	kids, ok := resp.Data["keys"].([]interface{})
	if !ok {
		return nil, nil
	}

	records := make([]*Record, 0, len(kids))
	for _, v := range kids {
		kid, ok := v.(string)
		if !ok {
			continue
		}
		record, err := s.Get(ctx, kid)
		if err != nil {
			// Soft-deleted versions list but do not read.
			continue
		}
		records = append(records, record)
	}
	return records, nil
}
