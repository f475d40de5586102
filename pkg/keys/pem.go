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
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/youmark/pkcs8"
)

const (
	pemTypePrivate          = "PRIVATE KEY"
	pemTypeEncryptedPrivate = "ENCRYPTED PRIVATE KEY"
)

// ErrMalformedPEM is returned when PEM input cannot be decoded.
var ErrMalformedPEM = errors.New("keys: malformed PEM")

// ExportPEM serializes a record's private key as PKCS#8 PEM. A non-empty
// passphrase produces an encrypted PKCS#8 envelope.
func ExportPEM(record *Record, passphrase []byte) ([]byte, error) {
	var (
		der     []byte
		pemType string
		err     error
	)
	if len(passphrase) > 0 {
		der, err = pkcs8.MarshalPrivateKey(record.Key.Key, passphrase, nil)
		pemType = pemTypeEncryptedPrivate
	} else {
		der, err = pkcs8.MarshalPrivateKey(record.Key.Key, nil, nil)
		pemType = pemTypePrivate
	}
	if err != nil {
		return nil, fmt.Errorf("keys: PKCS#8 export: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemType, Bytes: der}), nil
}

// ImportPEM parses a PKCS#8 PEM private key, decrypting with the passphrase
// when the block is encrypted.
func ImportPEM(data, passphrase []byte) (interface{}, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrMalformedPEM
	}

	var (
		key interface{}
		err error
	)
	if block.Type == pemTypeEncryptedPrivate || len(passphrase) > 0 {
		key, err = pkcs8.ParsePKCS8PrivateKey(block.Bytes, passphrase)
	} else {
		key, err = pkcs8.ParsePKCS8PrivateKey(block.Bytes)
	}
	if err != nil {
		return nil, fmt.Errorf("keys: PKCS#8 import: %w", err)
	}
	return key, nil
}
