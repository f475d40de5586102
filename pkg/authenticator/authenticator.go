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

// Package authenticator simulates FIDO2 authenticators: it produces
// registration (attestation) and authentication (assertion) responses that a
// relying party can validate, maintains per-credential key pairs, and
// enforces algorithm and attachment compatibility against ceremony options.
package authenticator

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"sync"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
	"github.com/google/uuid"

	"github.com/jeremyhahn/go-webauthn-rp/pkg/encoding/bytecodec"
	"github.com/jeremyhahn/go-webauthn-rp/pkg/encoding/cose"
)

// authDataFlags is the fixed flags byte emitted in authenticator data:
// user present (0x01), user verified (0x04) and attested credential data
// included (0x40).
const authDataFlags = 0x45

// VirtualAuthenticator simulates one physical authenticator. It is stateless
// between ceremonies except for the signature counter and the credential
// store. Safe for concurrent use; the conflict check on registration and the
// counter increment on assertion are serialized per authenticator.
type VirtualAuthenticator struct {
	mu                  sync.Mutex
	id                  uuid.UUID
	attachment          protocol.AuthenticatorAttachment
	transport           protocol.AuthenticatorTransport
	supportedAlgorithms []webauthncose.COSEAlgorithmIdentifier
	signatureCount      uint32
	legacyKey           *jose.JSONWebKey
	store               *Store
}

// Option configures a VirtualAuthenticator.
type Option func(*VirtualAuthenticator)

// WithAuthenticatorID sets the authenticator's stable identifier (AAGUID).
func WithAuthenticatorID(id uuid.UUID) Option {
	return func(a *VirtualAuthenticator) {
		a.id = id
	}
}

// WithAttachment sets the authenticator attachment modality.
func WithAttachment(attachment protocol.AuthenticatorAttachment) Option {
	return func(a *VirtualAuthenticator) {
		a.attachment = attachment
	}
}

// WithTransport sets the authenticator transport.
func WithTransport(transport protocol.AuthenticatorTransport) Option {
	return func(a *VirtualAuthenticator) {
		a.transport = transport
	}
}

// WithSupportedAlgorithms replaces the default algorithm set.
func WithSupportedAlgorithms(algs ...webauthncose.COSEAlgorithmIdentifier) Option {
	return func(a *VirtualAuthenticator) {
		a.supportedAlgorithms = algs
	}
}

// WithSignatureCount sets the initial signature counter. Used when importing
// previously exported authenticator state.
func WithSignatureCount(count uint32) Option {
	return func(a *VirtualAuthenticator) {
		a.signatureCount = count
	}
}

// WithLegacyKey attaches an authenticator-level key carried over from older
// exports. It is preserved across serialization but never used to sign;
// assertions always sign with the matched credential's own key.
func WithLegacyKey(key jose.JSONWebKey) Option {
	return func(a *VirtualAuthenticator) {
		a.legacyKey = &key
	}
}

// New creates a virtual authenticator with a random identifier, platform
// attachment, internal transport and support for RS256 and ES256.
func New(opts ...Option) *VirtualAuthenticator {
	a := &VirtualAuthenticator{
		id:         uuid.New(),
		attachment: protocol.Platform,
		transport:  protocol.Internal,
		supportedAlgorithms: []webauthncose.COSEAlgorithmIdentifier{
			webauthncose.AlgRS256,
			webauthncose.AlgES256,
		},
		store: NewStore(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ID returns the authenticator's identifier.
func (a *VirtualAuthenticator) ID() uuid.UUID {
	return a.id
}

// Attachment returns the authenticator attachment modality.
func (a *VirtualAuthenticator) Attachment() protocol.AuthenticatorAttachment {
	return a.attachment
}

// Transport returns the authenticator transport.
func (a *VirtualAuthenticator) Transport() protocol.AuthenticatorTransport {
	return a.transport
}

// SupportedAlgorithms returns the signature algorithms this authenticator
// can generate credentials for.
func (a *VirtualAuthenticator) SupportedAlgorithms() []webauthncose.COSEAlgorithmIdentifier {
	algs := make([]webauthncose.COSEAlgorithmIdentifier, len(a.supportedAlgorithms))
	copy(algs, a.supportedAlgorithms)
	return algs
}

// SignatureCount returns the current signature counter.
func (a *VirtualAuthenticator) SignatureCount() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.signatureCount
}

// Credentials returns the stored credentials in insertion order.
func (a *VirtualAuthenticator) Credentials() []*Credential {
	return a.store.Credentials()
}

// AddCredential imports a credential directly, bypassing the registration
// ceremony. Fails with ErrDuplicateCredential if the id is taken.
func (a *VirtualAuthenticator) AddCredential(cred *Credential) error {
	return a.store.Add(cred)
}

// RemoveCredential removes the credential for a (user, relying party) pair
// and returns it, or ErrCredentialNotFound.
func (a *VirtualAuthenticator) RemoveCredential(userID, relyingPartyID []byte) (*Credential, error) {
	cred, ok := a.store.Remove(userID, relyingPartyID)
	if !ok {
		return nil, NewError("authenticator.RemoveCredential", ErrCredentialNotFound)
	}
	return cred, nil
}

// Create performs the registration ceremony: it generates a fresh credential
// for the (user, relying party) pair in the options and returns the
// attestation response. The signature counter is not changed.
//
// Fails with ErrConflict if a credential already exists for the pair and
// ErrAlgorithmMismatch if none of the requested algorithms are supported.
func (a *VirtualAuthenticator) Create(options *protocol.CredentialCreation, origin string) (*protocol.CredentialCreationResponse, error) {
	relyingPartyID := []byte(options.Response.RelyingParty.ID)
	userID, err := userIDBytes(options.Response.User.ID)
	if err != nil {
		return nil, NewError("authenticator.Create", err)
	}

	keyType, ok := a.selectKeyType(options.Response.Parameters)
	if !ok {
		return nil, NewError("authenticator.Create", ErrAlgorithmMismatch)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.store.FindByOwner(userID, relyingPartyID); exists {
		return nil, NewError("authenticator.Create", ErrConflict)
	}

	cred, err := NewCredential(userID, relyingPartyID, keyType)
	if err != nil {
		return nil, NewError("authenticator.Create", err)
	}
	if err := a.store.Add(cred); err != nil {
		return nil, err
	}

	authData, err := a.buildAuthenticatorData(cred, a.signatureCount)
	if err != nil {
		return nil, NewError("authenticator.Create", err)
	}

	attestationObject, err := cose.Marshal(map[string]interface{}{
		"authData": authData,
		"fmt":      "none",
		"attStmt":  map[string]interface{}{},
	})
	if err != nil {
		return nil, NewError("authenticator.Create", err)
	}

	credentialID := base64.RawURLEncoding.EncodeToString(cred.CredentialID)
	return &protocol.CredentialCreationResponse{
		PublicKeyCredential: protocol.PublicKeyCredential{
			Credential: protocol.Credential{
				ID:   credentialID,
				Type: "public-key",
			},
			RawID:                   cred.CredentialID,
			AuthenticatorAttachment: string(a.attachment),
		},
		AttestationResponse: protocol.AuthenticatorAttestationResponse{
			AuthenticatorResponse: protocol.AuthenticatorResponse{
				ClientDataJSON: buildClientDataJSON(options.Response.Challenge, origin, "webauthn.create"),
			},
			AttestationObject: attestationObject,
			Transports:        []string{string(a.transport)},
		},
	}, nil
}

// Get performs the assertion ceremony: it selects the first stored
// credential present in the options' allow-list, increments the signature
// counter by exactly one, and signs authenticatorData ∥ SHA-256(clientDataJSON)
// with the credential's private key.
//
// Fails with ErrCredentialMismatch if no stored credential appears in the
// allow-list.
func (a *VirtualAuthenticator) Get(options *protocol.CredentialAssertion, origin string) (*protocol.CredentialAssertionResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cred := firstAllowed(a.store.Credentials(), options.Response.AllowedCredentials)
	if cred == nil {
		return nil, NewError("authenticator.Get", ErrCredentialMismatch)
	}

	a.signatureCount++
	authData, err := a.buildAuthenticatorData(cred, a.signatureCount)
	if err != nil {
		return nil, NewError("authenticator.Get", err)
	}

	clientDataJSON := buildClientDataJSON(options.Response.Challenge, origin, "webauthn.get")
	clientDataHash := sha256.Sum256(clientDataJSON)
	signature, err := cred.Sign(bytecodec.Concat(authData, clientDataHash[:]))
	if err != nil {
		return nil, NewError("authenticator.Get", err)
	}

	credentialID := base64.RawURLEncoding.EncodeToString(cred.CredentialID)
	return &protocol.CredentialAssertionResponse{
		PublicKeyCredential: protocol.PublicKeyCredential{
			Credential: protocol.Credential{
				ID:   credentialID,
				Type: "public-key",
			},
			RawID:                   cred.CredentialID,
			AuthenticatorAttachment: string(a.attachment),
		},
		AssertionResponse: protocol.AuthenticatorAssertionResponse{
			AuthenticatorResponse: protocol.AuthenticatorResponse{
				ClientDataJSON: clientDataJSON,
			},
			AuthenticatorData: authData,
			Signature:         signature,
			UserHandle:        cred.UserID,
		},
	}, nil
}

// MatchForRegistration reports whether this authenticator can satisfy the
// registration options: its attachment matches the authenticator selection
// (an empty selection matches any) and at least one requested algorithm is
// supported. Pure filter; no state changes.
func (a *VirtualAuthenticator) MatchForRegistration(options *protocol.CredentialCreation) bool {
	selection := options.Response.AuthenticatorSelection.AuthenticatorAttachment
	if selection != "" && selection != a.attachment {
		return false
	}
	_, ok := a.selectKeyType(options.Response.Parameters)
	return ok
}

// MatchForAssertion reports whether any stored credential appears in the
// options' allow-list. Pure filter; no state changes.
func (a *VirtualAuthenticator) MatchForAssertion(options *protocol.CredentialAssertion) bool {
	return firstAllowed(a.store.Credentials(), options.Response.AllowedCredentials) != nil
}

// selectKeyType intersects the requested credential parameters with the
// supported algorithm set, in request order, and maps the first hit to a key
// type.
func (a *VirtualAuthenticator) selectKeyType(params []protocol.CredentialParameter) (KeyType, bool) {
	for _, param := range params {
		for _, alg := range a.supportedAlgorithms {
			if param.Algorithm != alg {
				continue
			}
			switch alg {
			case webauthncose.AlgES256:
				return KeyTypeEC, true
			case webauthncose.AlgRS256:
				return KeyTypeRSA, true
			}
		}
	}
	return "", false
}

// buildAuthenticatorData assembles the fixed-layout authenticator data:
// rpIdHash ∥ flags ∥ count ∥ aaguid ∥ credIdLen ∥ credId ∥ COSE public key.
// Attested credential data is included for assertions as well so the
// response is self-describing.
func (a *VirtualAuthenticator) buildAuthenticatorData(cred *Credential, count uint32) ([]byte, error) {
	pub, err := cred.PublicKey()
	if err != nil {
		return nil, err
	}
	coseKey, err := cose.EncodePublicKey(pub)
	if err != nil {
		return nil, err
	}

	rpIDHash := sha256.Sum256(cred.RelyingPartyID)
	return bytecodec.Concat(
		rpIDHash[:],
		bytecodec.Uint8(authDataFlags),
		bytecodec.Uint32(int64(count)),
		bytecodec.UUID(a.id),
		bytecodec.Uint16(len(cred.CredentialID)),
		cred.CredentialID,
		coseKey,
	), nil
}

// firstAllowed returns the first credential, in store insertion order, whose
// id appears in the allow-list, or nil.
func firstAllowed(creds []*Credential, allowed []protocol.CredentialDescriptor) *Credential {
	for _, cred := range creds {
		for _, descriptor := range allowed {
			if string(descriptor.CredentialID) == string(cred.CredentialID) {
				return cred
			}
		}
	}
	return nil
}

// buildClientDataJSON produces the collected client data for a ceremony.
// Field order is fixed by the struct so the encoding is deterministic.
func buildClientDataJSON(challenge protocol.URLEncodedBase64, origin, ceremonyType string) []byte {
	clientData := struct {
		Type      string `json:"type"`
		Challenge string `json:"challenge"`
		Origin    string `json:"origin"`
	}{
		Type:      ceremonyType,
		Challenge: base64.RawURLEncoding.EncodeToString(challenge),
		Origin:    origin,
	}
	data, err := json.Marshal(clientData)
	if err != nil {
		// Marshalling three strings cannot fail.
		panic(err)
	}
	return data
}

// userIDBytes coerces the user id from ceremony options, which the wire
// schema types loosely, into raw bytes.
func userIDBytes(id interface{}) ([]byte, error) {
	switch v := id.(type) {
	case []byte:
		return v, nil
	case protocol.URLEncodedBase64:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, ErrBadRequest
	}
}

type authenticatorJSON struct {
	ID                  string                                 `json:"authenticatorId"`
	Attachment          string                                 `json:"attachment"`
	Transport           string                                 `json:"transport"`
	SupportedAlgorithms []webauthncose.COSEAlgorithmIdentifier `json:"supportedAlgorithms"`
	SignatureCount      uint32                                 `json:"signatureCount"`
	Key                 json.RawMessage                        `json:"key,omitempty"`
	Credentials         *Store                                 `json:"credentials"`
}

// MarshalJSON serializes the full authenticator state, private keys
// included, so it survives export/import.
func (a *VirtualAuthenticator) MarshalJSON() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var legacyKey json.RawMessage
	if a.legacyKey != nil {
		data, err := a.legacyKey.MarshalJSON()
		if err != nil {
			return nil, NewError("authenticator.MarshalJSON", err)
		}
		legacyKey = data
	}
	return json.Marshal(authenticatorJSON{
		ID:                  a.id.String(),
		Attachment:          string(a.attachment),
		Transport:           string(a.transport),
		SupportedAlgorithms: a.supportedAlgorithms,
		SignatureCount:      a.signatureCount,
		Key:                 legacyKey,
		Credentials:         a.store,
	})
}

// UnmarshalJSON restores an authenticator serialized by MarshalJSON.
func (a *VirtualAuthenticator) UnmarshalJSON(data []byte) error {
	var raw authenticatorJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return NewError("authenticator.UnmarshalJSON", err)
	}
	id, err := uuid.Parse(raw.ID)
	if err != nil {
		return NewError("authenticator.UnmarshalJSON", err)
	}
	store := NewStore()
	if raw.Credentials != nil {
		store = raw.Credentials
	}
	var legacyKey *jose.JSONWebKey
	if len(raw.Key) > 0 {
		var key jose.JSONWebKey
		if err := key.UnmarshalJSON(raw.Key); err != nil {
			return NewError("authenticator.UnmarshalJSON", err)
		}
		legacyKey = &key
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.id = id
	a.attachment = protocol.AuthenticatorAttachment(raw.Attachment)
	a.transport = protocol.AuthenticatorTransport(raw.Transport)
	a.supportedAlgorithms = raw.SupportedAlgorithms
	a.signatureCount = raw.SignatureCount
	a.legacyKey = legacyKey
	a.store = store
	return nil
}
