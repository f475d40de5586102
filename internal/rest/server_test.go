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

package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
	"github.com/jeremyhahn/go-webauthn-rp/pkg/adapters/logger"
	"github.com/jeremyhahn/go-webauthn-rp/pkg/authenticator"
	"github.com/jeremyhahn/go-webauthn-rp/pkg/ceremony"
	"github.com/jeremyhahn/go-webauthn-rp/pkg/keys"
	"github.com/jeremyhahn/go-webauthn-rp/pkg/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, authEnabled bool) *Server {
	t.Helper()

	srv, err := NewServer(&Config{
		Registry:    authenticator.NewRegistry(),
		Keys:        keys.NewService(keys.NewMemoryStore()),
		Tokens:      token.NewService(),
		Ceremonies:  ceremony.NewCache(ceremony.NewMemoryRequestStore()),
		AuthEnabled: authEnabled,
		Logger:      logger.NewNoopLogger(),
	})
	require.NoError(t, err)
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func creationOptions(userID []byte, rpID string) *protocol.CredentialCreation {
	return &protocol.CredentialCreation{
		Response: protocol.PublicKeyCredentialCreationOptions{
			RelyingParty: protocol.RelyingPartyEntity{
				CredentialEntity: protocol.CredentialEntity{Name: "Example RP"},
				ID:               rpID,
			},
			User: protocol.UserEntity{
				CredentialEntity: protocol.CredentialEntity{Name: "alice"},
				DisplayName:      "Alice",
				ID:               userID,
			},
			Challenge: protocol.URLEncodedBase64("registration-challenge"),
			Parameters: []protocol.CredentialParameter{
				{Type: protocol.PublicKeyCredentialType, Algorithm: webauthncose.AlgES256},
			},
		},
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t, false)

	rec := doJSON(t, srv, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]interface{}](t, rec)
	assert.Equal(t, "healthy", body["status"])

	rec = doJSON(t, srv, http.MethodGet, "/health/live", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/health/ready", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCorrelationHeaderEchoed(t *testing.T) {
	srv := newTestServer(t, false)

	rec := doJSON(t, srv, http.MethodGet, "/health", nil, map[string]string{
		"X-Correlation-ID": "test-correlation",
	})
	assert.Equal(t, "test-correlation", rec.Header().Get("X-Correlation-ID"))

	rec = doJSON(t, srv, http.MethodGet, "/health", nil, nil)
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
}

func TestJWKSEndpoint(t *testing.T) {
	srv := newTestServer(t, false)

	// issuing a token forces a signing key into existence
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/tokens", tokenRequest{Subject: "alice"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/jwks", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var set struct {
		Keys []json.RawMessage `json:"keys"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&set))
	assert.NotEmpty(t, set.Keys)
}

func TestTokenIssuanceAndBearerAuth(t *testing.T) {
	srv := newTestServer(t, true)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/tokens", tokenRequest{Subject: "alice"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	issued := decode[map[string]string](t, rec)
	require.NotEmpty(t, issued["token"])
	require.NotEmpty(t, issued["kid"])

	// without a token the API rejects the request
	rec = doJSON(t, srv, http.MethodGet, "/api/v1/devices", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	errBody := decode[ErrorResponse](t, rec)
	assert.Equal(t, "unauthorized", errBody.Code)
	assert.Equal(t, "/api/v1/devices", errBody.Path)
	assert.False(t, errBody.Timestamp.IsZero())

	// a garbage token is rejected
	rec = doJSON(t, srv, http.MethodGet, "/api/v1/devices", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// the issued token is accepted
	rec = doJSON(t, srv, http.MethodGet, "/api/v1/devices", nil, map[string]string{
		"Authorization": "Bearer " + issued["token"],
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeviceLifecycle(t *testing.T) {
	srv := newTestServer(t, false)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/devices", deviceRequest{
		DisplayName: "Pixel 9",
		Tags:        []string{"android"},
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	device := decode[deviceResponse](t, rec)
	assert.Equal(t, "Pixel 9", device.DisplayName)
	assert.Equal(t, []string{"android"}, device.Tags)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/devices/"+device.ID, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/devices", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	devices := decode[[]deviceResponse](t, rec)
	assert.Len(t, devices, 1)

	rec = doJSON(t, srv, http.MethodDelete, "/api/v1/devices/"+device.ID, nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/devices/"+device.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	errBody := decode[ErrorResponse](t, rec)
	assert.Equal(t, "device_not_found", errBody.Code)
}

func TestDeviceValidation(t *testing.T) {
	srv := newTestServer(t, false)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/devices", deviceRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/devices/not-a-uuid", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegistrationAndAssertionCeremonies(t *testing.T) {
	srv := newTestServer(t, false)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/devices", deviceRequest{DisplayName: "YubiKey"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	device := decode[deviceResponse](t, rec)

	rec = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/v1/devices/%s/authenticators", device.ID), authenticatorRequest{}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	options := creationOptions([]byte("user-1"), "rp.example.com")
	rec = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/v1/devices/%s/registration", device.ID), registrationRequest{
		Origin:  "https://rp.example.com",
		Options: options,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var created protocol.CredentialCreationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.NotEmpty(t, created.ID)

	assertion := &protocol.CredentialAssertion{
		Response: protocol.PublicKeyCredentialRequestOptions{
			Challenge:      protocol.URLEncodedBase64("assertion-challenge"),
			RelyingPartyID: "rp.example.com",
			AllowedCredentials: []protocol.CredentialDescriptor{
				{Type: protocol.PublicKeyCredentialType, CredentialID: []byte(created.RawID)},
			},
		},
	}
	rec = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/v1/devices/%s/assertion", device.ID), assertionRequest{
		Origin:  "https://rp.example.com",
		Options: assertion,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var asserted protocol.CredentialAssertionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&asserted))
	assert.NotEmpty(t, asserted.AssertionResponse.Signature)
}

func TestCeremonyRequestRoundTrip(t *testing.T) {
	srv := newTestServer(t, false)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/devices", deviceRequest{DisplayName: "Passkey"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	device := decode[deviceResponse](t, rec)

	rec = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/v1/devices/%s/authenticators", device.ID), authenticatorRequest{}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/ceremonies/registration", saveRegistrationRequest{
		RequestID: "req-1",
		Options:   creationOptions([]byte("user-2"), "rp.example.com"),
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	// the ceremony can be replayed by request id alone
	rec = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/v1/devices/%s/registration", device.ID), registrationRequest{
		Origin:    "https://rp.example.com",
		RequestID: "req-1",
	}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodDelete, "/api/v1/ceremonies/req-1", nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/v1/devices/%s/registration", device.ID), registrationRequest{
		Origin:    "https://rp.example.com",
		RequestID: "req-1",
	}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegistrationConflictMapsToConflict(t *testing.T) {
	srv := newTestServer(t, false)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/devices", deviceRequest{DisplayName: "Passkey"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	device := decode[deviceResponse](t, rec)

	rec = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/v1/devices/%s/authenticators", device.ID), authenticatorRequest{}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	body := registrationRequest{
		Origin:  "https://rp.example.com",
		Options: creationOptions([]byte("user-3"), "rp.example.com"),
	}
	rec = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/v1/devices/%s/registration", device.ID), body, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/v1/devices/%s/registration", device.ID), body, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	errBody := decode[ErrorResponse](t, rec)
	assert.Equal(t, "conflict", errBody.Code)
}
