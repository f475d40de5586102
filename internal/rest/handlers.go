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
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
	"github.com/google/uuid"
	"github.com/jeremyhahn/go-webauthn-rp/pkg/authenticator"
	"github.com/jeremyhahn/go-webauthn-rp/pkg/ceremony"
	"github.com/jeremyhahn/go-webauthn-rp/pkg/keys"
	"github.com/jeremyhahn/go-webauthn-rp/pkg/metrics"
	"github.com/jeremyhahn/go-webauthn-rp/pkg/token"
)

// HandlerContext carries the services shared by all REST handlers.
type HandlerContext struct {
	registry   *authenticator.Registry
	keys       *keys.Service
	tokens     *token.Service
	ceremonies *ceremony.Cache
	version    string
	startTime  time.Time
}

// NewHandlerContext creates a handler context over the given services.
func NewHandlerContext(registry *authenticator.Registry, keySvc *keys.Service, tokenSvc *token.Service, ceremonies *ceremony.Cache, version string) *HandlerContext {
	return &HandlerContext{
		registry:   registry,
		keys:       keySvc,
		tokens:     tokenSvc,
		ceremonies: ceremonies,
		version:    version,
		startTime:  time.Now(),
	}
}

// HealthHandler reports server liveness and uptime.
func (h *HandlerContext) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"status":  "healthy",
		"version": h.version,
		"uptime":  time.Since(h.startTime).String(),
	}, http.StatusOK)
}

// LivenessHandler is the Kubernetes liveness probe.
func (h *HandlerContext) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "alive"}, http.StatusOK)
}

// ReadinessHandler is the Kubernetes readiness probe. The server is ready
// once a current signing key can be produced.
func (h *HandlerContext) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := h.keys.LatestKey(r.Context(), keys.UseSignature); err != nil {
		writeJSON(w, map[string]string{"status": "not_ready"}, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]string{"status": "ready"}, http.StatusOK)
}

// JWKSHandler returns the public half of every lifecycle key.
func (h *HandlerContext) JWKSHandler(w http.ResponseWriter, r *http.Request) {
	set, err := h.keys.JWKS(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, set, http.StatusOK)
}

// tokenRequest is the body of the token issuance endpoint.
type tokenRequest struct {
	Subject string                 `json:"subject"`
	Claims  map[string]interface{} `json:"claims,omitempty"`
}

// CreateTokenHandler issues a signed bearer token under the current
// signature key.
func (h *HandlerContext) CreateTokenHandler(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Subject == "" {
		handleError(w, r, ErrInvalidRequest)
		return
	}

	record, err := h.keys.LatestKey(r.Context(), keys.UseSignature)
	if err != nil {
		metrics.RecordTokenOperation(metrics.OpSign, metrics.StatusError)
		handleError(w, r, err)
		return
	}

	signed, err := h.tokens.CreateSignedToken(record, req.Subject, req.Claims)
	if err != nil {
		metrics.RecordTokenOperation(metrics.OpSign, metrics.StatusError)
		handleError(w, r, err)
		return
	}

	metrics.RecordTokenOperation(metrics.OpSign, metrics.StatusSuccess)
	writeJSON(w, map[string]string{"token": signed, "kid": record.Kid}, http.StatusCreated)
}

// deviceRequest is the body of the device registration endpoint.
type deviceRequest struct {
	DisplayName string   `json:"displayName"`
	Tags        []string `json:"tags,omitempty"`
}

// deviceResponse describes a registered device.
type deviceResponse struct {
	ID             string   `json:"id"`
	DisplayName    string   `json:"displayName"`
	Tags           []string `json:"tags,omitempty"`
	Authenticators int      `json:"authenticators"`
}

func describeDevice(d *authenticator.Device) deviceResponse {
	return deviceResponse{
		ID:             d.ID().String(),
		DisplayName:    d.DisplayName(),
		Tags:           d.Tags(),
		Authenticators: d.Len(),
	}
}

// CreateDeviceHandler registers a new virtual device.
func (h *HandlerContext) CreateDeviceHandler(w http.ResponseWriter, r *http.Request) {
	var req deviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DisplayName == "" {
		handleError(w, r, ErrInvalidRequest)
		return
	}

	device := authenticator.NewDevice(req.DisplayName, req.Tags...)
	if err := h.registry.Register(device); err != nil {
		handleError(w, r, err)
		return
	}

	metrics.SetDevicesTotal(float64(len(h.registry.Devices())))
	writeJSON(w, describeDevice(device), http.StatusCreated)
}

// ListDevicesHandler returns all registered devices.
func (h *HandlerContext) ListDevicesHandler(w http.ResponseWriter, r *http.Request) {
	devices := h.registry.Devices()
	out := make([]deviceResponse, 0, len(devices))
	for _, d := range devices {
		out = append(out, describeDevice(d))
	}
	writeJSON(w, out, http.StatusOK)
}

// GetDeviceHandler returns a single device by id.
func (h *HandlerContext) GetDeviceHandler(w http.ResponseWriter, r *http.Request) {
	device, err := h.device(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, describeDevice(device), http.StatusOK)
}

// DeleteDeviceHandler removes a device from the registry.
func (h *HandlerContext) DeleteDeviceHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "deviceID"))
	if err != nil {
		handleError(w, r, ErrInvalidRequest)
		return
	}

	if _, err := h.registry.Remove(id); err != nil {
		handleError(w, r, err)
		return
	}

	metrics.SetDevicesTotal(float64(len(h.registry.Devices())))
	w.WriteHeader(http.StatusNoContent)
}

// authenticatorRequest is the body of the add-authenticator endpoint.
type authenticatorRequest struct {
	Attachment string  `json:"attachment,omitempty"`
	Transport  string  `json:"transport,omitempty"`
	Algorithms []int64 `json:"algorithms,omitempty"`
}

// authenticatorResponse describes a virtual authenticator.
type authenticatorResponse struct {
	ID             string `json:"id"`
	Attachment     string `json:"attachment"`
	Transport      string `json:"transport"`
	SignatureCount uint32 `json:"signatureCount"`
	Credentials    int    `json:"credentials"`
}

func describeAuthenticator(a *authenticator.VirtualAuthenticator) authenticatorResponse {
	return authenticatorResponse{
		ID:             a.ID().String(),
		Attachment:     string(a.Attachment()),
		Transport:      string(a.Transport()),
		SignatureCount: a.SignatureCount(),
		Credentials:    len(a.Credentials()),
	}
}

// AddAuthenticatorHandler attaches a new virtual authenticator to a device.
func (h *HandlerContext) AddAuthenticatorHandler(w http.ResponseWriter, r *http.Request) {
	device, err := h.device(r)
	if err != nil {
		handleError(w, r, err)
		return
	}

	var req authenticatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleError(w, r, ErrInvalidRequest)
		return
	}

	var opts []authenticator.Option
	if req.Attachment != "" {
		opts = append(opts, authenticator.WithAttachment(protocol.AuthenticatorAttachment(req.Attachment)))
	}
	if req.Transport != "" {
		opts = append(opts, authenticator.WithTransport(protocol.AuthenticatorTransport(req.Transport)))
	}
	if len(req.Algorithms) > 0 {
		algorithms := make([]webauthncose.COSEAlgorithmIdentifier, 0, len(req.Algorithms))
		for _, alg := range req.Algorithms {
			algorithms = append(algorithms, webauthncose.COSEAlgorithmIdentifier(alg))
		}
		opts = append(opts, authenticator.WithSupportedAlgorithms(algorithms...))
	}

	auth := authenticator.New(opts...)
	if err := device.Add(auth); err != nil {
		handleError(w, r, err)
		return
	}

	writeJSON(w, describeAuthenticator(auth), http.StatusCreated)
}

// ListAuthenticatorsHandler returns a device's authenticators.
func (h *HandlerContext) ListAuthenticatorsHandler(w http.ResponseWriter, r *http.Request) {
	device, err := h.device(r)
	if err != nil {
		handleError(w, r, err)
		return
	}

	authenticators := device.Authenticators()
	out := make([]authenticatorResponse, 0, len(authenticators))
	for _, a := range authenticators {
		out = append(out, describeAuthenticator(a))
	}
	writeJSON(w, out, http.StatusOK)
}

// registrationRequest is the body of the registration ceremony endpoint.
// Options may be supplied inline or loaded from a previously saved ceremony
// request.
type registrationRequest struct {
	Origin    string                       `json:"origin"`
	RequestID string                       `json:"requestId,omitempty"`
	Options   *protocol.CredentialCreation `json:"options,omitempty"`
}

// RegistrationHandler runs a registration ceremony against the first
// matching authenticator on the device.
func (h *HandlerContext) RegistrationHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	device, err := h.device(r)
	if err != nil {
		handleError(w, r, err)
		return
	}

	var req registrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Origin == "" {
		handleError(w, r, ErrInvalidRequest)
		return
	}

	options := req.Options
	if options == nil {
		if req.RequestID == "" {
			handleError(w, r, ErrInvalidRequest)
			return
		}
		options, err = h.ceremonies.LoadRegistration(r.Context(), req.RequestID)
		if err != nil {
			handleError(w, r, err)
			return
		}
	}

	matches := device.MatchForRegistration(options)
	if len(matches) == 0 {
		metrics.RecordCeremony(metrics.CeremonyRegistration, metrics.StatusError, time.Since(start).Seconds())
		handleError(w, r, authenticator.ErrAuthenticatorNotFound)
		return
	}

	response, err := matches[0].Create(options, req.Origin)
	if err != nil {
		metrics.RecordCeremony(metrics.CeremonyRegistration, metrics.StatusError, time.Since(start).Seconds())
		handleError(w, r, err)
		return
	}

	metrics.RecordCeremony(metrics.CeremonyRegistration, metrics.StatusSuccess, time.Since(start).Seconds())
	writeJSON(w, response, http.StatusOK)
}

// assertionRequest is the body of the assertion ceremony endpoint.
type assertionRequest struct {
	Origin    string                        `json:"origin"`
	RequestID string                        `json:"requestId,omitempty"`
	Options   *protocol.CredentialAssertion `json:"options,omitempty"`
}

// AssertionHandler runs an assertion ceremony against the first matching
// authenticator on the device.
func (h *HandlerContext) AssertionHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	device, err := h.device(r)
	if err != nil {
		handleError(w, r, err)
		return
	}

	var req assertionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Origin == "" {
		handleError(w, r, ErrInvalidRequest)
		return
	}

	options := req.Options
	if options == nil {
		if req.RequestID == "" {
			handleError(w, r, ErrInvalidRequest)
			return
		}
		options, err = h.ceremonies.LoadAssertion(r.Context(), req.RequestID)
		if err != nil {
			handleError(w, r, err)
			return
		}
	}

	matches := device.MatchForAssertion(options)
	if len(matches) == 0 {
		metrics.RecordCeremony(metrics.CeremonyAssertion, metrics.StatusError, time.Since(start).Seconds())
		handleError(w, r, authenticator.ErrCredentialMismatch)
		return
	}

	response, err := matches[0].Get(options, req.Origin)
	if err != nil {
		metrics.RecordCeremony(metrics.CeremonyAssertion, metrics.StatusError, time.Since(start).Seconds())
		handleError(w, r, err)
		return
	}

	metrics.RecordCeremony(metrics.CeremonyAssertion, metrics.StatusSuccess, time.Since(start).Seconds())
	writeJSON(w, response, http.StatusOK)
}

// saveRegistrationRequest is the body of the save-registration-ceremony
// endpoint.
type saveRegistrationRequest struct {
	RequestID string                       `json:"requestId"`
	Options   *protocol.CredentialCreation `json:"options"`
}

// SaveRegistrationCeremonyHandler stores pending registration options under
// a request id for a later ceremony.
func (h *HandlerContext) SaveRegistrationCeremonyHandler(w http.ResponseWriter, r *http.Request) {
	var req saveRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RequestID == "" || req.Options == nil {
		handleError(w, r, ErrInvalidRequest)
		return
	}

	if err := h.ceremonies.Save(r.Context(), req.RequestID, req.Options); err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"requestId": req.RequestID}, http.StatusCreated)
}

// saveAssertionRequest is the body of the save-assertion-ceremony endpoint.
type saveAssertionRequest struct {
	RequestID string                        `json:"requestId"`
	Options   *protocol.CredentialAssertion `json:"options"`
}

// SaveAssertionCeremonyHandler stores pending assertion options under a
// request id for a later ceremony.
func (h *HandlerContext) SaveAssertionCeremonyHandler(w http.ResponseWriter, r *http.Request) {
	var req saveAssertionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RequestID == "" || req.Options == nil {
		handleError(w, r, ErrInvalidRequest)
		return
	}

	if err := h.ceremonies.Save(r.Context(), req.RequestID, req.Options); err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"requestId": req.RequestID}, http.StatusCreated)
}

// DeleteCeremonyHandler removes a pending ceremony request.
func (h *HandlerContext) DeleteCeremonyHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.ceremonies.Remove(r.Context(), chi.URLParam(r, "requestID")); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// device resolves the deviceID path parameter to a registered device.
func (h *HandlerContext) device(r *http.Request) (*authenticator.Device, error) {
	id, err := uuid.Parse(chi.URLParam(r, "deviceID"))
	if err != nil {
		return nil, ErrInvalidRequest
	}
	return h.registry.Get(id)
}
