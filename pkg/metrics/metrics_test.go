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

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsEnabled(t *testing.T) {
	if !IsEnabled() {
		t.Error("Expected metrics to be enabled by default")
	}

	Disable()
	if IsEnabled() {
		t.Error("Expected metrics to be disabled after Disable()")
	}

	Enable()
	if !IsEnabled() {
		t.Error("Expected metrics to be enabled after Enable()")
	}
}

func TestRecordCeremony(t *testing.T) {
	Enable()
	CeremoniesTotal.Reset()
	CeremonyDuration.Reset()

	RecordCeremony(CeremonyRegistration, StatusSuccess, 0.02)

	if count := testutil.CollectAndCount(CeremoniesTotal); count != 1 {
		t.Errorf("Expected 1 ceremony recorded, got %d", count)
	}
	if count := testutil.CollectAndCount(CeremonyDuration); count != 1 {
		t.Errorf("Expected 1 histogram sample, got %d", count)
	}

	RecordCeremony(CeremonyAssertion, StatusError, 0.01)

	if count := testutil.CollectAndCount(CeremoniesTotal); count != 2 {
		t.Errorf("Expected 2 ceremonies recorded, got %d", count)
	}
}

func TestRecordCeremonyWhenDisabled(t *testing.T) {
	Disable()
	defer Enable()

	CeremoniesTotal.Reset()

	RecordCeremony(CeremonyRegistration, StatusSuccess, 0.02)

	if count := testutil.CollectAndCount(CeremoniesTotal); count != 0 {
		t.Errorf("Expected 0 ceremonies when disabled, got %d", count)
	}
}

func TestRecordTokenOperation(t *testing.T) {
	Enable()
	TokensTotal.Reset()

	RecordTokenOperation(OpSign, StatusSuccess)
	RecordTokenOperation(OpValidate, StatusError)

	if count := testutil.CollectAndCount(TokensTotal); count != 2 {
		t.Errorf("Expected 2 token operations recorded, got %d", count)
	}
}

func TestRecordKeyRotation(t *testing.T) {
	Enable()
	KeyRotationsTotal.Reset()

	RecordKeyRotation("signature")

	value := testutil.ToFloat64(KeyRotationsTotal.WithLabelValues("signature"))
	if value != 1 {
		t.Errorf("Expected rotation counter 1, got %f", value)
	}
}

func TestHTTPMiddleware(t *testing.T) {
	Enable()
	HTTPRequestsTotal.Reset()
	HTTPRequestDuration.Reset()

	handler := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/devices", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Errorf("Expected status 201, got %d", rec.Code)
	}

	value := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodPost, "201"))
	if value != 1 {
		t.Errorf("Expected 1 request recorded, got %f", value)
	}
}
