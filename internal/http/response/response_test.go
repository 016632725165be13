package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ayesh156/roxeleye-crud/internal/apperror"
)

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return body
}

func TestFailMapsKindsToStatus(t *testing.T) {
	cases := []struct {
		kind   apperror.Kind
		status int
	}{
		{apperror.KindValidation, http.StatusBadRequest},
		{apperror.KindConflict, http.StatusBadRequest},
		{apperror.KindUpload, http.StatusBadRequest},
		{apperror.KindAuthentication, http.StatusUnauthorized},
		{apperror.KindAuthorization, http.StatusForbidden},
		{apperror.KindNotFound, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.kind.String(), func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			err := fmt.Errorf("wrapped: %w", apperror.New(tc.kind, "client message"))
			Fail(rr, req, err)

			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			body := decode(t, rr)
			if body["success"] != false || body["error"] != "client message" {
				t.Fatalf("unexpected body %v", body)
			}
		})
	}
}

func TestFailHidesInternalMessages(t *testing.T) {
	for _, err := range []error{
		errors.New("pq: connection refused at 10.0.0.3"),
		apperror.New(apperror.KindInternal, "Failed to store uploaded image").Wrap(errors.New("disk full")),
	} {
		rr := httptest.NewRecorder()
		Fail(rr, httptest.NewRequest(http.MethodPost, "/api/items", nil), err)
		if rr.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rr.Code)
		}
		if body := decode(t, rr); body["error"] != internalErrorMessage {
			t.Fatalf("internal detail leaked: %v", body)
		}
	}
}

func TestValidationFailedEnvelope(t *testing.T) {
	rr := httptest.NewRecorder()
	ValidationFailed(rr, httptest.NewRequest(http.MethodPost, "/", nil), []FieldError{{Field: "email", Message: "Email is required"}})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	var body Envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Success || body.Error != "Validation failed" || len(body.Errors) != 1 || body.Errors[0].Field != "email" {
		t.Fatalf("unexpected envelope %+v", body)
	}
}

func TestSuccessEnvelopesOmitEmptyFields(t *testing.T) {
	rr := httptest.NewRecorder()
	Message(rr, httptest.NewRequest(http.MethodDelete, "/", nil), nil, "Item deleted successfully")
	body := decode(t, rr)
	if _, ok := body["data"]; ok {
		t.Fatalf("expected no data field, got %v", body)
	}
	if body["success"] != true || body["message"] != "Item deleted successfully" {
		t.Fatalf("unexpected body %v", body)
	}

	rr = httptest.NewRecorder()
	Created(rr, httptest.NewRequest(http.MethodPost, "/", nil), map[string]int{"id": 1})
	if rr.Code != http.StatusCreated || rr.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("unexpected created response %d %q", rr.Code, rr.Header().Get("Content-Type"))
	}
}
