// internal/member/handler_test.go
package member

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, backend Backend) http.Handler {
	t.Helper()
	svc, err := NewService(context.Background(), backend, true)
	require.NoError(t, err)

	router := chi.NewRouter()
	NewHandler(svc).Routes(router)
	return router
}

func doRequest(t *testing.T, router http.Handler, method, path string, body any) (*httptest.ResponseRecorder, response) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var envelope response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return rec, envelope
}

func TestLookupByPhone(t *testing.T) {
	router := newTestRouter(t, &fakeBackend{members: []Member{
		{ID: 1, Nickname: "Li", Phones: []string{"13800000001"}},
	}})

	rec, envelope := doRequest(t, router, http.MethodGet, "/api/member/13800000001", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, envelope.Success)
	require.NotNil(t, envelope.Data)

	rec, envelope = doRequest(t, router, http.MethodGet, "/api/member/13999999999", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "a business miss is not an HTTP error")
	assert.False(t, envelope.Success)
	assert.Equal(t, "no member found for this phone number", envelope.Message)
}

func TestListMembers(t *testing.T) {
	router := newTestRouter(t, &fakeBackend{members: []Member{
		{ID: 1, Nickname: "Li"},
		{ID: 2, Nickname: "Wang"},
	}})

	rec, envelope := doRequest(t, router, http.MethodGet, "/api/members", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, envelope.Success)

	data, err := json.Marshal(envelope.Data)
	require.NoError(t, err)
	var members []Member
	require.NoError(t, json.Unmarshal(data, &members))
	assert.Len(t, members, 2)
}

func TestCreateMember(t *testing.T) {
	backend := &fakeBackend{}
	router := newTestRouter(t, backend)

	rec, envelope := doRequest(t, router, http.MethodPost, "/api/member", map[string]any{
		"nickname":         "Li",
		"phones":           []string{"13800000001"},
		"membershipExpiry": "2025-12-31",
		"membershipFee":    100,
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, envelope.Success)
	assert.Equal(t, "member created", envelope.Message)
	assert.Equal(t, 1, backend.saves)
}

func TestCreateMemberValidation(t *testing.T) {
	router := newTestRouter(t, &fakeBackend{})

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing nickname", map[string]any{"phones": []string{"13800000001"}}},
		{"missing phones", map[string]any{"nickname": "Li"}},
		{"malformed phone", map[string]any{"nickname": "Li", "phones": []string{"12345"}}},
		{"second digit out of range", map[string]any{"nickname": "Li", "phones": []string{"12800000001"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, envelope := doRequest(t, router, http.MethodPost, "/api/member", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.False(t, envelope.Success)
		})
	}
}

func TestUpdateUnknownMember(t *testing.T) {
	router := newTestRouter(t, &fakeBackend{})

	rec, envelope := doRequest(t, router, http.MethodPost, "/api/member", map[string]any{
		"id":       42,
		"nickname": "Ghost",
		"phones":   []string{"13800000001"},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, envelope.Success)
	assert.Equal(t, "member not found", envelope.Message)
}

func TestDeleteMemberEndpoint(t *testing.T) {
	router := newTestRouter(t, &fakeBackend{members: []Member{{ID: 1, Nickname: "Li"}}})

	rec, envelope := doRequest(t, router, http.MethodDelete, "/api/member/1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, envelope.Success)
	assert.Equal(t, "member deleted", envelope.Message)

	rec, envelope = doRequest(t, router, http.MethodDelete, "/api/member/1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, envelope.Success)

	rec, envelope = doRequest(t, router, http.MethodDelete, "/api/member/not-a-number", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, envelope.Success)
}

func TestUpdateBenefitsEndpoint(t *testing.T) {
	backend := &fakeBackend{members: []Member{{
		ID:       1,
		Nickname: "Li",
		Benefits: []Entitlement{{Text: "free drink"}},
		Courses:  []Entitlement{{Text: "yoga"}},
	}}}
	router := newTestRouter(t, backend)

	rec, envelope := doRequest(t, router, http.MethodPost, "/api/member/1/benefits", map[string]any{
		"benefits": []map[string]any{{"text": "free drink", "used": true}},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, envelope.Success)
	assert.Equal(t, "benefits updated", envelope.Message)

	backend.mu.Lock()
	assert.True(t, backend.members[0].Benefits[0].Used)
	assert.Equal(t, "yoga", backend.members[0].Courses[0].Text)
	backend.mu.Unlock()
}

func TestMethodNotAllowed(t *testing.T) {
	router := newTestRouter(t, &fakeBackend{})

	for _, tc := range []struct{ method, path string }{
		{http.MethodPut, "/api/member"},
		{http.MethodPost, "/api/members"},
		{http.MethodGet, "/api/member/1/benefits"},
	} {
		rec, envelope := doRequest(t, router, tc.method, tc.path, nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, "%s %s", tc.method, tc.path)
		assert.False(t, envelope.Success)
		assert.Equal(t, "method not allowed", envelope.Message)
	}
}

func TestMalformedBody(t *testing.T) {
	router := newTestRouter(t, &fakeBackend{})

	req := httptest.NewRequest(http.MethodPost, "/api/member", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPersistFailureIsGenericServerError(t *testing.T) {
	backend := &fakeBackend{failSave: true}
	router := newTestRouter(t, backend)

	rec, envelope := doRequest(t, router, http.MethodPost, "/api/member", map[string]any{
		"nickname": "Li",
		"phones":   []string{"13800000001"},
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, envelope.Success)
	assert.Equal(t, "server error", envelope.Message, "internal detail must not leak")
}

func TestValidPhone(t *testing.T) {
	assert.True(t, ValidPhone("13800000001"))
	assert.True(t, ValidPhone("19912345678"))
	assert.False(t, ValidPhone("12800000001"))
	assert.False(t, ValidPhone("1380000000"))
	assert.False(t, ValidPhone("138000000012"))
	assert.False(t, ValidPhone("23800000001"))
	assert.False(t, ValidPhone("1380000000a"))
}
