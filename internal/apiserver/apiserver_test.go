package apiserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nucleus/omrs-core/internal/apiserver"
	"github.com/nucleus/omrs-core/internal/collection"
	"github.com/nucleus/omrs-core/internal/events"
	"github.com/nucleus/omrs-core/internal/federator"
	"github.com/nucleus/omrs-core/internal/instance"
	"github.com/nucleus/omrs-core/internal/registry"
	"github.com/nucleus/omrs-core/internal/security"
	"github.com/nucleus/omrs-core/internal/typedefs"
	"github.com/nucleus/omrs-core/internal/validator"
	"github.com/nucleus/omrs-core/internal/wrapper"
)

func newTestServer(t *testing.T) (*http.ServeMux, *wrapper.Wrapper) {
	t.Helper()
	ctx := context.Background()
	reg := typedefs.NewMemoryRegistry()
	require.NoError(t, reg.Add(ctx, &typedefs.TypeDef{GUID: "t1", Name: "Asset", Version: 1, Active: true}))

	store := collection.NewMemoryCollection("local-1", "Local", reg)
	v := validator.New(reg)
	emitter := events.NewEmitter(nil, 10, "drop-oldest", nil)
	t.Cleanup(emitter.Close)
	w := wrapper.New(store, reg, v, security.AllowAllVerifier{}, emitter, "local-1", "Local", false)

	regi := registry.New()
	regi.SetLocalConnector(store)
	f := federator.New(regi, nil, nil)

	s := apiserver.New(f, w, security.AllowAllVerifier{}, nil)
	mux := http.NewServeMux()
	s.Routes(mux)
	return mux, w
}

func TestHealthHandler_ReturnsOK(t *testing.T) {
	mux, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleAddEntity_ThenGetEntity_RoundTrips(t *testing.T) {
	mux, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]any{
		"type":       instance.TypeDefSummary{GUID: "t1", Name: "Asset", Version: 1},
		"properties": map[string]any{"name": "widget"},
		"createdBy":  "alice",
	})
	req := httptest.NewRequest(http.MethodPost, "/entities", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created instance.Entity
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	require.NotEmpty(t, created.GUID)

	getReq := httptest.NewRequest(http.MethodGet, "/entities/"+created.GUID, nil)
	getRec := httptest.NewRecorder()
	mux.ServeHTTP(getRec, getReq)
	assert.Equal(t, http.StatusOK, getRec.Code)
}

func TestHandleEntity_UnknownGUIDReturnsNotFound(t *testing.T) {
	mux, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/entities/missing", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleEntity_EmptyGUIDReturnsBadRequest(t *testing.T) {
	mux, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/entities/", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleEntity_MethodNotAllowed(t *testing.T) {
	mux, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPut, "/entities/e1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleAddEntity_InvalidJSONReturnsBadRequest(t *testing.T) {
	mux, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/entities", bytes.NewReader([]byte("not-json")))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleTypeDef_ByGUID(t *testing.T) {
	mux, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/types/t1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var td typedefs.TypeDef
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&td))
	assert.Equal(t, "Asset", td.Name)
}

func TestHandleEntity_DeleteRemovesLocally(t *testing.T) {
	mux, w := newTestServer(t)
	ctx := context.Background()
	e, err := w.AddEntity(ctx, instance.TypeDefSummary{GUID: "t1", Name: "Asset", Version: 1}, nil, "alice")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodDelete, "/entities/"+e.GUID, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
