package httputil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/karstnet/karst/testing/assert"
	"github.com/karstnet/karst/testing/require"
)

func TestWriteJson(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJson(rec, map[string]interface{}{"ok": true, "count": 3})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, float64(3), body["count"])
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, &ErrorJson{Err: "invalid_sats", Detail: "sats must be positive", Code: http.StatusUnprocessableEntity})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid_sats", body["error"])
	assert.Equal(t, "sats must be positive", body["detail"])
}

func TestWriteError_DefaultsTo500(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, &ErrorJson{Err: "internal_error"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	// Empty detail stays out of the body.
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	_, hasDetail := body["detail"]
	assert.Equal(t, false, hasDetail)
}

func TestHandleError(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleError(rec, "not_found", "no such pin", http.StatusNotFound)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "no such pin", body["detail"])
}

func TestDecodeJson(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/payreq", bytes.NewBufferString(`{"sats": 500, "event_hash": "ab"}`))
	var parsed struct {
		Sats      int64  `json:"sats"`
		EventHash string `json:"event_hash"`
	}
	require.NoError(t, DecodeJson(req, &parsed))
	assert.Equal(t, int64(500), parsed.Sats)
	assert.Equal(t, "ab", parsed.EventHash)

	req = httptest.NewRequest(http.MethodPost, "/payreq", bytes.NewBufferString("{nope"))
	require.NotNil(t, DecodeJson(req, &parsed))
}
