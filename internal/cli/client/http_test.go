package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIClient_SendsBearerToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	api, err := NewAPIClientWithConfig("frg_"+repeatHex(64), server.URL)
	require.NoError(t, err)

	data, err := api.Get("/api/ai-context/preferences")
	require.NoError(t, err)
	assert.Equal(t, "Bearer frg_"+repeatHex(64), gotAuth)
	assert.JSONEq(t, `{"ok":true}`, string(data))
}

func TestAPIClient_ParsesErrorWithCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"Embedding not found","code":"EMBED_3007"}`))
	}))
	defer server.Close()

	api, err := NewAPIClientWithConfig("frg_"+repeatHex(64), server.URL)
	require.NoError(t, err)

	_, err = api.Delete("/api/embeddings/skill/sk-1")
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "EMBED_3007", apiErr.Code)
	assert.Equal(t, "Embedding not found", apiErr.Message)
	assert.Contains(t, apiErr.Error(), "EMBED_3007")
}

func TestAPIClient_NonJSONError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("bad gateway"))
	}))
	defer server.Close()

	api, err := NewAPIClientWithConfig("frg_"+repeatHex(64), server.URL)
	require.NoError(t, err)

	_, err = api.Get("/health")
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Empty(t, apiErr.Code)
	assert.Equal(t, "bad gateway", apiErr.Message)
}

func TestAPIClient_PostMarshalsBody(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"count":1}`))
	}))
	defer server.Close()

	api, err := NewAPIClientWithConfig("frg_"+repeatHex(64), server.URL)
	require.NoError(t, err)

	_, err = api.Post("/api/embeddings/search", map[string]string{"query": "fire spells"})
	require.NoError(t, err)
	assert.Equal(t, "fire spells", gotBody["query"])
}

func TestNewAPIClientWithCmd_MissingKey(t *testing.T) {
	withTempConfigDir(t)
	t.Setenv(envAPIKey, "")
	t.Setenv(envAPIURL, "")

	_, err := NewAPIClientWithCmd(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), envAPIKey)
}

func TestNewAPIClientWithCmd_EnvFallback(t *testing.T) {
	withTempConfigDir(t)
	t.Setenv(envAPIKey, "frg_"+repeatHex(64))
	t.Setenv(envAPIURL, "")

	api, err := NewAPIClientWithCmd(nil)
	require.NoError(t, err)
	assert.Equal(t, defaultAPIURL, api.baseURL)
}
