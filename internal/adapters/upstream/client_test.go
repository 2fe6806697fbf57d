package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, UserAgent, r.Header.Get("User-Agent"))
		assert.Equal(t, "secret", r.Header.Get("apiKey"))
		w.Write([]byte(`{"name":"kev"}`))
	}))
	defer server.Close()

	var out struct {
		Name string `json:"name"`
	}
	err := GetJSON(context.Background(), server.Client(), server.URL, map[string]string{"apiKey": "secret"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "kev", out.Name)
}

func TestGet_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := Get(context.Background(), server.Client(), server.URL, nil)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.True(t, se.NotFound())
}

func TestGetJSON_Malformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer server.Close()

	var out map[string]any
	assert.Error(t, GetJSON(context.Background(), server.Client(), server.URL, nil, &out))
}

func TestPostJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		w.Write([]byte(`{"echo":"` + in["q"] + `"}`))
	}))
	defer server.Close()

	var out struct {
		Echo string `json:"echo"`
	}
	err := PostJSON(context.Background(), server.Client(), server.URL, nil, map[string]string{"q": "citrix"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "citrix", out.Echo)
}

func TestPostJSON_StatusDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("  slow down \n"))
	}))
	defer server.Close()

	err := PostJSON(context.Background(), server.Client(), server.URL, nil, struct{}{}, &struct{}{})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "slow down", se.Detail)
	assert.Contains(t, err.Error(), "status 429")
}

func TestStreamJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, UserAgent, r.Header.Get("User-Agent"))
		w.Write([]byte(`{"objects":[{"id":"a"},{"id":"b"}]}`))
	}))
	defer srv.Close()

	var out struct {
		Objects []struct {
			ID string `json:"id"`
		} `json:"objects"`
	}
	require.NoError(t, StreamJSON(context.Background(), srv.Client(), srv.URL, nil, 0, &out))
	assert.Len(t, out.Objects, 2)

	err := StreamJSON(context.Background(), srv.Client(), srv.URL, nil, 10, &out)
	assert.ErrorContains(t, err, "decode", "a truncated body fails to decode")
}

func TestStreamJSON_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	var out map[string]any
	err := StreamJSON(context.Background(), srv.Client(), srv.URL, nil, 0, &out)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusGone, se.Code)
}
