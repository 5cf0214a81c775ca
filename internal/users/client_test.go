package users

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_DisplayName(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/users/user-1", r.URL.Path)
		json.NewEncoder(w).Encode(userResponse{ID: "user-1", Name: "Test User"})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	name, err := client.DisplayName(context.Background(), "user-1")

	require.NoError(t, err)
	assert.Equal(t, "Test User", name)
}

func TestClient_DisplayName_EscapesUserID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/users/user%2F..%2Fadmin", r.URL.EscapedPath())
		json.NewEncoder(w).Encode(userResponse{Name: "x"})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.DisplayName(context.Background(), "user/../admin")

	require.NoError(t, err)
}

func TestClient_DisplayName_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.DisplayName(context.Background(), "ghost")

	assert.Error(t, err)
}
