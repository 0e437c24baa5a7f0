package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/peterldowns/testy/assert"
)

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, r.Method, http.MethodPost)
		assert.Equal(t, r.URL.Path, "/orders")
		assert.Equal(t, r.Header.Get("Content-Type"), "application/json;charset=UTF-8")
		assert.Equal(t, r.Header.Get("X-Default"), "yes")
		assert.Equal(t, r.Header.Get("api-id"), "kt10000")
		b, _ := io.ReadAll(r.Body)
		assert.Equal(t, string(b), `{"qty":"98"}`)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(
		WithBaseURL(srv.URL),
		WithHeader("X-Default", "yes"),
		WithHeader("Content-Type", "application/json;charset=UTF-8"),
		WithLogging(true),
	)
	resp, err := c.PostJSON(context.Background(), "/orders", map[string]string{"qty": "98"},
		map[string]string{"api-id": "kt10000"})
	assert.NoError(t, err)
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	assert.Equal(t, string(resp.Body), `{"ok":true}`)
}

func TestPostJSONStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "token expired", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	_, err := c.PostJSON(context.Background(), "/orders", struct{}{}, nil)

	var se *StatusError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, se.StatusCode, http.StatusUnauthorized)
	assert.Equal(t, se.Path, "/orders")
}
