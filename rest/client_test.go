package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/octabyte/stash-go/models"
	"github.com/octabyte/stash-go/session"
)

// stubProvider hands out static headers and records forced refreshes.
type stubProvider struct {
	token        string
	refreshCalls int32
	refreshErr   error
	onRefresh    func()
}

func (p *stubProvider) Headers(context.Context) (map[string]string, error) {
	headers := map[string]string{
		"apikey":       "anon-key",
		"Content-Type": "application/json",
	}
	if p.token != "" {
		headers["Authorization"] = "Bearer " + p.token
	}
	return headers, nil
}

func (p *stubProvider) RefreshNow(context.Context) error {
	atomic.AddInt32(&p.refreshCalls, 1)
	if p.onRefresh != nil {
		p.onRefresh()
	}
	return p.refreshErr
}

func newTestClient(t *testing.T, provider HeaderProvider, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(Config{URL: server.URL}, provider)
	require.NoError(t, err)
	return client
}

func TestSelectBuildsQuery(t *testing.T) {
	provider := &stubProvider{token: "tok1"}
	client := newTestClient(t, provider, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rest/v1/saves", r.URL.Path)

		q := r.URL.Query()
		assert.Equal(t, "*", q.Get("select"))
		assert.Equal(t, "eq.folder-1", q.Get("folder_id"))
		assert.Equal(t, "created_at.desc", q.Get("order"))
		assert.Equal(t, "20", q.Get("limit"))
		assert.Equal(t, "Bearer tok1", r.Header.Get("Authorization"))
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))

		w.Write([]byte(`[{"id": "save-1", "url": "https://example.com", "title": "Example"}]`))
	})

	var saves []models.Save
	err := client.Select(context.Background(), "saves", Query{
		Filters: map[string]string{"folder_id": "folder-1"},
		Order:   "created_at.desc",
		Limit:   20,
	}, &saves)
	require.NoError(t, err)

	require.Len(t, saves, 1)
	assert.Equal(t, "save-1", saves[0].ID)
}

func TestInsertSendsPreferHeader(t *testing.T) {
	provider := &stubProvider{token: "tok1"}
	client := newTestClient(t, provider, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))

		var row map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&row))
		assert.Equal(t, "https://example.com", row["url"])

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`[{"id": "save-1", "url": "https://example.com", "title": "Example"}]`))
	})

	var saves []models.Save
	err := client.Insert(context.Background(), "saves", map[string]string{
		"url":   "https://example.com",
		"title": "Example",
	}, &saves)
	require.NoError(t, err)
	require.Len(t, saves, 1)
	assert.Equal(t, "save-1", saves[0].ID)
}

func TestUpdateFiltersByID(t *testing.T) {
	provider := &stubProvider{token: "tok1"}
	client := newTestClient(t, provider, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "eq.save-1", r.URL.Query().Get("id"))
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))

		w.Write([]byte(`[{"id": "save-1", "is_favorite": true}]`))
	})

	var saves []models.Save
	err := client.Update(context.Background(), "saves", "save-1",
		map[string]interface{}{"is_favorite": true}, &saves)
	require.NoError(t, err)
	require.Len(t, saves, 1)
	assert.True(t, saves[0].IsFavorite)
}

func TestDeleteFiltersByID(t *testing.T) {
	provider := &stubProvider{token: "tok1"}
	client := newTestClient(t, provider, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "eq.save-1", r.URL.Query().Get("id"))
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.Delete(context.Background(), "saves", "save-1"))
}

func TestRetriesOnceAfter401(t *testing.T) {
	provider := &stubProvider{token: "expired"}
	provider.onRefresh = func() { provider.token = "tok2" }

	var calls int32
	client := newTestClient(t, provider, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			assert.Equal(t, "Bearer expired", r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message": "JWT expired"}`))
			return
		}
		assert.Equal(t, "Bearer tok2", r.Header.Get("Authorization"))
		w.Write([]byte(`[]`))
	})

	var saves []models.Save
	err := client.Select(context.Background(), "saves", Query{}, &saves)
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&provider.refreshCalls))
}

func TestTransientRefreshFailurePropagates(t *testing.T) {
	provider := &stubProvider{token: "expired", refreshErr: assert.AnError}

	var calls int32
	client := newTestClient(t, provider, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message": "JWT expired"}`))
	})

	err := client.Select(context.Background(), "saves", Query{}, nil)
	require.Error(t, err)

	// A network hiccup during the refresh is not an authorization
	// verdict and must stay distinguishable from a 401.
	require.ErrorIs(t, err, assert.AnError)
	var apiErr *Error
	assert.False(t, errors.As(err, &apiErr))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "failed refresh must not trigger a retry")
}

func TestRejectedRefreshSurfaces401(t *testing.T) {
	provider := &stubProvider{token: "expired", refreshErr: session.ErrRefreshRejected}

	var calls int32
	client := newTestClient(t, provider, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message": "JWT expired"}`))
	})

	err := client.Select(context.Background(), "saves", Query{}, nil)
	require.Error(t, err)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestErrorMessageExtraction(t *testing.T) {
	provider := &stubProvider{token: "tok1"}
	client := newTestClient(t, provider, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"message": "duplicate key value violates unique constraint"}`))
	})

	err := client.Select(context.Background(), "saves", Query{}, nil)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Contains(t, apiErr.Message, "duplicate key")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "valid", cfg: Config{URL: "https://project.supabase.co"}, wantErr: false},
		{name: "missing url", cfg: Config{}, wantErr: true},
		{name: "bad url", cfg: Config{URL: "::"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
