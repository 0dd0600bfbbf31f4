package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, setup func(r chi.Router)) *Client {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/v1/user/jwt", func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Query().Get("api_key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"token": "jwt-1"})
	})
	setup(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", "secret")
}

func requireBearer(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Authorization") != "Bearer jwt-1" {
		w.WriteHeader(http.StatusUnauthorized)
		return false
	}
	return true
}

func TestNew_TrimsBaseURL(t *testing.T) {
	c := New("https://example.com/api/", "k")
	assert.Equal(t, "https://example.com/api", c.BaseURL())

	c = New("", "k")
	assert.Equal(t, DefaultBaseURL, c.BaseURL())
}

func TestClient_ReportURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"https://cloud.marathonlabs.io/api", "https://cloud.marathonlabs.io/report/r1"},
		{"http://localhost:8080/api/v1", "http://localhost:8080/report/r1"},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.base, "k").ReportURL("r1"))
		})
	}
}

func TestClient_Authenticate(t *testing.T) {
	var calls atomic.Int32
	c := newTestServer(t, func(r chi.Router) {})
	c.tokens.fetch = func(ctx context.Context) (string, error) {
		calls.Add(1)
		return c.fetchToken(ctx)
	}

	token, err := c.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "jwt-1", token)

	_, err = c.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load(), "token should be cached")
}

func TestClient_Authenticate_BadKey(t *testing.T) {
	c := newTestServer(t, func(r chi.Router) {})
	c.apiKey = "wrong"

	_, err := c.Authenticate(context.Background())
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.NotContains(t, err.Error(), "wrong", "api key must not leak into errors")
}

func TestClient_CreateRun(t *testing.T) {
	var got CreateRunRequest
	c := newTestServer(t, func(r chi.Router) {
		r.Post("/v2/run", func(w http.ResponseWriter, req *http.Request) {
			assert.NotEmpty(t, req.Header.Get(requestIDHeader))
			assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(req.Body).Decode(&got))
			json.NewEncoder(w).Encode(map[string]string{"run_id": "run-42", "status": "queued"})
		})
	})

	isolated := true
	id, err := c.CreateRun(context.Background(), &CreateRunRequest{
		Platform:    "Android",
		TestAppPath: "s3://t",
		AppPath:     "s3://a",
		Isolated:    &isolated,
		EnvArgs:     map[string]string{"A": "1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "run-42", id)
	assert.Equal(t, "Android", got.Platform)
	assert.Equal(t, "s3://t", got.TestAppPath)
	require.NotNil(t, got.Isolated)
	assert.True(t, *got.Isolated)
	assert.Equal(t, "1", got.EnvArgs["A"])
}

func TestClient_CreateRun_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"unauthorized", http.StatusUnauthorized, "denied", ErrUnauthorized},
		{"forbidden", http.StatusForbidden, "", ErrUnauthorized},
		{"server error", http.StatusInternalServerError, "boom", ErrUnexpectedStatus},
		{"bad json", http.StatusOK, "{not json", ErrDeserialization},
		{"empty id", http.StatusOK, `{"status":"queued"}`, ErrDeserialization},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestServer(t, func(r chi.Router) {
				r.Post("/v2/run", func(w http.ResponseWriter, _ *http.Request) {
					w.WriteHeader(tt.status)
					w.Write([]byte(tt.body))
				})
			})
			_, err := c.CreateRun(context.Background(), &CreateRunRequest{Platform: "iOS"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			var rerr *RequestError
			require.ErrorAs(t, err, &rerr)
			assert.Equal(t, "create run", rerr.Op)
			if tt.status != http.StatusOK {
				assert.Equal(t, tt.status, rerr.StatusCode)
				assert.Equal(t, tt.body, rerr.Body)
			}
		})
	}
}

func TestClient_GetRun(t *testing.T) {
	c := newTestServer(t, func(r chi.Router) {
		r.Get("/v1/run/{id}", func(w http.ResponseWriter, req *http.Request) {
			assert.Equal(t, "r1", chi.URLParam(req, "id"))
			assert.Equal(t, "secret", req.URL.Query().Get("api_key"))
			w.Write([]byte(`{"id":"r1","state":"passed","passed":3,"failed":0,"ignored":1,
				"completed":"2024-05-01T10:00:00Z","total_run_time":61.5}`))
		})
	})

	run, err := c.GetRun(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, StatePassed, run.State)
	assert.True(t, run.IsTerminal())
	require.NotNil(t, run.Passed)
	assert.Equal(t, 3, *run.Passed)
	assert.Equal(t, 61500, int(run.RunTime().Milliseconds()))
}

func TestTestRun_IsTerminal(t *testing.T) {
	assert.False(t, (*TestRun)(nil).IsTerminal())
	assert.False(t, (&TestRun{State: StateRunning}).IsTerminal())
	assert.Equal(t, int64(0), (&TestRun{}).RunTime().Nanoseconds())
}

func TestClient_ListArtifacts(t *testing.T) {
	c := newTestServer(t, func(r chi.Router) {
		r.Get("/v1/artifact/*", func(w http.ResponseWriter, req *http.Request) {
			if !requireBearer(w, req) {
				return
			}
			assert.Equal(t, "r1/tests", chi.URLParam(req, "*"))
			w.Write([]byte(`[{"id":"r1/tests/a.xml","name":"a.xml","is_file":true},
				{"id":"r1/tests/sub","name":"sub","is_file":false}]`))
		})
	})

	arts, err := c.ListArtifacts(context.Background(), "r1/tests")
	require.NoError(t, err)
	require.Len(t, arts, 2)
	assert.True(t, arts[0].IsFile)
	assert.Equal(t, "r1/tests/sub", arts[1].ID)
}

func TestClient_DoBearer_RefreshesTokenOn401(t *testing.T) {
	var tokenCalls, listCalls atomic.Int32
	r := chi.NewRouter()
	r.Get("/v1/user/jwt", func(w http.ResponseWriter, _ *http.Request) {
		n := tokenCalls.Add(1)
		tok := "stale"
		if n > 1 {
			tok = "fresh"
		}
		json.NewEncoder(w).Encode(map[string]string{"token": tok})
	})
	r.Get("/v1/artifact/*", func(w http.ResponseWriter, req *http.Request) {
		listCalls.Add(1)
		if req.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`[]`))
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	c := New(srv.URL, "k")
	arts, err := c.ListArtifacts(context.Background(), "r1")
	require.NoError(t, err)
	assert.Empty(t, arts)
	assert.Equal(t, int32(2), tokenCalls.Load())
	assert.Equal(t, int32(2), listCalls.Load())
}

func TestClient_DoBearer_GivesUpAfterOneRefresh(t *testing.T) {
	c := newTestServer(t, func(r chi.Router) {
		r.Get("/v1/artifact/*", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
	})
	_, err := c.ListArtifacts(context.Background(), "r1")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestClient_DownloadArtifact(t *testing.T) {
	c := newTestServer(t, func(r chi.Router) {
		r.Get("/v1/artifact", func(w http.ResponseWriter, req *http.Request) {
			if !requireBearer(w, req) {
				return
			}
			assert.Equal(t, "r1/logs/x.log", req.URL.Query().Get("key"))
			w.Write([]byte("log content"))
		})
	})

	rc, err := c.DownloadArtifact(context.Background(), "r1/logs/x.log")
	require.NoError(t, err)
	defer rc.Close()
	buf := make([]byte, 64)
	n, _ := rc.Read(buf)
	assert.Equal(t, "log content", string(buf[:n]))
}

func TestClient_Devices(t *testing.T) {
	c := newTestServer(t, func(r chi.Router) {
		r.Get("/v1/devices/android", func(w http.ResponseWriter, req *http.Request) {
			if !requireBearer(w, req) {
				return
			}
			w.Write([]byte(`[{"id":"pixel-6","name":"Pixel 6","manufacturer":"Google","width":1080,"height":2400,"dpi":411}]`))
		})
	})

	devices, err := c.Devices(context.Background(), "android")
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "Pixel 6", devices[0].Name)

	_, err = c.Devices(context.Background(), "ios")
	assert.Error(t, err)
}

func TestEscapePath(t *testing.T) {
	assert.Equal(t, "r1/dir%20a/b%3F", escapePath("r1/dir a/b?"))
}
