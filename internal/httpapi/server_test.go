package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunetree/tunetree/internal/httpapi"
	"github.com/tunetree/tunetree/internal/logging"
	"github.com/tunetree/tunetree/pkg/adapters/memory"
	"github.com/tunetree/tunetree/pkg/hyperparams"
	"github.com/tunetree/tunetree/pkg/metadata"
	"github.com/tunetree/tunetree/pkg/scope"
)

func seededServer(t *testing.T) *httptest.Server {
	t.Helper()
	repo := memory.New(memory.WithLogDir(t.TempDir()))

	round := metadata.NewRound(0)
	trial := metadata.NewTrial(0, hyperparams.Samples{"lr": 0.1})
	trial.Attempt.End(metadata.StatusSuccess, "")
	metadata.MustStore(round, trial)
	require.NoError(t, repo.Save(context.Background(), round, scope.MustNew("proj", "client", 0), true))

	srv := httptest.NewServer(httpapi.NewHandler(repo, logging.NewNop()))
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil
	}
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestHealthz(t *testing.T) {
	srv := seededServer(t)
	code, body := getJSON(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestTreeShallowAndDeep(t *testing.T) {
	srv := seededServer(t)

	code, body := getJSON(t, srv.URL+"/tree?scope=proj/client/0")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Round", body["__type__"])
	assert.Len(t, body["child_ids"], 1)
	assert.NotContains(t, body, "children")

	code, body = getJSON(t, srv.URL+"/tree?scope=proj/client/0&deep=true")
	require.Equal(t, http.StatusOK, code)
	children := body["children"].([]any)
	require.Len(t, children, 1)
	trial := children[0].(map[string]any)
	assert.Equal(t, "Trial", trial["__type__"])
	assert.Equal(t, "SUCCESS", trial["status"])
}

func TestTreeRootAndMissingScope(t *testing.T) {
	srv := seededServer(t)

	code, body := getJSON(t, srv.URL+"/tree")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Root", body["__type__"])

	// A miss is served as an empty stub, mirroring repository semantics.
	code, body = getJSON(t, srv.URL+"/tree?scope=proj/other")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Client", body["__type__"])
	assert.Empty(t, body["child_ids"])
}

func TestTreeRejectsBadScope(t *testing.T) {
	srv := seededServer(t)

	resp, err := http.Get(srv.URL + "/tree?scope=proj/client/notanumber")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := seededServer(t)
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
