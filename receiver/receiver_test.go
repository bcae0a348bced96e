package receiver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bioc/pathwayPCA/lib/aespca"
	"github.com/bioc/pathwayPCA/lib/datatypes"
	"github.com/bioc/pathwayPCA/lib/pathway"
	"github.com/bioc/pathwayPCA/lib/settings"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer() *httptest.Server {
	runner := pathway.NewRunner(aespca.NewDecomposer(zerolog.Nop()), zerolog.Nop())
	return httptest.NewServer(NewService(runner, settings.NewAESSettings(), zerolog.Nop()).Router())
}

func post(t *testing.T, server *httptest.Server, body string) *http.Response {
	resp, err := http.Post(server.URL+"/api/v1/decompose", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestDecompose(t *testing.T) {
	server := testServer()
	defer server.Close()

	before := testutil.ToFloat64(decompositions.WithLabelValues(string(aespca.StatusIterationLimit)))
	resp := post(t, server, `{
		"jobId": "j1",
		"pathway": "p53",
		"features": ["a", "b", "c"],
		"data": [[1.0, 0.9, 0.1], [-1.0, -1.1, 0.2], [2.0, 1.8, -0.1], [-2.0, -1.9, -0.2]],
		"settings": {"maxIter": 0}
	}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	result := &datatypes.ResultMessage{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(result))
	assert.Equal(t, "j1", result.JobID)
	assert.Equal(t, "p53", result.Pathway)
	assert.Equal(t, aespca.StatusIterationLimit, result.Status)
	assert.Equal(t, []string{"a", "b", "c"}, result.Loadings.RowNames)
	assert.Len(t, result.Scores.Values, 4)

	after := testutil.ToFloat64(decompositions.WithLabelValues(string(aespca.StatusIterationLimit)))
	assert.Equal(t, before+1, after)
}

func TestDecomposeUnusableIsNotAnHTTPError(t *testing.T) {
	server := testServer()
	defer server.Close()

	// Three components of a two-feature matrix.
	resp := post(t, server, `{"data": [[1, 2], [2, 1]], "settings": {"components": 3}}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := &datatypes.ResultMessage{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(result))
	assert.Equal(t, aespca.StatusUnusable, result.Status)
	assert.False(t, result.Usable())
}

func TestDecomposeRejectsMalformed(t *testing.T) {
	server := testServer()
	defer server.Close()

	for name, body := range map[string]string{
		"not json":      `{"data": [[1, 2]`,
		"ragged":        `{"data": [[1, 2], [3]]}`,
		"empty":         `{}`,
		"feature count": `{"features": ["a"], "data": [[1, 2]]}`,
		"settings":      `{"data": [[1, 2]], "settings": {"components": -1}}`,
	} {
		t.Run(name, func(t *testing.T) {
			before := testutil.ToFloat64(rejectedRequests)
			resp := post(t, server, body)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, before+1, testutil.ToFloat64(rejectedRequests))
		})
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	server := testServer()
	defer server.Close()

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(server.URL + "/api/v1/decompose")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestObserveFallback(t *testing.T) {
	before := testutil.ToFloat64(solverFailures)
	Observe(&pathway.Outcome{Result: &aespca.Result{Status: aespca.StatusFallback}})
	Observe(&pathway.Outcome{Pathway: "skipped"})
	assert.Equal(t, before+1, testutil.ToFloat64(solverFailures))
}
