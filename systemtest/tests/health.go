package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpufleet/fleet/internal/api/http/dto"
)

func TestHealthCheck(t *testing.T, baseURL string) {
	status, raw := doJSON(t, http.MethodGet, baseURL+"/health", nil, "")
	require.Equal(t, http.StatusOK, status)

	var resp dto.HealthResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.Equal(t, "ok", resp.Status)
}
