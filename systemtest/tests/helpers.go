// Package tests holds the scenario bodies for the system test suite.
// Each exported function drives the coordinator over real HTTP.
package tests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gpufleet/fleet/internal/api/http/dto"
)

func doJSON(t *testing.T, method, url string, body any, token string) (int, []byte) {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, url, reqBody)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

// operatorToken registers a fresh operator account and logs in.
func operatorToken(t *testing.T, baseURL, username string) string {
	t.Helper()

	status, _ := doJSON(t, http.MethodPost, baseURL+"/auth/register",
		dto.RegisterUserRequest{Username: username, Password: "password123"}, "")
	require.Equal(t, http.StatusCreated, status)

	status, raw := doJSON(t, http.MethodPost, baseURL+"/auth/login",
		dto.LoginRequest{Username: username, Password: "password123"}, "")
	require.Equal(t, http.StatusOK, status, string(raw))

	var resp dto.LoginResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func commandURL(baseURL string, commandID int64) string {
	return fmt.Sprintf("%s/api/v1/commands/%d", baseURL, commandID)
}
