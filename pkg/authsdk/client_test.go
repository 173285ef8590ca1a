package authsdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientDecodesAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		NewAPIError(http.StatusUnauthorized, ErrorCodeReplayDetected, "counter did not advance").WriteError(w)
	}))
	t.Cleanup(srv.Close)

	_, err := NewClient(srv.URL).FinishAuthentication(context.Background(), FinishAuthenticationRequest{})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusUnauthorized, apiErr.Status)
	require.Equal(t, "counter did not advance", apiErr.Description)
	require.ErrorIs(t, err, &APIError{Code: ErrorCodeReplayDetected})
	require.NotErrorIs(t, err, &APIError{Code: ErrorCodeInvalidToken})
}

func TestClientUnexpectedStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	_, err := NewClient(srv.URL).GetLiveness(context.Background())
	require.ErrorIs(t, err, &APIError{Code: ErrorCodeUnexpectedStatusCode})
}

func TestClientSendsBearerToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.Equal(t, "/v1/register/begin", r.URL.Path)

		var req BeginRegistrationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "auth.example.com", req.Scope)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(RegistrationOptions{Challenge: "abc", Scope: req.Scope, IdentityID: "01J"})
	}))
	t.Cleanup(srv.Close)

	opts, err := NewClient(srv.URL+"/").BeginRegistration(context.Background(), "tok", BeginRegistrationRequest{Scope: "auth.example.com"})
	require.NoError(t, err)
	require.Equal(t, "abc", opts.Challenge)
	require.Equal(t, "01J", opts.IdentityID)
}

func TestClientNoContent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		if r.URL.Path == "/v1/methods/m1/disable" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		NewAPIError(http.StatusConflict, ErrorCodeLastEnabledMethod, "").WriteError(w)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL)
	require.NoError(t, c.SetMethodEnabled(context.Background(), "tok", "m1", false))

	err := c.SetMethodEnabled(context.Background(), "tok", "m2", false)
	require.ErrorIs(t, err, &APIError{Code: ErrorCodeLastEnabledMethod})
	require.Equal(t, "last_enabled_method", err.Error())
}
