package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reposcope/internal/core"
)

func TestOAuthState_RoundTrip(t *testing.T) {
	o := NewOAuth("http://unused", "id", "secret", "state-secret", nil)

	state, err := o.NewState()
	require.NoError(t, err)
	assert.NoError(t, o.VerifyState(state))

	other := NewOAuth("http://unused", "id", "secret", "different-secret", nil)
	assert.ErrorIs(t, other.VerifyState(state), core.ErrAuthInvalid)

	assert.ErrorIs(t, o.VerifyState("garbage"), core.ErrAuthInvalid)
}

func TestExchangeCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			require.NoError(t, r.ParseForm())
			if r.Form.Get("code") != "good-code" {
				json.NewEncoder(w).Encode(map[string]string{"error": "bad_verification_code"})
				return
			}
			assert.Equal(t, "id", r.Form.Get("client_id"))
			json.NewEncoder(w).Encode(map[string]string{"access_token": "gho_issued"})
		case "/user":
			assert.Equal(t, "Bearer gho_issued", r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode(map[string]string{"login": "octo"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	api := NewClient(srv.URL, 5*time.Second, 100)
	o := NewOAuth(srv.URL+"/oauth/token", "id", "secret", "state-secret", api)

	token, user, err := o.ExchangeCode(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, "gho_issued", token)
	assert.Equal(t, "octo", user.Login)

	_, _, err = o.ExchangeCode(context.Background(), "bad-code")
	assert.ErrorIs(t, err, core.ErrAuthInvalid)
}
