package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/reposcope/internal/core"
	"github.com/reposcope/pkg/models"
)

// OAuth exchanges GitHub OAuth authorization codes for user access tokens
// and signs the state parameter used to tie the dance to this server.
type OAuth struct {
	tokenURL     string
	clientID     string
	clientSecret string
	stateSecret  []byte
	httpClient   *http.Client
	api          *Client
}

// NewOAuth builds the OAuth helper. tokenURL is GitHub's access_token
// endpoint; api is used to fetch the user after exchange.
func NewOAuth(tokenURL, clientID, clientSecret, stateSecret string, api *Client) *OAuth {
	return &OAuth{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		stateSecret:  []byte(stateSecret),
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		api:          api,
	}
}

// NewState issues a signed, short-lived state token for the OAuth
// redirect.
func (o *OAuth) NewState() (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    "reposcope",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(10 * time.Minute)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(o.stateSecret)
}

// VerifyState checks a state token returned by the OAuth redirect.
func (o *OAuth) VerifyState(state string) error {
	_, err := jwt.ParseWithClaims(state, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return o.stateSecret, nil
	})
	if err != nil {
		return fmt.Errorf("%w: bad oauth state: %v", core.ErrAuthInvalid, err)
	}
	return nil
}

// ExchangeCode trades an authorization code for an access token and
// returns it with the authenticated user.
func (o *OAuth) ExchangeCode(ctx context.Context, code string) (string, *models.User, error) {
	form := url.Values{
		"client_id":     {o.clientID},
		"client_secret": {o.clientSecret},
		"code":          {code},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", nil, wrapTransport(err)
	}
	defer resp.Body.Close()

	var tokenData struct {
		AccessToken      string `json:"access_token"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenData); err != nil {
		return "", nil, fmt.Errorf("decoding token response: %w", err)
	}
	if tokenData.AccessToken == "" {
		return "", nil, fmt.Errorf("%w: oauth exchange failed: %s %s",
			core.ErrAuthInvalid, tokenData.Error, tokenData.ErrorDescription)
	}

	user, err := o.api.ValidateToken(ctx, tokenData.AccessToken)
	if err != nil {
		return "", nil, err
	}
	return tokenData.AccessToken, user, nil
}
