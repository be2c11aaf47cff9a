package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/concord-chat/teamchat/internal/apperr"
	"github.com/concord-chat/teamchat/internal/models"
)

// AuthResponse is returned by login and signup
type AuthResponse struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	User         *models.User `json:"user"`
}

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// AuthClient calls the credential endpoints. They never carry an access token.
type AuthClient struct {
	client *Client
}

// NewAuthClient creates the auth endpoint client
func NewAuthClient(client *Client) *AuthClient {
	return &AuthClient{client: client}
}

// Login exchanges credentials for a session
func (a *AuthClient) Login(ctx context.Context, email, password string) (*models.Session, error) {
	var resp AuthResponse
	err := a.client.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/auth/login",
		Body:   map[string]string{"email": email, "password": password},
	}, &resp)
	if err != nil {
		// Never tell the user which of email or password was wrong
		var e *apperr.Error
		if errors.As(err, &e) && e.Status >= 400 && e.Status < 500 {
			return nil, apperr.New(apperr.KindAuthentication, "auth.login", "")
		}
		return nil, err
	}
	return resp.session("auth.login")
}

// Signup registers an account and returns its session
func (a *AuthClient) Signup(ctx context.Context, username, email, password string) (*models.Session, error) {
	var resp AuthResponse
	err := a.client.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/auth/signup",
		Body:   map[string]string{"username": username, "email": email, "password": password},
	}, &resp)
	if err != nil {
		var e *apperr.Error
		if errors.As(err, &e) && (e.Status == http.StatusBadRequest || e.Status == http.StatusConflict || e.Status == http.StatusUnprocessableEntity) {
			return nil, &apperr.Error{Kind: apperr.KindValidation, Op: "auth.signup", Message: e.Message, Status: e.Status}
		}
		return nil, err
	}
	return resp.session("auth.signup")
}

// Refresh exchanges a refresh token for a new access token. The returned
// refresh token is empty when the server does not rotate it.
func (a *AuthClient) Refresh(ctx context.Context, refreshToken string) (string, string, error) {
	var resp refreshResponse
	err := a.client.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/auth/refresh",
		Body:   map[string]string{"refreshToken": refreshToken},
	}, &resp)
	if err != nil {
		var e *apperr.Error
		if errors.As(err, &e) && e.Status >= 400 && e.Status < 500 {
			return "", "", &apperr.Error{Kind: apperr.KindSessionExpired, Op: "auth.refresh", Status: e.Status}
		}
		return "", "", err
	}
	if resp.AccessToken == "" {
		return "", "", apperr.New(apperr.KindSessionExpired, "auth.refresh", "")
	}
	return resp.AccessToken, resp.RefreshToken, nil
}

func (r *AuthResponse) session(op string) (*models.Session, error) {
	if r.AccessToken == "" || r.User == nil {
		return nil, apperr.New(apperr.KindServer, op, "The server sent an incomplete sign-in response.")
	}
	return &models.Session{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		User:         r.User,
	}, nil
}
