/*
Package gateway sends authenticated REST calls.

Every call carries the current access token. A 401 triggers exactly one
refresh and one retry; a second 401 ends the session.
*/
package gateway

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/concord-chat/teamchat/internal/api"
	"github.com/concord-chat/teamchat/internal/apperr"
	"github.com/concord-chat/teamchat/internal/logx"
)

// Sender performs a request with an explicit bearer token
type Sender interface {
	Send(ctx context.Context, req api.Request, token string, out interface{}) error
}

// TokenSource is the part of the session manager the gateway needs
type TokenSource interface {
	AccessToken() string
	Refresh(ctx context.Context) error
	Logout()
}

// Gateway implements api.Doer with transparent token refresh
type Gateway struct {
	client Sender
	tokens TokenSource
	log    zerolog.Logger
}

// New creates a gateway
func New(client Sender, tokens TokenSource) *Gateway {
	return &Gateway{
		client: client,
		tokens: tokens,
		log:    logx.Component("gateway"),
	}
}

// Do sends req and decodes the response into out
func (g *Gateway) Do(ctx context.Context, req api.Request, out interface{}) error {
	token := g.tokens.AccessToken()
	if token == "" {
		return apperr.New(apperr.KindSessionExpired, "gateway", "")
	}

	err := g.client.Send(ctx, req, token, out)
	if !errors.Is(err, apperr.ErrUnauthorized) {
		return err
	}

	// Another call may have refreshed while this one was in flight
	current := g.tokens.AccessToken()
	if current == "" || current == token {
		g.log.Debug().Str("path", req.Path).Msg("access token rejected, refreshing")
		if err := g.tokens.Refresh(ctx); err != nil {
			return g.refreshFailed(err)
		}
		current = g.tokens.AccessToken()
	}

	err = g.client.Send(ctx, req, current, out)
	if errors.Is(err, apperr.ErrUnauthorized) {
		g.log.Warn().Str("path", req.Path).Msg("token rejected after refresh, signing out")
		g.tokens.Logout()
		return apperr.Wrap(apperr.KindSessionExpired, "gateway", err)
	}
	return err
}

func (g *Gateway) refreshFailed(err error) error {
	// Refresh has already signed the user out
	if errors.Is(err, apperr.ErrSessionExpired) {
		return err
	}
	// The caller gave up waiting; the shared exchange carries on
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.KindTransport, "gateway", err)
	}
	g.tokens.Logout()
	return apperr.Wrap(apperr.KindSessionExpired, "gateway", err)
}
