package client

import (
	"fmt"
	"time"

	"github.com/spf13/afero"

	"github.com/concord-chat/teamchat/internal/api"
	"github.com/concord-chat/teamchat/internal/config"
	"github.com/concord-chat/teamchat/internal/realtime"
	"github.com/concord-chat/teamchat/internal/session"
)

// maxMessagesPerChannel caps each loaded channel's history
const maxMessagesPerChannel = 1000

// DepsFromConfig builds production dependencies. The returned func releases
// the token store.
func DepsFromConfig(cfg *config.Config) (Deps, func(), error) {
	tokens, closeTokens, err := OpenTokenStore(cfg.Session)
	if err != nil {
		return Deps{}, nil, err
	}

	socketURL, err := cfg.SocketURL()
	if err != nil {
		closeTokens()
		return Deps{}, nil, err
	}

	rest := api.NewClient(cfg.APIBaseURL(), cfg.Timeout())
	rc := cfg.Realtime

	return Deps{
		Auth:   api.NewAuthClient(rest),
		Sender: rest,
		Tokens: tokens,
		Dialer: realtime.NewWebSocketDialer(socketURL),
		Realtime: realtime.Options{
			Reconnect: &realtime.ReconnectStrategy{
				MaxRetries:    rc.ReconnectMaxRetries,
				InitialDelay:  time.Duration(rc.ReconnectInitialMs) * time.Millisecond,
				MaxDelay:      time.Duration(rc.ReconnectMaxMs) * time.Millisecond,
				BackoffFactor: 2.0,
			},
			SendRate:  rc.SendRate,
			SendBurst: rc.SendBurst,
		},
		RefreshSkew:  cfg.RefreshSkew(),
		MessageLimit: maxMessagesPerChannel,
	}, closeTokens, nil
}

// OpenTokenStore opens the configured session backend
func OpenTokenStore(cfg config.SessionConfig) (session.TokenStore, func(), error) {
	switch cfg.Backend {
	case "memory":
		return session.NewMemoryStore(), func() {}, nil
	case "sqlite":
		s, err := session.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	case "file", "":
		return session.NewFileStore(afero.NewOsFs(), cfg.Path, cfg.Passphrase), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}
