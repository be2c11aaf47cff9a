//go:generate go run go.uber.org/mock/mockgen -source=auth.go -destination=../mocks/mock_auth_api.go -package=mocks
package session

import (
	"context"

	"github.com/concord-chat/teamchat/internal/models"
)

// AuthAPI is the server side of the credential exchange
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (*models.Session, error)
	Signup(ctx context.Context, username, email, password string) (*models.Session, error)
	// Refresh returns a new access token and, when the server rotates it, a
	// new refresh token. An empty refresh token keeps the current one.
	Refresh(ctx context.Context, refreshToken string) (string, string, error)
}
