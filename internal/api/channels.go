package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/concord-chat/teamchat/internal/models"
)

// CreateChannelRequest is the body of POST /channels
type CreateChannelRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsPrivate   bool   `json:"isPrivate"`
}

// ChannelService wraps the channel endpoints
type ChannelService struct {
	doer Doer
}

// NewChannelService creates a channel service on top of doer
func NewChannelService(doer Doer) *ChannelService {
	return &ChannelService{doer: doer}
}

// List fetches every channel visible to the user
func (s *ChannelService) List(ctx context.Context) ([]models.Channel, error) {
	var channels []models.Channel
	if err := s.doer.Do(ctx, Request{Method: http.MethodGet, Path: "/channels"}, &channels); err != nil {
		return nil, err
	}
	return channels, nil
}

// Create makes a new channel owned by the user
func (s *ChannelService) Create(ctx context.Context, req CreateChannelRequest) (*models.Channel, error) {
	var ch models.Channel
	if err := s.doer.Do(ctx, Request{Method: http.MethodPost, Path: "/channels", Body: req}, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// Join adds the user to a channel's members
func (s *ChannelService) Join(ctx context.Context, id string) error {
	return s.doer.Do(ctx, Request{Method: http.MethodPost, Path: channelPath(id) + "/join"}, nil)
}

// Leave removes the user from a channel's members
func (s *ChannelService) Leave(ctx context.Context, id string) error {
	return s.doer.Do(ctx, Request{Method: http.MethodPost, Path: channelPath(id) + "/leave"}, nil)
}

// Delete removes a channel
func (s *ChannelService) Delete(ctx context.Context, id string) error {
	return s.doer.Do(ctx, Request{Method: http.MethodDelete, Path: channelPath(id)}, nil)
}

func channelPath(id string) string {
	return "/channels/" + url.PathEscape(id)
}
