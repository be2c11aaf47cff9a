package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/concord-chat/teamchat/internal/models"
)

type messageList struct {
	Messages []models.Message `json:"messages"`
}

// MessageService wraps the message history endpoint
type MessageService struct {
	doer Doer
}

// NewMessageService creates a message service on top of doer
func NewMessageService(doer Doer) *MessageService {
	return &MessageService{doer: doer}
}

// List fetches a channel's history in server order
func (s *MessageService) List(ctx context.Context, channelID string) ([]models.Message, error) {
	var list messageList
	req := Request{Method: http.MethodGet, Path: "/messages/" + url.PathEscape(channelID)}
	if err := s.doer.Do(ctx, req, &list); err != nil {
		return nil, err
	}

	// Documents that only carry the channel implicitly belong to the requested one
	for i := range list.Messages {
		if list.Messages[i].ChannelID == "" {
			list.Messages[i].ChannelID = channelID
		}
	}
	return list.Messages, nil
}
