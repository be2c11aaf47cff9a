package devserver

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/crypto/bcrypt"

	"github.com/concord-chat/teamchat/internal/models"
)

var (
	errNotFound  = errors.New("not found")
	errConflict  = errors.New("already exists")
	errForbidden = errors.New("forbidden")
	errInvalid   = errors.New("invalid credentials")
)

type account struct {
	user models.User
	hash []byte
}

// Store keeps users, channels and messages in memory
type Store struct {
	mu       sync.RWMutex
	accounts map[string]*account // by lower-cased email
	users    map[string]models.User
	channels []*models.Channel
	messages map[string][]models.Message
	refresh  map[string]string // refresh token -> user id
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		accounts: make(map[string]*account),
		users:    make(map[string]models.User),
		messages: make(map[string][]models.Message),
		refresh:  make(map[string]string),
	}
}

// CreateUser registers an account
func (s *Store) CreateUser(username, email, password string) (models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return models.User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(email)
	if _, ok := s.accounts[key]; ok {
		return models.User{}, errConflict
	}
	taken := lo.ContainsBy(lo.Values(s.users), func(u models.User) bool {
		return strings.EqualFold(u.Username, username)
	})
	if taken {
		return models.User{}, errConflict
	}

	u := models.User{ID: uuid.NewString(), Username: username, Email: email}
	s.accounts[key] = &account{user: u, hash: hash}
	s.users[u.ID] = u
	return u, nil
}

// Authenticate checks an email and password
func (s *Store) Authenticate(email, password string) (models.User, error) {
	s.mu.RLock()
	acc, ok := s.accounts[strings.ToLower(email)]
	s.mu.RUnlock()
	if !ok {
		return models.User{}, errInvalid
	}
	if err := bcrypt.CompareHashAndPassword(acc.hash, []byte(password)); err != nil {
		return models.User{}, errInvalid
	}
	return acc.user, nil
}

// User returns a user by id
func (s *Store) User(id string) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok
}

// IssueRefresh creates a refresh token for a user
func (s *Store) IssueRefresh(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := uuid.NewString()
	s.refresh[token] = userID
	return token
}

// RotateRefresh exchanges a refresh token for a new one
func (s *Store) RotateRefresh(token string) (userID, rotated string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.refresh[token]
	if !ok {
		return "", "", errInvalid
	}
	delete(s.refresh, token)
	rotated = uuid.NewString()
	s.refresh[rotated] = userID
	return userID, rotated, nil
}

// Channels lists public channels and private channels the user belongs to
func (s *Store) Channels(userID string) []models.Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()

	visible := lo.Filter(s.channels, func(c *models.Channel, _ int) bool {
		return !c.IsPrivate || c.HasMember(userID)
	})
	return lo.Map(visible, func(c *models.Channel, _ int) models.Channel { return cloneChannel(c) })
}

// Channel returns a channel by id
func (s *Store) Channel(id string) (models.Channel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.find(id)
	if !ok {
		return models.Channel{}, false
	}
	return cloneChannel(c), true
}

// CreateChannel creates a channel owned by user
func (s *Store) CreateChannel(user models.User, name, description string, private bool) (models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lo.ContainsBy(s.channels, func(c *models.Channel) bool { return strings.EqualFold(c.Name, name) }) {
		return models.Channel{}, errConflict
	}

	owner := user
	c := &models.Channel{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		IsPrivate:   private,
		Members:     []models.User{user},
		CreatedBy:   &owner,
	}
	s.channels = append(s.channels, c)
	return cloneChannel(c), nil
}

// Join adds user to a public channel
func (s *Store) Join(user models.User, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.find(channelID)
	if !ok {
		return errNotFound
	}
	if c.HasMember(user.ID) {
		return nil
	}
	if c.IsPrivate {
		return errForbidden
	}
	c.Members = append(c.Members, user)
	return nil
}

// Leave removes user from a channel
func (s *Store) Leave(user models.User, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.find(channelID)
	if !ok {
		return errNotFound
	}
	c.Members = lo.Reject(c.Members, func(m models.User, _ int) bool { return m.ID == user.ID })
	return nil
}

// DeleteChannel removes a channel and its messages. Only the creator may.
func (s *Store) DeleteChannel(user models.User, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.find(channelID)
	if !ok {
		return errNotFound
	}
	if !c.IsCreator(user.ID) {
		return errForbidden
	}
	s.channels = lo.Reject(s.channels, func(c *models.Channel, _ int) bool { return c.ID == channelID })
	delete(s.messages, channelID)
	return nil
}

// Messages returns a channel's history, oldest first
func (s *Store) Messages(channelID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.find(channelID); !ok {
		return nil, errNotFound
	}
	return append([]models.Message{}, s.messages[channelID]...), nil
}

// AddMessage appends a message from a channel member
func (s *Store) AddMessage(user models.User, channelID, content string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.find(channelID)
	if !ok {
		return models.Message{}, errNotFound
	}
	if !c.HasMember(user.ID) {
		return models.Message{}, errForbidden
	}

	m := models.Message{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		Sender:    models.Sender{ID: user.ID, Username: user.Username},
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
	s.messages[channelID] = append(s.messages[channelID], m)
	return m, nil
}

// EditMessage changes a message's content. Only the sender may.
func (s *Store) EditMessage(user models.User, messageID, content string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	channelID, idx, ok := s.locate(messageID)
	if !ok {
		return models.Message{}, errNotFound
	}
	m := &s.messages[channelID][idx]
	if m.Sender.ID != user.ID {
		return models.Message{}, errForbidden
	}
	now := time.Now().UTC()
	m.Content = content
	m.EditedAt = &now
	return *m, nil
}

// DeleteMessage removes a message. The sender and the channel creator may.
func (s *Store) DeleteMessage(user models.User, messageID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	channelID, idx, ok := s.locate(messageID)
	if !ok {
		return "", errNotFound
	}
	c, _ := s.find(channelID)
	if s.messages[channelID][idx].Sender.ID != user.ID && !c.IsCreator(user.ID) {
		return "", errForbidden
	}
	msgs := s.messages[channelID]
	s.messages[channelID] = append(msgs[:idx:idx], msgs[idx+1:]...)
	return channelID, nil
}

func (s *Store) find(id string) (*models.Channel, bool) {
	return lo.Find(s.channels, func(c *models.Channel) bool { return c.ID == id })
}

func (s *Store) locate(messageID string) (string, int, bool) {
	for channelID, msgs := range s.messages {
		for i, m := range msgs {
			if m.ID == messageID {
				return channelID, i, true
			}
		}
	}
	return "", 0, false
}

func cloneChannel(c *models.Channel) models.Channel {
	out := *c
	out.Members = append([]models.User{}, c.Members...)
	if c.CreatedBy != nil {
		owner := *c.CreatedBy
		out.CreatedBy = &owner
	}
	return out
}
