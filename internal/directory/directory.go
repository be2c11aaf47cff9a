/*
Package directory caches the channel list and tracks the active channel.

Activation changes are announced to a single hook, synchronously and one at a
time, so whatever the hook emits (channel leave/join) happens in the order the
changes were made.
*/
package directory

import (
	"context"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/concord-chat/teamchat/internal/api"
	"github.com/concord-chat/teamchat/internal/apperr"
	"github.com/concord-chat/teamchat/internal/logx"
	"github.com/concord-chat/teamchat/internal/models"
)

// ChannelAPI is the REST surface the directory uses
type ChannelAPI interface {
	List(ctx context.Context) ([]models.Channel, error)
	Create(ctx context.Context, req api.CreateChannelRequest) (*models.Channel, error)
	Join(ctx context.Context, id string) error
	Leave(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// UserSource identifies the acting user
type UserSource interface {
	CurrentUserID() string
}

// Evictor forgets cached messages of a removed channel
type Evictor interface {
	Drop(channelID string)
}

// ActivateFunc is called with the previous and next active channel ids.
// Either may be empty.
type ActivateFunc func(prev, next string)

type createForm struct {
	Name        string `validate:"notblank,max=64"`
	Description string `validate:"max=256"`
}

// Directory is the client's view of the channel list
type Directory struct {
	api      ChannelAPI
	users    UserSource
	evictor  Evictor
	validate *validator.Validate
	log      zerolog.Logger

	// activeMu serializes activation changes including the hook call
	activeMu   sync.Mutex
	onActivate ActivateFunc

	mu       sync.RWMutex
	channels []models.Channel
	activeID string
}

// New creates a directory
func New(channels ChannelAPI, users UserSource, evictor Evictor) *Directory {
	return &Directory{
		api:      channels,
		users:    users,
		evictor:  evictor,
		validate: apperr.NewValidator(),
		log:      logx.Component("directory"),
	}
}

// OnActivate installs the activation hook. Set it before the first List.
func (d *Directory) OnActivate(fn ActivateFunc) {
	d.activeMu.Lock()
	defer d.activeMu.Unlock()
	d.onActivate = fn
}

// setActive records next as active and runs the hook. Caller holds activeMu.
func (d *Directory) setActive(next string) {
	d.mu.Lock()
	prev := d.activeID
	if prev == next {
		d.mu.Unlock()
		return
	}
	d.activeID = next
	d.mu.Unlock()

	d.log.Debug().Str("prev", prev).Str("next", next).Msg("active channel changed")
	if d.onActivate != nil {
		d.onActivate(prev, next)
	}
}

// List fetches the channel list. With no active channel the first one becomes
// active; an active channel that disappeared is replaced the same way.
func (d *Directory) List(ctx context.Context) ([]models.Channel, error) {
	channels, err := d.api.List(ctx)
	if err != nil {
		return nil, err
	}

	d.activeMu.Lock()
	defer d.activeMu.Unlock()

	d.mu.Lock()
	d.channels = channels
	next := d.activeID
	if next == "" || !d.hasLocked(next) {
		next = ""
		if len(channels) > 0 {
			next = channels[0].ID
		}
	}
	d.mu.Unlock()

	d.setActive(next)
	return d.Channels(), nil
}

// Create makes a channel, puts it first and activates it
func (d *Directory) Create(ctx context.Context, name, description string) (*models.Channel, error) {
	form := createForm{Name: strings.TrimSpace(name), Description: strings.TrimSpace(description)}
	if err := d.validate.Struct(form); err != nil {
		if strings.TrimSpace(name) == "" {
			return nil, apperr.Validation("directory.create", "Channel name is required")
		}
		return nil, apperr.FromValidator("directory.create", err)
	}

	ch, err := d.api.Create(ctx, api.CreateChannelRequest{Name: form.Name, Description: form.Description})
	if err != nil {
		return nil, err
	}

	d.activeMu.Lock()
	defer d.activeMu.Unlock()

	d.mu.Lock()
	rest := lo.Reject(d.channels, func(c models.Channel, _ int) bool { return c.ID == ch.ID })
	d.channels = append([]models.Channel{*ch}, rest...)
	d.mu.Unlock()

	d.setActive(ch.ID)
	d.log.Info().Str("channel_id", ch.ID).Str("name", ch.Name).Msg("channel created")

	created := *ch
	return &created, nil
}

// Join adds the user to a channel and reloads the list
func (d *Directory) Join(ctx context.Context, id string) error {
	if err := d.api.Join(ctx, id); err != nil {
		return err
	}
	_, err := d.List(ctx)
	return err
}

// Leave removes the user from a channel and reloads the list
func (d *Directory) Leave(ctx context.Context, id string) error {
	if err := d.api.Leave(ctx, id); err != nil {
		return err
	}
	_, err := d.List(ctx)
	return err
}

// Remove deletes a channel. Only its creator may do so; anyone else gets a
// permission error without a request being sent.
func (d *Directory) Remove(ctx context.Context, id string) error {
	ch, ok := d.Get(id)
	if !ok {
		return apperr.New(apperr.KindNotFound, "directory.remove", "Channel not found")
	}
	if !ch.IsCreator(d.users.CurrentUserID()) {
		return apperr.New(apperr.KindPermission, "directory.remove", "Only the channel creator can delete it")
	}

	if err := d.api.Delete(ctx, id); err != nil {
		return err
	}

	d.activeMu.Lock()
	defer d.activeMu.Unlock()

	d.mu.Lock()
	d.channels = lo.Reject(d.channels, func(c models.Channel, _ int) bool { return c.ID == id })
	wasActive := d.activeID == id
	next := ""
	if len(d.channels) > 0 {
		next = d.channels[0].ID
	}
	d.mu.Unlock()

	if d.evictor != nil {
		d.evictor.Drop(id)
	}
	if wasActive {
		d.setActive(next)
	}
	d.log.Info().Str("channel_id", id).Msg("channel deleted")
	return nil
}

// Select makes a cached channel active
func (d *Directory) Select(id string) error {
	d.activeMu.Lock()
	defer d.activeMu.Unlock()

	d.mu.RLock()
	known := d.hasLocked(id)
	d.mu.RUnlock()
	if !known {
		return apperr.New(apperr.KindNotFound, "directory.select", "Channel not found")
	}

	d.setActive(id)
	return nil
}

// Reset forgets the list and deactivates the active channel
func (d *Directory) Reset() {
	d.activeMu.Lock()
	defer d.activeMu.Unlock()

	d.mu.Lock()
	d.channels = nil
	d.mu.Unlock()

	d.setActive("")
}

// IsMember reports whether the current user belongs to the channel
func (d *Directory) IsMember(channelID string) bool {
	ch, ok := d.Get(channelID)
	return ok && ch.HasMember(d.users.CurrentUserID())
}

// Get returns a copy of a cached channel
func (d *Directory) Get(id string) (models.Channel, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return lo.Find(d.channels, func(c models.Channel) bool { return c.ID == id })
}

// Channels returns a copy of the cached list
func (d *Directory) Channels() []models.Channel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]models.Channel(nil), d.channels...)
}

// ActiveID returns the active channel id, or ""
func (d *Directory) ActiveID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.activeID
}

// Active returns the active channel
func (d *Directory) Active() (models.Channel, bool) {
	id := d.ActiveID()
	if id == "" {
		return models.Channel{}, false
	}
	return d.Get(id)
}

func (d *Directory) hasLocked(id string) bool {
	return lo.ContainsBy(d.channels, func(c models.Channel) bool { return c.ID == id })
}
