package store

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concord-chat/teamchat/internal/models"
)

func msg(id string) models.Message {
	return models.Message{
		ID:        id,
		ChannelID: "c1",
		Sender:    models.Sender{ID: "u1", Username: "ann"},
		Content:   "content " + id,
		Timestamp: time.Unix(0, 0),
	}
}

func ids(msgs []models.Message) []string {
	return lo.Map(msgs, func(m models.Message, _ int) string { return m.ID })
}

func TestSnapshotThenInsert(t *testing.T) {
	s := New(0)
	s.LoadSnapshot("c1", []models.Message{msg("A"), msg("B")})
	s.ApplyInsert(msg("C"))

	assert.Equal(t, []string{"A", "B", "C"}, ids(s.Messages("c1")))
}

func TestInsertIsIdempotent(t *testing.T) {
	s := New(0)
	assert.True(t, s.ApplyInsert(msg("A")))
	assert.False(t, s.ApplyInsert(msg("A")))

	assert.Equal(t, []string{"A"}, ids(s.Messages("c1")))
}

func TestUpdateKeepsPosition(t *testing.T) {
	s := New(0)
	s.LoadSnapshot("c1", []models.Message{msg("A"), msg("B")})

	edited := time.Unix(100, 0)
	b := msg("B")
	b.Content = "changed"
	b.EditedAt = &edited
	b.Sender = models.Sender{ID: "intruder"}
	require.True(t, s.ApplyUpdate(b))

	got := s.Messages("c1")
	assert.Equal(t, []string{"A", "B"}, ids(got))
	assert.Equal(t, "changed", got[1].Content)
	assert.True(t, got[1].IsEdited())
	assert.Equal(t, "u1", got[1].Sender.ID)
}

func TestUpdateUnknownIsNoop(t *testing.T) {
	s := New(0)
	s.LoadSnapshot("c1", []models.Message{msg("A")})

	assert.False(t, s.ApplyUpdate(msg("Z")))
	assert.Equal(t, []string{"A"}, ids(s.Messages("c1")))
}

func TestUpdateWithoutChannelSearches(t *testing.T) {
	s := New(0)
	s.LoadSnapshot("c1", []models.Message{msg("A")})

	u := msg("A")
	u.ChannelID = ""
	u.Content = "found"
	require.True(t, s.ApplyUpdate(u))

	m, ok := s.Get("c1", "A")
	require.True(t, ok)
	assert.Equal(t, "found", m.Content)
}

func TestDelete(t *testing.T) {
	s := New(0)
	s.LoadSnapshot("c1", []models.Message{msg("A"), msg("B")})

	assert.True(t, s.ApplyDelete("c1", "B"))
	assert.Equal(t, []string{"A"}, ids(s.Messages("c1")))

	assert.False(t, s.ApplyDelete("c1", "B"))
	assert.Equal(t, []string{"A"}, ids(s.Messages("c1")))

	assert.True(t, s.ApplyDelete("", "A"))
	assert.Empty(t, s.Messages("c1"))
}

func TestSnapshotReplacesAndDedupes(t *testing.T) {
	s := New(0)
	s.LoadSnapshot("c1", []models.Message{msg("A"), msg("B")})

	first := msg("C")
	dup := msg("C")
	dup.Content = "second copy"
	s.LoadSnapshot("c1", []models.Message{first, msg("D"), dup})

	got := s.Messages("c1")
	assert.Equal(t, []string{"C", "D"}, ids(got))
	assert.Equal(t, "content C", got[0].Content)
}

func TestChannelsAreIsolated(t *testing.T) {
	s := New(0)
	other := msg("A")
	other.ChannelID = "c2"

	s.ApplyInsert(msg("A"))
	s.ApplyInsert(other)
	s.ApplyDelete("c1", "A")

	assert.Empty(t, s.Messages("c1"))
	assert.Equal(t, []string{"A"}, ids(s.Messages("c2")))
}

func TestMessagesReturnsCopy(t *testing.T) {
	s := New(0)
	s.ApplyInsert(msg("A"))

	got := s.Messages("c1")
	got[0].Content = "mutated"

	m, _ := s.Get("c1", "A")
	assert.Equal(t, "content A", m.Content)
}

func TestDropAndReset(t *testing.T) {
	s := New(0)
	var changed []string
	s.OnChange(func(id string) { changed = append(changed, id) })

	s.ApplyInsert(msg("A"))
	s.Drop("c1")
	assert.Empty(t, s.Messages("c1"))

	other := msg("B")
	other.ChannelID = "c2"
	s.ApplyInsert(other)
	s.Reset()
	assert.Empty(t, s.Messages("c2"))

	assert.Equal(t, []string{"c1", "c1", "c2", "c2"}, changed)
}

func TestLimitTrimsOldest(t *testing.T) {
	s := New(4)
	for i := 0; i < 5; i++ {
		s.ApplyInsert(msg(fmt.Sprint(i)))
	}
	assert.Equal(t, []string{"3", "4"}, ids(s.Messages("c1")))

	_, ok := s.Get("c1", "4")
	assert.True(t, ok)
}

// Random operation sequences must leave unique ids in their original
// relative order.
func TestRandomOperationsKeepOrderAndUniqueness(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	s := New(0)

	for round := 0; round < 2000; round++ {
		id := fmt.Sprint(rng.Intn(50))
		switch rng.Intn(3) {
		case 0:
			s.ApplyInsert(msg(id))
		case 1:
			u := msg(id)
			u.Content = fmt.Sprint("edit ", round)
			s.ApplyUpdate(u)
		case 2:
			s.ApplyDelete("c1", id)
		}

		got := ids(s.Messages("c1"))
		require.Len(t, lo.Uniq(got), len(got))
	}

	// Surviving ids keep the order they were inserted in
	before := ids(s.Messages("c1"))
	s.ApplyInsert(msg("new"))
	for _, id := range before[:len(before)/2] {
		s.ApplyDelete("c1", id)
	}
	after := ids(s.Messages("c1"))
	assert.Equal(t, append(before[len(before)/2:], "new"), after)
}
