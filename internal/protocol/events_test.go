package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFrame_Encoding(t *testing.T) {
	f, err := NewFrame(EventMessageSend, SendPayload{ChannelID: "c1", Content: "hi", Nonce: "n1"})
	require.NoError(t, err)

	data, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"message:send","data":{"channelId":"c1","content":"hi","nonce":"n1"}}`, string(data))
}

func TestNewFrame_ChannelIDIsBareString(t *testing.T) {
	f, err := NewFrame(EventChannelJoin, "c9")
	require.NoError(t, err)
	assert.Equal(t, `"c9"`, string(f.Data))
}

func TestFrame_Decode(t *testing.T) {
	var f Frame
	require.NoError(t, json.Unmarshal([]byte(`{"event":"message:deleted","data":{"channelId":"c1","messageId":"m2"}}`), &f))
	assert.Equal(t, EventMessageDeleted, f.Event)

	var p DeletedPayload
	require.NoError(t, f.Decode(&p))
	assert.Equal(t, DeletedPayload{ChannelID: "c1", MessageID: "m2"}, p)
}
