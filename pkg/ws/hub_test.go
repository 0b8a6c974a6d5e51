package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_PushReachesAllUserClients(t *testing.T) {
	hub := NewHub()
	a := NewClient(1, nil)
	b := NewClient(1, nil)
	other := NewClient(2, nil)
	hub.Register(a)
	hub.Register(b)
	hub.Register(other)
	assert.Equal(t, 2, hub.Online(1))

	require.NoError(t, hub.PushJSON(1, map[string]string{"op": "send"}))
	assert.Equal(t, `{"op":"send"}`, string(<-a.send))
	assert.Equal(t, `{"op":"send"}`, string(<-b.send))
	assert.Empty(t, other.send)

	assert.False(t, hub.Push(3, []byte("x")))
}

func TestHub_FullClientIsDropped(t *testing.T) {
	hub := NewHub()
	c := NewClient(1, nil)
	hub.Register(c)

	for i := 0; i < sendBuffer; i++ {
		require.True(t, hub.Push(1, []byte("x")))
	}
	assert.False(t, hub.Push(1, []byte("overflow")))
	assert.Equal(t, 0, hub.Online(1))

	// 关闭后重复注销不会 panic
	hub.Unregister(c)
	assert.False(t, c.enqueue([]byte("late")))
}
