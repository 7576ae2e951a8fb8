package store

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/RoanBrand/mqttc/internal/model"
)

func testStore(t *testing.T, s Store) {
	require.NoError(t, s.AddSubscription("a/+", model.QoS1))
	require.NoError(t, s.AddSubscription("b/#", model.QoS2))
	require.NoError(t, s.AddSubscription("a/+", model.QoS0))
	require.NoError(t, s.RemoveSubscription("b/#"))

	subs := map[string]model.QoS{}
	require.NoError(t, s.Subscriptions(func(topic string, qos model.QoS) { subs[topic] = qos }))
	require.Equal(t, map[string]model.QoS{"a/+": model.QoS0}, subs)

	msg := model.Message{Topic: "t/1", Payload: []byte("hi"), QoS: model.QoS2, Retain: true}
	require.NoError(t, s.PutInbound(7, msg))
	require.NoError(t, s.PutInbound(8, model.Message{Topic: "t/2", Payload: []byte{}, QoS: model.QoS2}))

	ok, err := s.HasInbound(7)
	require.NoError(t, err)
	require.True(t, ok)

	got, ok, err := s.TakeInbound(7)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, msg, got)

	_, ok, err = s.TakeInbound(7)
	require.NoError(t, err)
	require.False(t, ok, "taken only once")

	require.NoError(t, s.ClearInbound())
	ok, err = s.HasInbound(8)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemory(t *testing.T) {
	t.Parallel()

	s := NewMemory()
	defer s.Close()
	testStore(t, s)
}

func TestDisk(t *testing.T) {
	t.Parallel()

	dir, err := ioutil.TempDir("", "mqttc-store")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	s, err := NewDisk(dir)
	require.NoError(t, err)
	testStore(t, s)
	require.NoError(t, s.PutInbound(9, model.Message{Topic: "kept", Payload: []byte("x"), QoS: model.QoS2}))
	require.NoError(t, s.Close())

	// state survives reopening
	s, err = NewDisk(dir)
	require.NoError(t, err)
	defer s.Close()

	got, ok, err := s.TakeInbound(9)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "kept", got.Topic)

	subs := 0
	require.NoError(t, s.Subscriptions(func(string, model.QoS) { subs++ }))
	require.Equal(t, 1, subs)
}

func TestMessageEncoding(t *testing.T) {
	t.Parallel()

	msg := model.Message{Topic: "x/y", Payload: []byte{1, 2, 3}, QoS: model.QoS1, Duplicate: true}
	b, err := encodeMessage(msg)
	require.NoError(t, err)
	got, err := decodeMessage(b)
	require.NoError(t, err)
	require.Equal(t, msg, got)

	_, err = decodeMessage([]byte{0, 1, 0, 5, 'a'})
	require.Error(t, err)
}
