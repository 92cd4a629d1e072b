package subscription

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "notibot/pkg/logx"
)

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "subscriptions.json")
	return NewRegistry(path, logx.Nop()), path
}

func TestSubscribeIdempotent(t *testing.T) {
	t.Parallel()
	r, _ := newTestRegistry(t)

	require.True(t, r.Subscribe(42, TopicSystem))
	require.True(t, r.Subscribe(42, TopicSystem))

	assert.Equal(t, []Topic{TopicSystem}, r.Subscriptions(42))
}

func TestSubscribeInvalidTopic(t *testing.T) {
	t.Parallel()
	r, _ := newTestRegistry(t)

	require.True(t, r.Subscribe(1, TopicErrors))
	assert.False(t, r.Subscribe(1, Topic("not_a_real_topic")))
	assert.Equal(t, []Topic{TopicErrors}, r.Subscriptions(1))
}

func TestUnsubscribeLastTopicRemovesUser(t *testing.T) {
	t.Parallel()
	r, _ := newTestRegistry(t)

	r.Subscribe(7, TopicSystem)
	r.Subscribe(7, TopicEvents)

	require.True(t, r.Unsubscribe(7, TopicSystem))
	_, stillThere := r.All()[7]
	require.True(t, stillThere)

	require.True(t, r.Unsubscribe(7, TopicEvents))
	_, stillThere = r.All()[7]
	assert.False(t, stillThere, "user key must disappear with its last topic")
}

func TestUnsubscribeNotSubscribed(t *testing.T) {
	t.Parallel()
	r, _ := newTestRegistry(t)

	assert.False(t, r.Unsubscribe(5, TopicSystem))
	r.Subscribe(5, TopicSystem)
	assert.False(t, r.Unsubscribe(5, TopicErrors))
	assert.False(t, r.Unsubscribe(5, Topic("bogus")))
}

func TestSubscribersAndIsSubscribed(t *testing.T) {
	t.Parallel()
	r, _ := newTestRegistry(t)

	r.Subscribe(3, TopicSystem)
	r.Subscribe(1, TopicSystem)
	r.Subscribe(2, TopicErrors)

	assert.Equal(t, []int64{1, 3}, r.Subscribers(TopicSystem))
	assert.True(t, r.IsSubscribed(2, TopicErrors))
	assert.False(t, r.IsSubscribed(2, TopicSystem))
}

func TestRemoveUser(t *testing.T) {
	t.Parallel()
	r, _ := newTestRegistry(t)

	r.Subscribe(9, TopicSystem)
	r.Subscribe(9, TopicScheduled)

	require.True(t, r.RemoveUser(9))
	assert.False(t, r.RemoveUser(9))
	assert.Empty(t, r.Subscriptions(9))
}

func TestStats(t *testing.T) {
	t.Parallel()
	r, _ := newTestRegistry(t)

	r.Subscribe(1, TopicSystem)
	r.Subscribe(1, TopicErrors)
	r.Subscribe(2, TopicSystem)

	st := r.Stats()
	assert.Equal(t, 2, st.TotalUsers)
	assert.Equal(t, 3, st.TotalSubscriptions)
	assert.Equal(t, 2, st.ByTopic[TopicSystem])
	assert.Equal(t, 1, st.ByTopic[TopicErrors])
	assert.Equal(t, 0, st.ByTopic[TopicEvents])
}

func TestPersistRoundTrip(t *testing.T) {
	t.Parallel()
	r, path := newTestRegistry(t)

	r.Subscribe(42, TopicSystem)
	r.Subscribe(42, TopicEvents)
	r.Subscribe(100, TopicScheduled)

	// File is rewritten on every mutation with string-ized ids and
	// ordered topic lists.
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string][]string
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, []string{"events", "system"}, raw["42"])
	assert.Equal(t, []string{"scheduled"}, raw["100"])

	// A fresh registry sees the same state.
	r2 := NewRegistry(path, logx.Nop())
	assert.Equal(t, []Topic{TopicEvents, TopicSystem}, r2.Subscriptions(42))
	assert.Equal(t, []int64{100}, r2.Subscribers(TopicScheduled))
}

func TestLoadCorruptFileStartsEmpty(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "subscriptions.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	r := NewRegistry(path, logx.Nop())
	assert.Zero(t, r.Stats().TotalUsers)

	// And it is usable afterwards.
	require.True(t, r.Subscribe(1, TopicSystem))
}

func TestLoadSkipsUnknownTopics(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "subscriptions.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"5":["system","retired_topic"],"oops":["system"],"6":["retired_topic"]}`), 0o600))

	r := NewRegistry(path, logx.Nop())
	assert.Equal(t, []Topic{TopicSystem}, r.Subscriptions(5))
	assert.Empty(t, r.Subscriptions(6), "user with only unknown topics is dropped")
	assert.Equal(t, 1, r.Stats().TotalUsers)
}
