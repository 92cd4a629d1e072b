// Package subscription tracks which users want which notification
// topics. The registry is in-memory with write-through persistence to a
// JSON file: every mutation rewrites the file before returning, so a
// single caller always reads its own writes.
//
// There is no cross-process locking. Concurrent writers from multiple
// processes can lose updates; deployment is assumed single-process.
package subscription

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	logx "notibot/pkg/logx"
)

type Registry struct {
	mu   sync.Mutex
	path string
	log  logx.Logger
	subs map[int64]map[Topic]struct{}
}

// Stats summarizes the registry for status surfaces.
type Stats struct {
	TotalUsers         int           `json:"total_users"`
	TotalSubscriptions int           `json:"total_subscriptions"`
	ByTopic            map[Topic]int `json:"by_topic"`
}

// NewRegistry loads the registry from path. A missing or corrupt file
// yields an empty registry, never a startup failure.
func NewRegistry(path string, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Registry{path: path, log: log, subs: map[int64]map[Topic]struct{}{}}
	r.load()
	return r
}

// Subscribe adds topic to the user's set. Idempotent: subscribing twice
// is still true. Returns false only for a topic outside the enumeration.
func (r *Registry) Subscribe(userID int64, topic Topic) bool {
	if !topic.Valid() {
		r.log.Warn("invalid subscription topic", logx.Int64("user_id", userID), logx.String("topic", string(topic)))
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.subs[userID]
	if !ok {
		set = map[Topic]struct{}{}
		r.subs[userID] = set
	}
	set[topic] = struct{}{}
	r.saveLocked()

	r.log.Info("user subscribed", logx.Int64("user_id", userID), logx.String("topic", string(topic)))
	return true
}

// Unsubscribe removes topic from the user's set; when the set becomes
// empty the user entry is removed entirely. False for an invalid topic
// or a subscription that does not exist.
func (r *Registry) Unsubscribe(userID int64, topic Topic) bool {
	if !topic.Valid() {
		r.log.Warn("invalid subscription topic", logx.Int64("user_id", userID), logx.String("topic", string(topic)))
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.subs[userID]
	if !ok {
		return false
	}
	if _, ok := set[topic]; !ok {
		return false
	}
	delete(set, topic)
	if len(set) == 0 {
		delete(r.subs, userID)
	}
	r.saveLocked()

	r.log.Info("user unsubscribed", logx.Int64("user_id", userID), logx.String("topic", string(topic)))
	return true
}

// Subscriptions returns the user's topics in stable order.
func (r *Registry) Subscriptions(userID int64) []Topic {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedTopics(r.subs[userID])
}

// Subscribers returns every user subscribed to topic, ascending by id.
func (r *Registry) Subscribers(topic Topic) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []int64
	for id, set := range r.subs {
		if _, ok := set[topic]; ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *Registry) IsSubscribed(userID int64, topic Topic) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.subs[userID][topic]
	return ok
}

// All returns a snapshot of every user's topic set.
func (r *Registry) All() map[int64][]Topic {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[int64][]Topic, len(r.subs))
	for id, set := range r.subs {
		out[id] = sortedTopics(set)
	}
	return out
}

// RemoveUser drops every subscription the user has.
func (r *Registry) RemoveUser(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[userID]; !ok {
		return false
	}
	delete(r.subs, userID)
	r.saveLocked()

	r.log.Info("user removed from all topics", logx.Int64("user_id", userID))
	return true
}

func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Stats{TotalUsers: len(r.subs), ByTopic: map[Topic]int{}}
	for _, t := range Topics() {
		st.ByTopic[t] = 0
	}
	for _, set := range r.subs {
		st.TotalSubscriptions += len(set)
		for t := range set {
			st.ByTopic[t]++
		}
	}
	return st
}

// ---- persistence ----

// On-disk shape: string-ized user id -> ordered topic list.

func (r *Registry) load() {
	b, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			r.log.Info("no existing subscription file", logx.String("path", r.path))
		} else {
			r.log.Error("subscription file unreadable, starting empty", logx.String("path", r.path), logx.Err(err))
		}
		return
	}

	var raw map[string][]string
	if err := json.Unmarshal(b, &raw); err != nil {
		r.log.Error("subscription file corrupt, starting empty", logx.String("path", r.path), logx.Err(err))
		return
	}

	for key, topics := range raw {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			r.log.Warn("skipping bad user id in subscription file", logx.String("key", key))
			continue
		}
		set := map[Topic]struct{}{}
		for _, t := range topics {
			topic := Topic(t)
			if !topic.Valid() {
				r.log.Warn("skipping unknown topic in subscription file", logx.String("topic", t))
				continue
			}
			set[topic] = struct{}{}
		}
		if len(set) > 0 {
			r.subs[id] = set
		}
	}
	r.log.Info("subscriptions loaded", logx.String("path", r.path), logx.Int("users", len(r.subs)))
}

// saveLocked rewrites the whole file via temp-file + rename so a crash
// mid-write cannot leave a truncated registry behind. Persistence is
// best-effort: a failed write is logged and the in-memory state stands.
func (r *Registry) saveLocked() {
	raw := make(map[string][]string, len(r.subs))
	for id, set := range r.subs {
		topics := sortedTopics(set)
		ss := make([]string, 0, len(topics))
		for _, t := range topics {
			ss = append(ss, string(t))
		}
		raw[strconv.FormatInt(id, 10)] = ss
	}

	b, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		r.log.Error("subscription save failed", logx.Err(err))
		return
	}

	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			r.log.Error("subscription save failed", logx.String("path", r.path), logx.Err(err))
			return
		}
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		r.log.Error("subscription save failed", logx.String("path", tmp), logx.Err(err))
		return
	}
	if err := os.Rename(tmp, r.path); err != nil {
		r.log.Error("subscription save failed", logx.String("path", r.path), logx.Err(err))
		return
	}
	r.log.Debug("subscriptions saved", logx.String("path", r.path), logx.Int("users", len(r.subs)))
}

func sortedTopics(set map[Topic]struct{}) []Topic {
	if len(set) == 0 {
		return nil
	}
	out := make([]Topic, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
