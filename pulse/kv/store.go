// Package kv is the durable key/value store shared by the executor process
// and every UI surface. Each write is committed synchronously and then
// announced to subscribers so observers can re-render without polling.
package kv

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/teranos/linkpulse/errors"
)

const (
	// SubscriberChannelBufferSize is the buffer size for change subscriber channels
	SubscriberChannelBufferSize = 100
)

// Change describes one committed write.
type Change struct {
	Key     string          `json:"key"`
	Value   json.RawMessage `json:"value,omitempty"`
	Deleted bool            `json:"deleted,omitempty"`
	At      time.Time       `json:"at"`
}

// Store persists JSON values in the kv_entries table.
type Store struct {
	db  *sql.DB
	now func() time.Time

	mu          sync.RWMutex
	subscribers []chan Change
}

// NewStore creates a store on a migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Get decodes the value at key into v. Returns false when the key is absent.
func (s *Store) Get(key string, v interface{}) (bool, error) {
	raw, found, err := s.GetRaw(key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		err = errors.Wrapf(err, "decode value of %s", key)
		return false, errors.WithDetail(err, fmt.Sprintf("Value: %.200s", raw))
	}
	return true, nil
}

// GetRaw returns the stored JSON at key.
func (s *Store) GetRaw(key string) (json.RawMessage, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv_entries WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.WrapCommunication(err, fmt.Sprintf("read %s", key))
	}
	return json.RawMessage(value), true, nil
}

// Put stores v at key and notifies subscribers once the write is committed.
// A failed write is a communication error.
func (s *Store) Put(key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode value of %s", key)
	}

	now := s.now()
	_, err = s.db.Exec(`
		INSERT INTO kv_entries (key, value, version, updated_at) VALUES (?, ?, 1, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			version = kv_entries.version + 1,
			updated_at = excluded.updated_at
	`, key, string(raw), now.UTC().Format(time.RFC3339Nano))
	if err != nil {
		err = errors.WrapCommunication(err, fmt.Sprintf("write %s", key))
		return errors.WithDetail(err, fmt.Sprintf("Key: %s", key))
	}

	s.notify(Change{Key: key, Value: raw, At: now})
	return nil
}

// Delete removes key. Deleting an absent key is not an error and sends no notification.
func (s *Store) Delete(key string) error {
	res, err := s.db.Exec(`DELETE FROM kv_entries WHERE key = ?`, key)
	if err != nil {
		return errors.WrapCommunication(err, fmt.Sprintf("delete %s", key))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}
	s.notify(Change{Key: key, Deleted: true, At: s.now()})
	return nil
}

// Keys lists keys starting with prefix in lexical order.
func (s *Store) Keys(prefix string) ([]string, error) {
	rows, err := s.db.Query(`SELECT key FROM kv_entries WHERE key LIKE ? ESCAPE '\' ORDER BY key`, escapeLike(prefix)+"%")
	if err != nil {
		return nil, errors.WrapCommunication(err, fmt.Sprintf("list keys %s*", prefix))
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, errors.Wrap(err, "scan key")
		}
		keys = append(keys, k)
	}
	return keys, errors.Wrap(rows.Err(), "iterate keys")
}

// Subscribe returns a channel receiving every committed change.
func (s *Store) Subscribe() chan Change {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Change, SubscriberChannelBufferSize)
	s.subscribers = append(s.subscribers, ch)
	return ch
}

// Unsubscribe removes ch. The channel is not closed; the caller owns it.
func (s *Store) Unsubscribe(ch chan Change) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.subscribers {
		if sub == ch {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			return
		}
	}
}

// notify never blocks: a full subscriber misses the change and resyncs by reading the key.
func (s *Store) notify(c Change) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ch := range s.subscribers {
		select {
		case ch <- c:
		default:
		}
	}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
