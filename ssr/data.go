package ssr

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/goliatone/go-rpc-query/cache"
)

// Entry is one prefetched query result.
type Entry struct {
	Key   cache.Key
	Value any
}

// Data is the bag of query results prefetched while rendering one request.
// Entries are addressed by the serialized cache key, so writing the same key twice
// keeps the last value. Data is safe for concurrent use.
type Data struct {
	entries    *xsync.MapOf[string, Entry]
	serializer cache.KeySerializer
}

// NewData creates an empty bag.
func NewData() *Data {
	return &Data{
		entries:    xsync.NewMapOf[string, Entry](),
		serializer: cache.NewDefaultKeySerializer(),
	}
}

// Set stores value under key.
func (d *Data) Set(key cache.Key, value any) {
	d.entries.Store(d.serializer.SerializeKey(key), Entry{Key: key, Value: value})
}

// Get returns the value stored under key.
func (d *Data) Get(key cache.Key) (any, bool) {
	entry, ok := d.entries.Load(d.serializer.SerializeKey(key))
	if !ok {
		return nil, false
	}
	return entry.Value, true
}

// Len returns the number of entries.
func (d *Data) Len() int {
	return d.entries.Size()
}

// Entries returns a snapshot of the bag ordered by serialized key.
func (d *Data) Entries() []Entry {
	type addressed struct {
		hash  string
		entry Entry
	}

	all := make([]addressed, 0, d.entries.Size())
	d.entries.Range(func(hash string, entry Entry) bool {
		all = append(all, addressed{hash: hash, entry: entry})
		return true
	})
	sort.Slice(all, func(i, j int) bool { return all[i].hash < all[j].hash })

	out := make([]Entry, len(all))
	for i, a := range all {
		out[i] = a.entry
	}
	return out
}

// wireEntry is the transfer form of an Entry. The key travels in its array form.
type wireEntry struct {
	Key   []any `json:"key" msgpack:"key"`
	Value any   `json:"value" msgpack:"value"`
}

func (d *Data) wire() []wireEntry {
	entries := d.Entries()
	out := make([]wireEntry, len(entries))
	for i, entry := range entries {
		out[i] = wireEntry{Key: entry.Key.Normalized().Parts(), Value: entry.Value}
	}
	return out
}

func (d *Data) load(entries []wireEntry) error {
	for i, w := range entries {
		key, err := cache.KeyFromParts(w.Key)
		if err != nil {
			return fmt.Errorf("ssr: entry %d: %w", i, err)
		}
		d.Set(key, w.Value)
	}
	return nil
}

// MarshalJSON encodes the bag as a list of {key, value} entries.
func (d *Data) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.wire())
}

// UnmarshalJSON adds the encoded entries to the bag.
func (d *Data) UnmarshalJSON(data []byte) error {
	var entries []wireEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	if d.entries == nil {
		*d = *NewData()
	}
	return d.load(entries)
}

// Dehydrate encodes the bag with msgpack for transfer to the client.
func (d *Data) Dehydrate() ([]byte, error) {
	return msgpack.Marshal(d.wire())
}

// Hydrate decodes a bag produced by Dehydrate.
func Hydrate(b []byte) (*Data, error) {
	var entries []wireEntry
	if err := msgpack.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("ssr: hydrate: %w", err)
	}

	d := NewData()
	if err := d.load(entries); err != nil {
		return nil, err
	}
	return d, nil
}
