package cache

// Key identifies a record across symbols. Orders and own trades share the
// same identity scheme: the market symbol plus the venue-assigned uuid.
type Key struct {
	Symbol string
	ID     string
}

type keyedEntry[T any] struct {
	key   Key
	value T
}

// KeyedBuffer is a bounded upsert table keyed by (symbol, id). Storing an
// existing key replaces the record and refreshes its arrival position;
// storing a new key appends, evicting the oldest entry once the capacity is
// exceeded. An evicted identity simply misses on the next lookup and is
// treated as new again.
type KeyedBuffer[T any] struct {
	limit   int
	entries []keyedEntry[T]
	index   map[Key]int
}

// NewKeyedBuffer creates a buffer with the given capacity. A non-positive
// limit falls back to 1000.
func NewKeyedBuffer[T any](limit int) *KeyedBuffer[T] {
	if limit <= 0 {
		limit = 1000
	}
	return &KeyedBuffer[T]{limit: limit, index: make(map[Key]int)}
}

// Get returns the record stored for (symbol, id).
func (b *KeyedBuffer[T]) Get(symbol, id string) (T, bool) {
	if i, ok := b.index[Key{Symbol: symbol, ID: id}]; ok {
		return b.entries[i].value, true
	}
	var zero T
	return zero, false
}

// Put upserts the record for (symbol, id).
func (b *KeyedBuffer[T]) Put(symbol, id string, v T) {
	key := Key{Symbol: symbol, ID: id}
	if i, ok := b.index[key]; ok {
		b.remove(i)
	} else if len(b.entries) == b.limit {
		b.remove(0)
	}
	b.index[key] = len(b.entries)
	b.entries = append(b.entries, keyedEntry[T]{key: key, value: v})
}

func (b *KeyedBuffer[T]) remove(i int) {
	delete(b.index, b.entries[i].key)
	b.entries = append(b.entries[:i], b.entries[i+1:]...)
	for j := i; j < len(b.entries); j++ {
		b.index[b.entries[j].key] = j
	}
}

// Len returns the number of stored records.
func (b *KeyedBuffer[T]) Len() int {
	return len(b.entries)
}

// Slice returns a copy of all records in arrival order.
func (b *KeyedBuffer[T]) Slice() []T {
	out := make([]T, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, e.value)
	}
	return out
}

// BySymbol returns a copy of the records stored for one symbol, in arrival
// order.
func (b *KeyedBuffer[T]) BySymbol(symbol string) []T {
	var out []T
	for _, e := range b.entries {
		if e.key.Symbol == symbol {
			out = append(out, e.value)
		}
	}
	return out
}
