package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueueAddIsIdempotent(t *testing.T) {
	q := NewQueue()

	assert.True(t, q.Add(addrA, "conn-1"))
	assert.False(t, q.Add(addrA, "conn-2"))
	assert.Equal(t, 1, q.Len())
	assert.True(t, q.Contains(addrA))
}

func TestQueuePairsFIFO(t *testing.T) {
	q := NewQueue()

	_, _, ok := q.TryPair()
	assert.False(t, ok)

	q.Add(addrA, "c1")
	_, _, ok = q.TryPair()
	assert.False(t, ok)
	assert.Equal(t, 1, q.Len())

	q.Add(addrB, "c2")
	q.Add("cccc", "c3")

	a, b, ok := q.TryPair()
	assert.True(t, ok)
	assert.Equal(t, addrA, a.Address)
	assert.Equal(t, addrB, b.Address)
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, []string{"cccc"}, q.Addresses())
}

func TestQueueRemove(t *testing.T) {
	q := NewQueue()
	q.Add(addrA, "c1")
	q.Add(addrB, "c2")

	assert.True(t, q.Remove(addrA))
	assert.False(t, q.Remove(addrA))
	assert.Equal(t, []string{addrB}, q.Addresses())

	// Removal re-opens the slot for the same address.
	assert.True(t, q.Add(addrA, "c3"))
	assert.Equal(t, 2, q.Len())
}

func TestQueueEntriesAreCopies(t *testing.T) {
	q := NewQueue()
	q.Add(addrA, "c1")

	entries := q.Entries()
	entries[0].Address = "mutated"
	assert.Equal(t, addrA, q.Entries()[0].Address)
}
