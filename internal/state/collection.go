package state

import (
	"slices"

	"famledger/internal/remote"
)

// collection is an ordered list of records addressed by id.
type collection[T any] struct {
	items []T
	id    func(T) string
}

func newCollection[T any](id func(T) string) collection[T] {
	return collection[T]{items: []T{}, id: id}
}

func (c *collection[T]) index(id string) int {
	return slices.IndexFunc(c.items, func(v T) bool { return c.id(v) == id })
}

func (c *collection[T]) get(id string) (T, bool) {
	var zero T
	i := c.index(id)
	if i < 0 {
		return zero, false
	}
	return c.items[i], true
}

func (c *collection[T]) prepend(v T) {
	c.items = append([]T{v}, c.items...)
}

func (c *collection[T]) replace(items []T) {
	if items == nil {
		items = []T{}
	}
	c.items = items
}

func (c *collection[T]) set(v T) bool {
	i := c.index(c.id(v))
	if i < 0 {
		return false
	}
	c.items[i] = v
	return true
}

func (c *collection[T]) remove(id string) bool {
	n := len(c.items)
	c.items = slices.DeleteFunc(slices.Clone(c.items), func(v T) bool { return c.id(v) == id })
	return len(c.items) != n
}

// merged returns the record id with fields applied, without storing it.
func (c *collection[T]) merged(id string, fields remote.Fields) (T, bool, error) {
	cur, ok := c.get(id)
	if !ok {
		return cur, false, nil
	}
	rec, err := remote.Encode(cur)
	if err != nil {
		return cur, true, err
	}
	out, err := remote.Decode[T](remote.Merge(rec, fields))
	return out, true, err
}

func (c *collection[T]) snapshot() []T {
	return slices.Clone(c.items)
}

func (c *collection[T]) len() int {
	return len(c.items)
}
