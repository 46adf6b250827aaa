package state

import (
	"context"
	"fmt"
	"slices"

	"famledger/internal/core"
)

func (s *Store) Categories() []core.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.categories)
}

// AddCategory appends a user category. Categories are local only.
func (s *Store) AddCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if c.ID == "" {
		c.ID = s.newID()
	}
	c.IsDefault = false
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("add category: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.ContainsFunc(s.categories, func(e core.Category) bool { return e.ID == c.ID }) {
		return c, fmt.Errorf("add category %q: %w", c.ID, ErrDuplicateCategory)
	}
	s.categories = append(slices.Clone(s.categories), c)
	s.commit(ctx)
	return c, nil
}
