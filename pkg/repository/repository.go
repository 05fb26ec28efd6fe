// Package repository is a generic read-side store for list endpoints that
// filter by example and page with pkg/db/option modifiers.
package repository

import (
	"context"

	"github.com/smallbiznis/mealsub/pkg/db/option"
	"gorm.io/gorm"
)

// Repository lists rows of T matching the non-zero fields of a filter.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, filter *T, opts ...option.QueryOption) ([]*T, error)
}

type lister[T any] struct {
	db *gorm.DB
}

func ProvideStore[T any](db *gorm.DB) Repository[T] {
	return lister[T]{db: db}
}

func (l lister[T]) WithTrx(tx *gorm.DB) Repository[T] {
	if tx == nil {
		return l
	}
	return lister[T]{db: tx}
}

func (l lister[T]) Find(ctx context.Context, filter *T, opts ...option.QueryOption) ([]*T, error) {
	rows := make([]*T, 0)
	if err := l.scope(ctx, filter, opts).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (l lister[T]) scope(ctx context.Context, filter *T, opts []option.QueryOption) *gorm.DB {
	q := l.db.WithContext(ctx).Model(new(T))
	if filter != nil {
		q = q.Where(filter)
	}
	for _, opt := range opts {
		if opt != nil {
			q = opt.Apply(q)
		}
	}
	return q
}
