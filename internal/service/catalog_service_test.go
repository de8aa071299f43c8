package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pachory/backend/internal/entity"
	"github.com/pachory/backend/internal/repository"
)

func TestCatalogCreate(t *testing.T) {
	svc := NewCatalogService(newMemStore())
	ctx := context.Background()

	created, err := svc.Create(ctx, &entity.Product{
		Title: "Desk Lamp",
		Price: decimal.RequireFromString("69.99"),
		Stock: 4,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID, "an id is assigned when absent")

	_, err = svc.Create(ctx, &entity.Product{Title: "  ", Price: decimal.RequireFromString("1.00")})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(ctx, &entity.Product{Title: "Bad", Price: decimal.RequireFromString("-1.00")})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(ctx, &entity.Product{Title: "Bad", Price: decimal.RequireFromString("1.00"), Stock: -1})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCatalogUpdateNeverTouchesStock(t *testing.T) {
	store := newMemStore()
	svc := NewCatalogService(store)
	ctx := context.Background()

	created, err := svc.Create(ctx, &entity.Product{
		Title: "Desk Lamp",
		Price: decimal.RequireFromString("69.99"),
		Stock: 4,
	})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, &entity.Product{
		ID:    created.ID,
		Title: "Desk Lamp v2",
		Price: decimal.RequireFromString("79.99"),
		Stock: 999,
	})
	require.NoError(t, err)
	assert.Equal(t, "Desk Lamp v2", updated.Title)
	assert.Equal(t, 4, updated.Stock, "stock edits through the catalog are ignored")
}

func TestCatalogDelete(t *testing.T) {
	store := newMemStore()
	svc := NewCatalogService(store)
	ctx := context.Background()

	created, err := svc.Create(ctx, &entity.Product{Title: "Gone Soon", Price: decimal.RequireFromString("9.99")})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, created.ID))
	_, err = svc.Get(ctx, created.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	assert.ErrorIs(t, svc.Delete(ctx, created.ID), repository.ErrNotFound)
}
