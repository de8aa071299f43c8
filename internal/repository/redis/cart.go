package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/pachory/backend/internal/entity"
	"github.com/pachory/backend/internal/repository"
)

type cartRepository struct {
	client *redis.Client
}

// NewCartRepository creates a CartRepository backed by Redis. Each cart is a
// hash keyed by user, field = product id, value = quantity.
func NewCartRepository(client *redis.Client) repository.CartRepository {
	return &cartRepository{client: client}
}

func cartKey(userID string) string {
	return fmt.Sprintf("cart:%s:items", userID)
}

func (r *cartRepository) Get(ctx context.Context, userID string) (*entity.Cart, error) {
	fields, err := r.client.HGetAll(ctx, cartKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get cart items: %w", err)
	}

	cart := &entity.Cart{UserID: userID}
	for productID, raw := range fields {
		quantity, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt cart line for product %s: %w", productID, err)
		}
		cart.Lines = append(cart.Lines, entity.CartLine{ProductID: productID, Quantity: quantity})
	}
	// Hash iteration order is random; keep responses stable.
	sort.Slice(cart.Lines, func(i, j int) bool {
		return cart.Lines[i].ProductID < cart.Lines[j].ProductID
	})
	return cart, nil
}

func (r *cartRepository) SetLine(ctx context.Context, userID, productID string, quantity int) error {
	if err := r.client.HSet(ctx, cartKey(userID), productID, quantity).Err(); err != nil {
		return fmt.Errorf("failed to set cart line: %w", err)
	}
	return nil
}

func (r *cartRepository) RemoveLine(ctx context.Context, userID, productID string) error {
	removed, err := r.client.HDel(ctx, cartKey(userID), productID).Result()
	if err != nil {
		return fmt.Errorf("failed to remove cart line: %w", err)
	}
	if removed == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *cartRepository) Clear(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, cartKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}
