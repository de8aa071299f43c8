package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/pachory/backend/internal/entity"
	"github.com/pachory/backend/internal/repository"
)

// CartService manages the volatile pre-checkout cart. Everything here is
// advisory; the order pipeline re-reads the catalog when money changes hands.
type CartService struct {
	carts    repository.CartRepository
	products repository.ProductRepository
}

func NewCartService(carts repository.CartRepository, products repository.ProductRepository) *CartService {
	return &CartService{carts: carts, products: products}
}

// CartViewItem is a cart line joined with live product data for display.
type CartViewItem struct {
	Product  entity.Product  `json:"product"`
	Quantity int             `json:"quantity"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// CartView is what the client renders: lines with product info and a total.
type CartView struct {
	UserID string          `json:"user_id"`
	Items  []CartViewItem  `json:"items"`
	Total  decimal.Decimal `json:"total"`
}

// AddLine adds quantity units to the user's cart, creating the line if absent.
func (s *CartService) AddLine(ctx context.Context, userID, productID string, quantity int) error {
	if userID == "" || productID == "" || quantity < 1 {
		return fmt.Errorf("%w: user, product and positive quantity are required", ErrValidation)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return err
	}

	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		return err
	}
	total := quantity
	for _, line := range cart.Lines {
		if line.ProductID == productID {
			total += line.Quantity
		}
	}

	if product.Stock < total {
		return &repository.InsufficientStockError{
			ProductID: productID,
			Requested: total,
			Available: product.Stock,
		}
	}
	return s.carts.SetLine(ctx, userID, productID, total)
}

// UpdateLine sets the quantity of an existing line.
func (s *CartService) UpdateLine(ctx context.Context, userID, productID string, quantity int) error {
	if userID == "" || productID == "" || quantity < 1 {
		return fmt.Errorf("%w: user, product and positive quantity are required", ErrValidation)
	}

	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		return err
	}
	found := false
	for _, line := range cart.Lines {
		if line.ProductID == productID {
			found = true
			break
		}
	}
	if !found {
		return repository.ErrNotFound
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return err
	}
	if product.Stock < quantity {
		return &repository.InsufficientStockError{
			ProductID: productID,
			Requested: quantity,
			Available: product.Stock,
		}
	}
	return s.carts.SetLine(ctx, userID, productID, quantity)
}

func (s *CartService) RemoveLine(ctx context.Context, userID, productID string) error {
	if userID == "" || productID == "" {
		return fmt.Errorf("%w: user and product are required", ErrValidation)
	}
	return s.carts.RemoveLine(ctx, userID, productID)
}

// Get returns the cart joined with product details. Lines whose product has
// been deleted from the catalog are skipped rather than failing the view.
func (s *CartService) Get(ctx context.Context, userID string) (*CartView, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user is required", ErrValidation)
	}

	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	view := &CartView{UserID: userID, Total: decimal.Zero}
	for _, line := range cart.Lines {
		product, err := s.products.FindByID(ctx, line.ProductID)
		if err == repository.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		subtotal := product.EffectivePrice().Mul(decimal.NewFromInt(int64(line.Quantity)))
		view.Items = append(view.Items, CartViewItem{
			Product:  *product,
			Quantity: line.Quantity,
			Subtotal: subtotal,
		})
		view.Total = view.Total.Add(subtotal)
	}
	return view, nil
}
