package cart

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/fjod/stonehub/internal/domain"
	"github.com/fjod/stonehub/internal/storage"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Store is the part of the storage adapter the cart needs.
type Store interface {
	ClientID() string
	Load(ctx context.Context, scope storage.Scope, key string, dst any) (bool, error)
	Update(ctx context.Context, scope storage.Scope, key string, dst any, mutate func(found bool) error) error
}

type Recorder interface {
	CartMutated(op string)
}

type nopRecorder struct{}

func (nopRecorder) CartMutated(string) {}

type Service struct {
	log      *zap.Logger
	recorder Recorder
	now      func() time.Time
}

func NewService(log *zap.Logger, recorder Recorder) *Service {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Service{log: log, recorder: recorder, now: time.Now}
}

// Load returns the stored cart, or an empty one when none is stored or the
// stored record was unreadable.
func (s *Service) Load(ctx context.Context, st Store) (domain.Cart, error) {
	cart := domain.NewCart()
	found, err := st.Load(ctx, storage.Durable, storage.KeyCart, &cart)
	if err != nil {
		s.log.Error("load cart failed", zap.String("client_id", st.ClientID()), zap.Error(err))
		return domain.Cart{}, err
	}
	if !found {
		return domain.NewCart(), nil
	}
	normalize(&cart)
	return cart, nil
}

// AddItem increments the quantity of an existing item or appends a new one
// with quantity 1.
func (s *Service) AddItem(ctx context.Context, st Store, productID, name string, price decimal.Decimal, image string) (domain.Cart, error) {
	productID = strings.TrimSpace(productID)
	verr := domain.NewValidationError()
	if productID == "" {
		verr.Add("id", "product id is required")
	}
	if price.IsNegative() {
		verr.Add("price", "price must not be negative")
	}
	if verr.HasErrors() {
		return domain.Cart{}, verr
	}
	if image == "" {
		image = domain.PlaceholderImage
	}

	return s.mutate(ctx, st, "add", func(cart *domain.Cart) {
		if i, ok := cart.Find(productID); ok {
			cart.Items[i].Quantity++
			return
		}
		cart.Items = append(cart.Items, domain.CartItem{
			ID:       productID,
			Name:     name,
			Price:    price,
			Image:    image,
			Quantity: 1,
		})
	})
}

// SetQuantity floors quantity and stores it. Zero or less removes the item;
// an unknown product id leaves the cart unchanged.
func (s *Service) SetQuantity(ctx context.Context, st Store, productID string, quantity float64) (domain.Cart, error) {
	if math.IsNaN(quantity) || math.IsInf(quantity, 0) {
		verr := domain.NewValidationError()
		verr.Add("quantity", "quantity must be a number")
		return domain.Cart{}, verr
	}

	q := math.Floor(quantity)
	if q <= 0 {
		return s.RemoveItem(ctx, st, productID)
	}
	if q > math.MaxInt32 {
		q = math.MaxInt32
	}

	return s.mutate(ctx, st, "set_quantity", func(cart *domain.Cart) {
		if i, ok := cart.Find(productID); ok {
			cart.Items[i].Quantity = int(q)
			return
		}
		s.log.Debug("set quantity for product not in cart",
			zap.String("client_id", st.ClientID()),
			zap.String("product_id", productID),
		)
	})
}

// RemoveItem drops the item; removing an absent item is not an error.
func (s *Service) RemoveItem(ctx context.Context, st Store, productID string) (domain.Cart, error) {
	return s.mutate(ctx, st, "remove", func(cart *domain.Cart) {
		kept := make([]domain.CartItem, 0, len(cart.Items))
		for _, item := range cart.Items {
			if item.ID != productID {
				kept = append(kept, item)
			}
		}
		cart.Items = kept
	})
}

func (s *Service) Clear(ctx context.Context, st Store) (domain.Cart, error) {
	return s.mutate(ctx, st, "clear", func(cart *domain.Cart) {
		cart.Items = []domain.CartItem{}
	})
}

// mutate applies change to the stored cart, recomputes the totals and
// persists the result in one atomic update.
func (s *Service) mutate(ctx context.Context, st Store, op string, change func(cart *domain.Cart)) (domain.Cart, error) {
	var cart domain.Cart
	err := st.Update(ctx, storage.Durable, storage.KeyCart, &cart, func(found bool) error {
		if !found {
			cart = domain.NewCart()
		}
		normalize(&cart)
		change(&cart)
		recompute(&cart)
		cart.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		s.log.Error("cart update failed",
			zap.String("op", op),
			zap.String("client_id", st.ClientID()),
			zap.Error(err),
		)
		return domain.Cart{}, fmt.Errorf("cart %s: %w", op, err)
	}

	s.recorder.CartMutated(op)
	return cart.Clone(), nil
}

// normalize restores the cart invariants on data written by older clients:
// duplicate ids are merged, non-positive quantities dropped and totals
// recomputed.
func normalize(cart *domain.Cart) {
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}
	merged := make([]domain.CartItem, 0, len(cart.Items))
	index := make(map[string]int, len(cart.Items))
	for _, item := range cart.Items {
		if item.Quantity <= 0 {
			continue
		}
		if i, seen := index[item.ID]; seen {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ID] = len(merged)
		merged = append(merged, item)
	}
	cart.Items = merged
	recompute(cart)
}
