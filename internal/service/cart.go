package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SergeyBogomolovv/marketplace-checkout/internal/entities"
	"github.com/SergeyBogomolovv/marketplace-checkout/pkg/trm"
	"github.com/SergeyBogomolovv/marketplace-checkout/pkg/utils"

	"golang.org/x/sync/singleflight"
)

type CartRepo interface {
	FindCartID(ctx context.Context, owner entities.CartOwner) (string, error)
	EnsureCart(ctx context.Context, owner entities.CartOwner) (string, error)
	LockCart(ctx context.Context, cartID string) error
	GetCart(ctx context.Context, owner entities.CartOwner) (entities.Cart, error)
	LineQuantity(ctx context.Context, cartID, productID, variantKey string) (int, error)
	UpsertLine(ctx context.Context, cartID, productID string, variant map[string]string, qty int) error
	GetLine(ctx context.Context, cartID, lineID string) (entities.CartLine, error)
	SetLineQuantity(ctx context.Context, cartID, lineID string, qty int) error
	DeleteLine(ctx context.Context, cartID, lineID string) error
	ClearLines(ctx context.Context, cartID string) error
	DeleteCart(ctx context.Context, cartID string) error
	RecomputeTotals(ctx context.Context, cartID string) error
}

type ProductReader interface {
	GetProducts(ctx context.Context, ids []string) (map[string]entities.Product, error)
}

type CartCache interface {
	Get(ctx context.Context, owner entities.CartOwner) (entities.Cart, error)
	Set(ctx context.Context, cart entities.Cart) error
	Delete(ctx context.Context, owners ...entities.CartOwner) error
}

type OwnerLocker interface {
	// Lock возвращает entities.ErrCheckoutInProgress, если владелец уже занят
	Lock(ctx context.Context, owner entities.CartOwner) (unlock func(), err error)
}

var errLockUnavailable = errors.New("owner lock unavailable")

// повторяем только занятый замок
var lockRetry = utils.RetryConfig{
	InitialDelay: 50 * time.Millisecond,
	MaxAttempts:  5,
	Multiplier:   2,
	MaxDelay:     500 * time.Millisecond,
}

type cartService struct {
	logger    *slog.Logger
	txManager trm.Manager
	repo      CartRepo
	products  ProductReader
	cache     CartCache
	locker    OwnerLocker
	group     singleflight.Group
}

func NewCartService(logger *slog.Logger, txManager trm.Manager, repo CartRepo, products ProductReader, cache CartCache, locker OwnerLocker) *cartService {
	return &cartService{
		logger:    logger.With(slog.String("service", "cart")),
		txManager: txManager,
		repo:      repo,
		products:  products,
		cache:     cache,
		locker:    locker,
	}
}

func (s *cartService) GetCart(ctx context.Context, owner entities.CartOwner) (entities.Cart, error) {
	if !owner.Valid() {
		return entities.Cart{}, entities.ErrInvalidOwner
	}

	if cart, err := s.cache.Get(ctx, owner); err == nil {
		return cart, nil
	}

	v, err, _ := s.group.Do(owner.Key(), func() (any, error) {
		cart, err := s.repo.GetCart(ctx, owner)
		if errors.Is(err, entities.ErrCartNotFound) {
			return entities.Cart{Owner: owner}, nil
		}
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(ctx, cart); err != nil {
			s.logger.Warn("failed to cache cart", "owner", owner.Key(), "error", err)
		}
		return cart, nil
	})
	if err != nil {
		return entities.Cart{}, err
	}
	return v.(entities.Cart), nil
}

// AddLine добавляет товар или увеличивает количество существующей строки.
// Проверка остатка мягкая: окончательно остаток списывается только при оформлении.
func (s *cartService) AddLine(ctx context.Context, owner entities.CartOwner, productID string, qty int, variant map[string]string) (entities.Cart, error) {
	if !owner.Valid() {
		return entities.Cart{}, entities.ErrInvalidOwner
	}
	if qty < 1 {
		return entities.Cart{}, entities.ErrInvalidQuantity
	}

	product, err := s.product(ctx, productID)
	if err != nil {
		return entities.Cart{}, err
	}

	err = s.mutate(ctx, owner, true, func(ctx context.Context, cartID string) error {
		existing, err := s.repo.LineQuantity(ctx, cartID, productID, entities.VariantKey(variant))
		if err != nil {
			return err
		}
		if err := softStockCheck(product, existing+qty); err != nil {
			return err
		}
		return s.repo.UpsertLine(ctx, cartID, productID, variant, qty)
	})
	if err != nil {
		return entities.Cart{}, err
	}
	return s.GetCart(ctx, owner)
}

func (s *cartService) UpdateLineQuantity(ctx context.Context, owner entities.CartOwner, lineID string, qty int) (entities.Cart, error) {
	if !owner.Valid() {
		return entities.Cart{}, entities.ErrInvalidOwner
	}
	if qty < 1 {
		return entities.Cart{}, entities.ErrInvalidQuantity
	}

	err := s.mutate(ctx, owner, false, func(ctx context.Context, cartID string) error {
		line, err := s.repo.GetLine(ctx, cartID, lineID)
		if err != nil {
			return err
		}
		product, err := s.product(ctx, line.ProductID)
		if err != nil {
			return err
		}
		if err := softStockCheck(product, qty); err != nil {
			return err
		}
		return s.repo.SetLineQuantity(ctx, cartID, lineID, qty)
	})
	if err != nil {
		return entities.Cart{}, err
	}
	return s.GetCart(ctx, owner)
}

func (s *cartService) RemoveLine(ctx context.Context, owner entities.CartOwner, lineID string) (entities.Cart, error) {
	if !owner.Valid() {
		return entities.Cart{}, entities.ErrInvalidOwner
	}

	err := s.mutate(ctx, owner, false, func(ctx context.Context, cartID string) error {
		return s.repo.DeleteLine(ctx, cartID, lineID)
	})
	if err != nil {
		return entities.Cart{}, err
	}
	return s.GetCart(ctx, owner)
}

func (s *cartService) Clear(ctx context.Context, owner entities.CartOwner) error {
	if !owner.Valid() {
		return entities.ErrInvalidOwner
	}

	err := s.mutate(ctx, owner, false, func(ctx context.Context, cartID string) error {
		return s.repo.ClearLines(ctx, cartID)
	})
	if errors.Is(err, entities.ErrCartNotFound) {
		return nil
	}
	return err
}

// Merge переносит гостевую корзину в корзину пользователя при входе.
// Совпадающие пары (товар, вариант) складываются, гостевая корзина удаляется.
// Без гостевой корзины ничего не делает.
func (s *cartService) Merge(ctx context.Context, guestToken, userID string) (entities.Cart, error) {
	guest := entities.CartOwner{GuestToken: guestToken}
	user := entities.CartOwner{UserID: userID}
	if !guest.Valid() || !user.Valid() {
		return entities.Cart{}, entities.ErrInvalidOwner
	}

	// порядок захвата одинаковый для всех вызовов: сначала пользователь
	unlockUser, err := s.lock(ctx, user)
	if err != nil {
		return entities.Cart{}, err
	}
	defer unlockUser()

	unlockGuest, err := s.lock(ctx, guest)
	if err != nil {
		return entities.Cart{}, err
	}
	defer unlockGuest()

	var merged int
	err = s.txManager.Do(ctx, func(ctx context.Context) error {
		guestCart, err := s.repo.GetCart(ctx, guest)
		if err != nil {
			return err
		}

		userCartID, err := s.repo.EnsureCart(ctx, user)
		if err != nil {
			return err
		}
		if err := s.repo.LockCart(ctx, userCartID); err != nil {
			return err
		}
		if err := s.repo.LockCart(ctx, guestCart.ID); err != nil {
			return err
		}

		for _, line := range guestCart.Lines {
			if err := s.repo.UpsertLine(ctx, userCartID, line.ProductID, line.Variant, line.Quantity); err != nil {
				return err
			}
			merged++
		}

		if err := s.repo.DeleteCart(ctx, guestCart.ID); err != nil {
			return err
		}
		return s.repo.RecomputeTotals(ctx, userCartID)
	})
	if errors.Is(err, entities.ErrCartNotFound) {
		return s.GetCart(ctx, user)
	}
	if err != nil {
		return entities.Cart{}, fmt.Errorf("failed to merge carts: %w", err)
	}

	s.invalidate(ctx, user, guest)
	s.logger.Info("carts merged", "user_id", userID, "lines", merged)
	return s.GetCart(ctx, user)
}

// mutate выполняет изменение корзины в транзакции под блокировкой строки
// и пересчитывает итоги. create создаёт корзину, если её ещё нет.
func (s *cartService) mutate(ctx context.Context, owner entities.CartOwner, create bool, fn func(ctx context.Context, cartID string) error) error {
	err := s.txManager.Do(ctx, func(ctx context.Context) error {
		var (
			cartID string
			err    error
		)
		if create {
			cartID, err = s.repo.EnsureCart(ctx, owner)
		} else {
			cartID, err = s.repo.FindCartID(ctx, owner)
		}
		if err != nil {
			return err
		}

		if err := s.repo.LockCart(ctx, cartID); err != nil {
			return err
		}
		if err := fn(ctx, cartID); err != nil {
			return err
		}
		return s.repo.RecomputeTotals(ctx, cartID)
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, owner)
	return nil
}

func (s *cartService) lock(ctx context.Context, owner entities.CartOwner) (func(), error) {
	var unlock func()
	err := utils.RetryCtx(ctx, lockRetry, func() error {
		var err error
		unlock, err = s.locker.Lock(ctx, owner)
		if err != nil && !errors.Is(err, entities.ErrCheckoutInProgress) {
			return fmt.Errorf("%w: %w", errLockUnavailable, err)
		}
		return err
	}, errLockUnavailable)
	if err != nil {
		return nil, err
	}
	return unlock, nil
}

func (s *cartService) invalidate(ctx context.Context, owners ...entities.CartOwner) {
	if err := s.cache.Delete(ctx, owners...); err != nil {
		s.logger.Warn("failed to invalidate cart cache", "error", err)
	}
}

func (s *cartService) product(ctx context.Context, productID string) (entities.Product, error) {
	products, err := s.products.GetProducts(ctx, []string{productID})
	if err != nil {
		return entities.Product{}, err
	}
	product, ok := products[productID]
	if !ok {
		return entities.Product{}, entities.ErrProductNotFound
	}
	if !product.Active {
		return entities.Product{}, entities.ErrProductInactive
	}
	return product, nil
}

func softStockCheck(p entities.Product, qty int) error {
	if p.TrackInventory && qty > p.Stock {
		return &entities.OutOfStockError{ProductID: p.ID, Name: p.Name}
	}
	return nil
}
