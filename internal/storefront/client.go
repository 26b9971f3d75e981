// Package storefront assembles the cache, mutation, flow and forms layers
// into the customer-facing account and checkout operations.
package storefront

import (
	"context"
	"errors"
	"fmt"

	"github.com/aromabay/storefront/internal/addresses"
	"github.com/aromabay/storefront/internal/aws"
	"github.com/aromabay/storefront/internal/cache"
	"github.com/aromabay/storefront/internal/identity"
	"github.com/aromabay/storefront/internal/mutation"
	"github.com/aromabay/storefront/internal/orders"
	"github.com/aromabay/storefront/internal/wishlist"
)

var ErrUnauthorized = errors.New("sign in required")

// Client drives the account surfaces for one session. All reads go
// through the injected cache layer; mutations that matter for perceived
// latency run optimistically against it.
type Client struct {
	Cache     *cache.Layer
	Addresses *addresses.Store
	Orders    *orders.Store
	Wishlist  *wishlist.Store
	Session   identity.Session
	Metrics   *aws.MetricsEmitter
}

// Bind registers the cache fetchers for the session's collections and
// must be called once after construction.
func (c *Client) Bind() {
	owner, ok := c.Session.UserID()
	if !ok {
		return
	}
	c.Cache.BindFetcher(AddressesKey(owner), func(ctx context.Context) (any, error) {
		return c.Addresses.ListByOwner(ctx, owner)
	})
	c.Cache.BindFetcher(OrdersKey(owner), func(ctx context.Context) (any, error) {
		return c.Orders.ListByOwner(ctx, owner)
	})
	c.Cache.BindFetcher(WishlistKey(owner), func(ctx context.Context) (any, error) {
		return c.Wishlist.List(ctx, owner)
	})
}

func (c *Client) owner() (string, error) {
	id, ok := c.Session.UserID()
	if !ok {
		return "", ErrUnauthorized
	}
	return id, nil
}

func (c *Client) count(ctx context.Context, name string, dims map[string]string) {
	if c.Metrics != nil {
		c.Metrics.Count(ctx, name, 1, dims)
	}
}

// ListAddresses reads the owner's addresses through the cache.
func (c *Client) ListAddresses(ctx context.Context) ([]addresses.Address, error) {
	owner, err := c.owner()
	if err != nil {
		return nil, err
	}
	v, err := c.Cache.Read(ctx, AddressesKey(owner))
	if err != nil {
		return nil, err
	}
	addrs, _ := cache.ValueAs[[]addresses.Address](v)
	return addrs, nil
}

// SetDefaultAddress moves the default flag to addressID. The whole
// owner-scoped collection is rewritten in one cache write, so a reader
// never observes two defaults or zero defaults mid-transition. A target
// that is already default resolves immediately with zero remote writes;
// a target missing from the collection is rejected before any write.
func (c *Client) SetDefaultAddress(ctx context.Context, addressID string) error {
	owner, err := c.owner()
	if err != nil {
		return err
	}

	current, err := c.ListAddresses(ctx)
	if err != nil {
		return err
	}
	found := false
	for _, a := range current {
		if a.AddressID != addressID {
			continue
		}
		if a.IsDefault {
			return nil
		}
		found = true
	}
	if !found {
		return addresses.ErrNotFound
	}

	key := AddressesKey(owner)
	opt := mutation.Optimistic{
		Cache: c.Cache,
		Keys:  []cache.QueryKey{key},
		Apply: func(l *cache.Layer) {
			l.Swap(key, func(old any) any {
				addrs, ok := cache.ValueAs[[]addresses.Address](old)
				if !ok {
					return old
				}
				next := make([]addresses.Address, len(addrs))
				for i, a := range addrs {
					a.IsDefault = a.AddressID == addressID
					next[i] = a
				}
				return next
			})
		},
	}

	exec := &mutation.Executor[string, struct{}]{
		Run: func(ctx context.Context, id string) (struct{}, error) {
			return struct{}{}, c.Addresses.SetDefault(ctx, owner, id)
		},
		OnMutate: func(ctx context.Context, id string) (any, error) {
			return opt.Begin(ctx), nil
		},
		OnSuccess: func(ctx context.Context, _ struct{}, id string) {
			opt.Commit(ctx)
		},
		OnError: func(ctx context.Context, err error, id string, prev any) {
			opt.Rollback(prev)
		},
	}
	_, err = exec.Mutate(ctx, addressID)
	c.count(ctx, "SetDefaultAddress", map[string]string{"outcome": exec.Status()})
	return err
}

// CancelOrder optimistically rewrites the order's status to Cancelled.
// Orders past Processing are rejected before any cache write happens.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	owner, err := c.owner()
	if err != nil {
		return err
	}

	listKey := OrdersKey(owner)
	itemKey := OrderKey(owner, orderID)
	opt := mutation.Optimistic{
		Cache: c.Cache,
		Keys:  []cache.QueryKey{listKey, itemKey},
		Apply: func(l *cache.Layer) {
			l.Swap(listKey, func(old any) any {
				list, ok := cache.ValueAs[[]orders.Order](old)
				if !ok {
					return old
				}
				next := make([]orders.Order, len(list))
				for i, o := range list {
					if o.OrderID == orderID {
						o.StatusID = orders.StatusCancelled
					}
					next[i] = o
				}
				return next
			})
			if e, ok := l.Get(itemKey); ok {
				if o, ok := cache.ValueAs[orders.Order](e.Value); ok {
					o.StatusID = orders.StatusCancelled
					l.Set(itemKey, o)
				}
			}
		},
	}

	exec := &mutation.Executor[string, *orders.Order]{
		Run: func(ctx context.Context, id string) (*orders.Order, error) {
			return c.Orders.Cancel(ctx, owner, id)
		},
		OnMutate: func(ctx context.Context, id string) (any, error) {
			o, err := c.cachedOrder(ctx, owner, id)
			if err != nil {
				return nil, err
			}
			if !o.StatusID.Cancellable() {
				return nil, orders.ErrNotCancellable
			}
			return opt.Begin(ctx), nil
		},
		OnSuccess: func(ctx context.Context, _ *orders.Order, id string) {
			opt.Commit(ctx)
		},
		OnError: func(ctx context.Context, err error, id string, prev any) {
			opt.Rollback(prev)
		},
	}
	_, err = exec.Mutate(ctx, orderID)
	c.count(ctx, "CancelOrder", map[string]string{"outcome": exec.Status()})
	return err
}

func (c *Client) cachedOrder(ctx context.Context, owner, orderID string) (*orders.Order, error) {
	if e, ok := c.Cache.Get(OrderKey(owner, orderID)); ok {
		if o, ok := cache.ValueAs[orders.Order](e.Value); ok {
			return &o, nil
		}
	}
	v, err := c.Cache.Read(ctx, OrdersKey(owner))
	if err != nil {
		return nil, err
	}
	list, _ := cache.ValueAs[[]orders.Order](v)
	for _, o := range list {
		if o.OrderID == orderID {
			return &o, nil
		}
	}
	return nil, orders.ErrNotFound
}

// ToggleWishlist flips membership optimistically and reconciles with the
// store's answer.
func (c *Client) ToggleWishlist(ctx context.Context, productID string) (bool, error) {
	owner, err := c.owner()
	if err != nil {
		return false, err
	}

	key := WishlistKey(owner)
	opt := mutation.Optimistic{
		Cache: c.Cache,
		Keys:  []cache.QueryKey{key},
		Apply: func(l *cache.Layer) {
			l.Swap(key, func(old any) any {
				items, ok := cache.ValueAs[[]wishlist.Item](old)
				if !ok {
					return old
				}
				next := make([]wishlist.Item, 0, len(items)+1)
				found := false
				for _, it := range items {
					if it.ProductID == productID {
						found = true
						continue
					}
					next = append(next, it)
				}
				if !found {
					next = append(next, wishlist.Item{OwnerID: owner, ProductID: productID})
				}
				return next
			})
		},
	}

	exec := &mutation.Executor[string, bool]{
		Run: func(ctx context.Context, id string) (bool, error) {
			return c.Wishlist.Toggle(ctx, owner, id)
		},
		OnMutate: func(ctx context.Context, id string) (any, error) {
			return opt.Begin(ctx), nil
		},
		OnSuccess: func(ctx context.Context, _ bool, id string) {
			opt.Commit(ctx)
		},
		OnError: func(ctx context.Context, err error, id string, prev any) {
			opt.Rollback(prev)
		},
	}
	on, err := exec.Mutate(ctx, productID)
	if err != nil {
		return false, fmt.Errorf("toggle wishlist: %w", err)
	}
	return on, nil
}
