package storefront

import "github.com/aromabay/storefront/internal/cache"

// Cache keys are owner-scoped: the addresses collection, the orders
// collection, a single order, and the wishlist collection.

func AddressesKey(ownerID string) cache.QueryKey {
	return cache.QueryKey{Entity: "addresses", OwnerID: ownerID}
}

func OrdersKey(ownerID string) cache.QueryKey {
	return cache.QueryKey{Entity: "orders", OwnerID: ownerID}
}

func OrderKey(ownerID, orderID string) cache.QueryKey {
	return cache.QueryKey{Entity: "orders", OwnerID: ownerID, Qualifier: orderID}
}

func WishlistKey(ownerID string) cache.QueryKey {
	return cache.QueryKey{Entity: "wishlist", OwnerID: ownerID}
}
