// Package service holds the storefront operations views call: the unified
// cart and wishlist operations, cart reconciliation, the catalog view model
// and the product-card click guard.
package service

import (
	"time"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// Toast texts for failures the shopper sees.
const (
	msgCartSaveFailed     = "We could not add this product to your cart. Please try again."
	msgCartReadFailed     = "We could not load your cart. Please refresh the page."
	msgWishlistSignIn     = "Please sign in to use your wishlist."
	msgWishlistSaveFailed = "Your wishlist changed but this page could not be updated. Please refresh."
	msgWishlistReadFailed = "We could not load your wishlist. Please refresh the page."
	msgSessionSaveFailed  = "We could not update your session. Please try again."
)

// localFailure wraps a local cache error into an internal error carrying
// shopper-facing text.
func localFailure(err error, message string) *apperrors.AppError {
	appErr := apperrors.Internal(err)
	appErr.Message = message
	return appErr
}

func utcNow() time.Time {
	return time.Now().UTC()
}
