package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeAccepted   = "accepted"
	outcomeDropped    = "dropped"
	outcomeRejected   = "rejected"
	outcomeFailed     = "failed"
	outcomeOK         = "ok"
	outcomeSuperseded = "superseded"
)

var (
	cartAddsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cart_adds_total",
			Help: "Cart add requests by outcome",
		},
		[]string{"outcome"},
	)

	remoteCartAddsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cart_remote_adds_total",
			Help: "Background cart adds sent to the API by outcome",
		},
		[]string{"outcome"},
	)

	cartSyncsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cart_syncs_total",
			Help: "Cart reconciliations with the server by outcome",
		},
		[]string{"outcome"},
	)

	wishlistOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_wishlist_operations_total",
			Help: "Wishlist operations by action and outcome",
		},
		[]string{"action", "outcome"},
	)
)
