package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/middleware"
)

const (
	requestTimeout = 30 * time.Second
	catalogMaxAge  = 60
)

// Services groups what the router dispatches to.
type Services struct {
	Catalog  *service.CatalogService
	Cart     *service.CartService
	Card     *service.ProductCard
	Wishlist *service.WishlistService
	Sessions *service.SessionService
}

// NewRouter creates a chi router with all storefront routes registered.
func NewRouter(
	svc Services,
	events *EventStream,
	issuer *middleware.TokenIssuer,
	cors middleware.CORSConfig,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics())
	r.Use(middleware.Tracing("storefront"))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(cors))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	catalogHandler := NewCatalogHandler(svc.Catalog, logger)
	cartHandler := NewCartHandler(svc.Cart, svc.Card, svc.Catalog, logger)
	wishlistHandler := NewWishlistHandler(svc.Wishlist, logger)
	sessionHandler := NewSessionHandler(svc.Sessions, svc.Cart, issuer, logger)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Session())
		r.Use(middleware.OptionalAuth(issuer, logger))
		r.Use(ResolveSession(svc.Sessions))

		// Streams stay open, so they sit outside the request timeout.
		r.With(middleware.NoStore()).Get("/api/v1/events", events.ServeHTTP)

		r.Route("/api/v1", func(r chi.Router) {
			r.Use(chimw.Timeout(requestTimeout))
			r.Use(ContentTypeJSON)

			r.Group(func(r chi.Router) {
				r.Use(middleware.CacheControl(catalogMaxAge))
				r.Get("/products", catalogHandler.ListProducts)
				r.Get("/products/{id}", catalogHandler.GetProduct)
				r.Get("/categories", catalogHandler.ListCategories)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.NoStore())

				r.Post("/products/{id}/cart", cartHandler.CardAdd)

				r.Route("/cart", func(r chi.Router) {
					r.Get("/", cartHandler.GetCart)
					r.Post("/items", cartHandler.AddItem)
					r.Post("/sync", cartHandler.Sync)
					r.Post("/force", cartHandler.Force)
				})

				r.Route("/wishlist", func(r chi.Router) {
					r.Get("/", wishlistHandler.GetWishlist)
					r.Post("/", wishlistHandler.Add)
					r.Post("/toggle", wishlistHandler.Toggle)
					r.Get("/{productID}", wishlistHandler.Check)
					r.Delete("/{productID}", wishlistHandler.Remove)
				})

				r.Route("/session", func(r chi.Router) {
					r.Get("/", sessionHandler.Get)
					r.Post("/", sessionHandler.SignIn)
					r.Delete("/", sessionHandler.SignOut)
				})
			})
		})
	})

	return r
}
