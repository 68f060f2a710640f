package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/pkg/httpclient"
	"github.com/utafrali/storefront/pkg/logger"
)

// Shopper-facing fallbacks used when the API gives no message.
const (
	msgCatalogUnavailable = "Products could not be loaded. Please try again."
	msgCartFailed         = "The cart could not be updated."
	msgWishlistAddFailed  = "The product could not be added to your wishlist."
	msgWishlistDelFailed  = "The product could not be removed from your wishlist."
	msgWishlistLoadFailed = "Your wishlist could not be loaded."
)

const maxBodyBytes = 4 << 20

// Client implements CatalogAPI, CartAPI and WishlistAPI over HTTP.
type Client struct {
	baseURL  string
	plain    httpclient.Doer
	retrying httpclient.Doer
	logger   *slog.Logger
}

var (
	_ CatalogAPI  = (*Client)(nil)
	_ CartAPI     = (*Client)(nil)
	_ WishlistAPI = (*Client)(nil)
)

// NewClient creates an API client. plain performs single-attempt calls;
// retrying is used for the retrying cart add.
func NewClient(baseURL string, plain, retrying httpclient.Doer, logger *slog.Logger) *Client {
	if retrying == nil {
		retrying = plain
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		plain:    plain,
		retrying: retrying,
		logger:   logger,
	}
}

// ListProducts returns the whole catalog in API order.
func (c *Client) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var dtos []productDTO
	if err := c.getJSON(ctx, "/products", msgCatalogUnavailable, &dtos); err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0, len(dtos))
	for _, d := range dtos {
		products = append(products, d.toDomain())
	}
	return products, nil
}

// GetProduct returns one product.
func (c *Client) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var dto productDTO
	if err := c.getJSON(ctx, "/products/"+url.PathEscape(id), "The product could not be loaded.", &dto); err != nil {
		return nil, err
	}
	p := dto.toDomain()
	return &p, nil
}

// ListCategories returns all categories.
func (c *Client) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var dtos []categoryDTO
	if err := c.getJSON(ctx, "/categories", msgCatalogUnavailable, &dtos); err != nil {
		return nil, err
	}
	cats := make([]domain.Category, 0, len(dtos))
	for _, d := range dtos {
		cats = append(cats, domain.Category{ID: string(d.ID), Name: d.Name, Slug: d.Slug})
	}
	return cats, nil
}

// AddToCart posts one cart add for the actor in req.
func (c *Client) AddToCart(ctx context.Context, req AddToCartRequest, retry bool) error {
	doer := c.plain
	if retry {
		doer = c.retrying
	}
	return c.send(ctx, doer, http.MethodPost, "/cart", req, msgCartFailed)
}

// GetCart returns the server cart of actorID.
func (c *Client) GetCart(ctx context.Context, actorID string) ([]domain.CartItem, error) {
	body, err := c.get(ctx, "/cart?userId="+url.QueryEscape(actorID), msgCartFailed)
	if err != nil {
		return nil, err
	}

	var dtos []cartItemDTO
	var cart cartDTO
	if err := decodeBody(body, &cart); err == nil {
		dtos = cart.Items
	} else if err := decodeBody(body, &dtos); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}

	items := make([]domain.CartItem, 0, len(dtos))
	for _, d := range dtos {
		items = append(items, d.toDomain())
	}
	return items, nil
}

// GetWishlist returns the user's wishlist entries.
func (c *Client) GetWishlist(ctx context.Context, userID string) ([]domain.WishlistEntry, error) {
	var dtos []wishlistEntryDTO
	if err := c.getJSON(ctx, wishlistPath(userID), msgWishlistLoadFailed, &dtos); err != nil {
		return nil, err
	}
	entries := make([]domain.WishlistEntry, 0, len(dtos))
	for _, d := range dtos {
		entries = append(entries, d.toDomain())
	}
	return entries, nil
}

// AddToWishlist adds productID to the user's wishlist.
func (c *Client) AddToWishlist(ctx context.Context, userID, productID string) error {
	body := map[string]string{"productId": productID}
	return c.send(ctx, c.plain, http.MethodPost, wishlistPath(userID), body, msgWishlistAddFailed)
}

// RemoveFromWishlist removes productID from the user's wishlist.
func (c *Client) RemoveFromWishlist(ctx context.Context, userID, productID string) error {
	path := wishlistPath(userID) + "/product/" + url.PathEscape(productID)
	return c.send(ctx, c.plain, http.MethodDelete, path, nil, msgWishlistDelFailed)
}

// InWishlist asks the API whether productID is on the user's wishlist.
func (c *Client) InWishlist(ctx context.Context, userID, productID string) (bool, error) {
	var out checkDTO
	path := wishlistPath(userID) + "/check/" + url.PathEscape(productID)
	if err := c.getJSON(ctx, path, msgWishlistLoadFailed, &out); err != nil {
		return false, err
	}
	return out.InWishlist, nil
}

func wishlistPath(userID string) string {
	return "/user/" + url.PathEscape(userID) + "/wishlist"
}

func (c *Client) getJSON(ctx context.Context, path, fallback string, dst any) error {
	body, err := c.get(ctx, path, fallback)
	if err != nil {
		return err
	}
	if err := decodeBody(body, dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path, fallback string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, c.plain, req, fallback)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return body, nil
}

func (c *Client) send(ctx context.Context, doer httpclient.Doer, method, path string, payload any, fallback string) error {
	req, err := c.newRequest(ctx, method, path, payload)
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, doer, req, fallback)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	return resp.Body.Close()
}

// do executes req and maps transport failures and non-2xx answers to
// AppErrors carrying a shopper-facing message.
func (c *Client) do(ctx context.Context, doer httpclient.Doer, req *http.Request, fallback string) (*http.Response, error) {
	resp, err := doer.Do(ctx, req)
	if err != nil {
		logger.WithContext(ctx, c.logger).WarnContext(ctx, "storefront api call failed",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.String("error", err.Error()),
		)
		return nil, httpclient.FromError(err, fallback)
	}
	if !httpclient.IsSuccess(resp.StatusCode) {
		return nil, httpclient.ParseResponseError(resp, fallback)
	}
	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	var body io.Reader = http.NoBody
	var raw []byte
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create %s %s: %w", method, path, err)
	}
	if raw != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		req.Header.Set("X-Correlation-ID", id)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	return req, nil
}
