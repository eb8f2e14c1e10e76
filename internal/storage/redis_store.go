// Package storage is the local durable store of a checkout client: the last
// confirmed cart and the last placed order, kept in Redis.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/nikolayk812/storefront-checkout/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	defaultCartTTL = 24 * time.Hour
	maxJitter      = 30 * time.Minute
)

type RedisStore struct {
	client  *redis.Client
	cartTTL time.Duration
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:  client,
		cartTTL: defaultCartTTL,
	}
}

type cartItemRecord struct {
	LineID    int64        `json:"lineId"`
	ProductID int64        `json:"productId"`
	Name      string       `json:"name"`
	ImageURL  string       `json:"image,omitempty"`
	UnitPrice domain.Money `json:"unitPrice"`
	Quantity  int          `json:"quantity"`
	AddedAt   time.Time    `json:"addedAt"`
}

type cartRecord struct {
	OwnerID        int64            `json:"ownerId"`
	Items          []cartItemRecord `json:"items"`
	ServerSyncedAt time.Time        `json:"serverSyncedAt"`
}

func (s *RedisStore) SaveCart(ctx context.Context, cart domain.Cart) error {
	record := cartRecord{
		OwnerID:        cart.OwnerID,
		Items:          make([]cartItemRecord, 0, len(cart.Items)),
		ServerSyncedAt: cart.ServerSyncedAt,
	}
	for _, item := range cart.Items {
		record.Items = append(record.Items, cartItemRecord(item))
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("json.Marshal: %w", err)
	}

	jitter := time.Duration(rand.Int64N(int64(maxJitter)))
	if err := s.client.Set(ctx, cartKey(cart.OwnerID), data, s.cartTTL+jitter).Err(); err != nil {
		return fmt.Errorf("client.Set: %w", err)
	}
	return nil
}

// LoadCart returns domain.ErrNotFound when no snapshot is stored.
func (s *RedisStore) LoadCart(ctx context.Context, ownerID int64) (domain.Cart, error) {
	data, err := s.client.Get(ctx, cartKey(ownerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Cart{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Cart{}, fmt.Errorf("client.Get: %w", err)
	}

	var record cartRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return domain.Cart{}, fmt.Errorf("json.Unmarshal: %w", err)
	}

	cart := domain.Cart{
		OwnerID:        record.OwnerID,
		Items:          make([]domain.CartItem, 0, len(record.Items)),
		ServerSyncedAt: record.ServerSyncedAt,
	}
	for _, item := range record.Items {
		cart.Items = append(cart.Items, domain.CartItem(item))
	}
	return cart, nil
}

func (s *RedisStore) DeleteCart(ctx context.Context, ownerID int64) error {
	if err := s.client.Del(ctx, cartKey(ownerID)).Err(); err != nil {
		return fmt.Errorf("client.Del: %w", err)
	}
	return nil
}

// SaveLastOrder hands the order to the confirmation display. It does not
// expire.
func (s *RedisStore) SaveLastOrder(ctx context.Context, order domain.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("json.Marshal: %w", err)
	}

	if err := s.client.Set(ctx, lastOrderKey(order.UserID), data, 0).Err(); err != nil {
		return fmt.Errorf("client.Set: %w", err)
	}
	return nil
}

func (s *RedisStore) LastOrder(ctx context.Context, userID int64) (domain.Order, error) {
	data, err := s.client.Get(ctx, lastOrderKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Order{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("client.Get: %w", err)
	}

	var order domain.Order
	if err := json.Unmarshal(data, &order); err != nil {
		return domain.Order{}, fmt.Errorf("json.Unmarshal: %w", err)
	}
	return order, nil
}

func cartKey(ownerID int64) string {
	return fmt.Sprintf("cart:%d", ownerID)
}

func lastOrderKey(userID int64) string {
	return fmt.Sprintf("last_order:%d", userID)
}
