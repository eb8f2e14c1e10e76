package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nikolayk812/storefront-checkout/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/text/currency"
)

const ordersCollection = "orders"

var ErrOrderExists = errors.New("order already recorded")

// OrderRepository is the Mongo-backed order history. Orders are write-once.
type OrderRepository struct {
	collection *mongo.Collection
}

func NewOrderRepository(db *mongo.Database) *OrderRepository {
	return &OrderRepository{collection: db.Collection(ordersCollection)}
}

func (r *OrderRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "order_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "order_date", Value: -1}},
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("collection.Indexes.CreateMany: %w", err)
	}

	return nil
}

func (r *OrderRepository) Record(ctx context.Context, order domain.Order) error {
	if order.ID == "" {
		return fmt.Errorf("orderID is empty")
	}

	_, err := r.collection.InsertOne(ctx, orderToDocument(order))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("order[%s]: %w", order.ID, ErrOrderExists)
		}
		return fmt.Errorf("collection.InsertOne: %w", err)
	}

	return nil
}

func (r *OrderRepository) Get(ctx context.Context, orderID string) (domain.Order, error) {
	var doc orderDocument

	err := r.collection.FindOne(ctx, bson.M{"order_id": orderID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Order{}, fmt.Errorf("order[%s]: %w", orderID, domain.ErrNotFound)
		}
		return domain.Order{}, fmt.Errorf("collection.FindOne: %w", err)
	}

	return documentToOrder(doc)
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "order_date", Value: -1}, {Key: "order_id", Value: -1}})

	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("collection.Find: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []orderDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("cursor.All: %w", err)
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order, err := documentToOrder(doc)
		if err != nil {
			return nil, fmt.Errorf("documentToOrder[%s]: %w", doc.OrderID, err)
		}
		orders = append(orders, order)
	}

	return orders, nil
}

type moneyDocument struct {
	Minor    int64  `bson:"minor"`
	Currency string `bson:"currency"`
}

type orderItemDocument struct {
	ProductID int64         `bson:"product_id"`
	Name      string        `bson:"name"`
	ImageURL  string        `bson:"image_url,omitempty"`
	UnitPrice moneyDocument `bson:"unit_price"`
	Quantity  int           `bson:"quantity"`
}

type orderDocument struct {
	OrderID           string              `bson:"order_id"`
	UserID            int64               `bson:"user_id"`
	Items             []orderItemDocument `bson:"items"`
	Subtotal          moneyDocument       `bson:"subtotal"`
	ShippingFee       moneyDocument       `bson:"shipping_fee"`
	Tax               moneyDocument       `bson:"tax"`
	Total             moneyDocument       `bson:"total"`
	ShippingAddress   domain.OrderAddress `bson:"shipping_address"`
	PaymentMethod     string              `bson:"payment_method"`
	PaymentID         string              `bson:"payment_id"`
	OrderDate         time.Time           `bson:"order_date"`
	EstimatedDelivery time.Time           `bson:"estimated_delivery"`
}

func toMoneyDocument(m domain.Money) moneyDocument {
	return moneyDocument{Minor: m.Minor, Currency: m.Currency.String()}
}

func fromMoneyDocument(doc moneyDocument) (domain.Money, error) {
	cur, err := currency.ParseISO(doc.Currency)
	if err != nil {
		return domain.Money{}, fmt.Errorf("currency[%s] is not valid: %w", doc.Currency, err)
	}
	return domain.Money{Minor: doc.Minor, Currency: cur}, nil
}

func orderToDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			ImageURL:  item.ImageURL,
			UnitPrice: toMoneyDocument(item.UnitPrice),
			Quantity:  item.Quantity,
		})
	}

	return orderDocument{
		OrderID:           order.ID,
		UserID:            order.UserID,
		Items:             items,
		Subtotal:          toMoneyDocument(order.Price.Subtotal),
		ShippingFee:       toMoneyDocument(order.Price.ShippingFee),
		Tax:               toMoneyDocument(order.Price.Tax),
		Total:             toMoneyDocument(order.Price.Total),
		ShippingAddress:   order.ShippingAddress,
		PaymentMethod:     string(order.PaymentMethod),
		PaymentID:         order.PaymentID,
		OrderDate:         order.OrderDate.UTC(),
		EstimatedDelivery: order.EstimatedDelivery.UTC(),
	}
}

func documentToOrder(doc orderDocument) (domain.Order, error) {
	var (
		price domain.PriceBreakdown
		err   error
	)

	if price.Subtotal, err = fromMoneyDocument(doc.Subtotal); err != nil {
		return domain.Order{}, fmt.Errorf("subtotal: %w", err)
	}
	if price.ShippingFee, err = fromMoneyDocument(doc.ShippingFee); err != nil {
		return domain.Order{}, fmt.Errorf("shipping fee: %w", err)
	}
	if price.Tax, err = fromMoneyDocument(doc.Tax); err != nil {
		return domain.Order{}, fmt.Errorf("tax: %w", err)
	}
	if price.Total, err = fromMoneyDocument(doc.Total); err != nil {
		return domain.Order{}, fmt.Errorf("total: %w", err)
	}

	items := make([]domain.OrderItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		unitPrice, err := fromMoneyDocument(item.UnitPrice)
		if err != nil {
			return domain.Order{}, fmt.Errorf("item[%d]: %w", item.ProductID, err)
		}
		items = append(items, domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			ImageURL:  item.ImageURL,
			UnitPrice: unitPrice,
			Quantity:  item.Quantity,
		})
	}

	return domain.Order{
		ID:                doc.OrderID,
		UserID:            doc.UserID,
		Items:             items,
		Price:             price,
		ShippingAddress:   doc.ShippingAddress,
		PaymentMethod:     domain.PaymentMethod(doc.PaymentMethod),
		PaymentID:         doc.PaymentID,
		OrderDate:         doc.OrderDate,
		EstimatedDelivery: doc.EstimatedDelivery,
	}, nil
}
