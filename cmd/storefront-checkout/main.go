// Command storefront-checkout runs one checkout against the storefront
// backend: it restores the cart, optionally adds a product, resolves the
// shipping address and places the order. With -history or -order it lists
// past orders instead.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nikolayk812/storefront-checkout/internal/address"
	"github.com/nikolayk812/storefront-checkout/internal/cartmirror"
	"github.com/nikolayk812/storefront-checkout/internal/checkout"
	"github.com/nikolayk812/storefront-checkout/internal/config"
	"github.com/nikolayk812/storefront-checkout/internal/domain"
	"github.com/nikolayk812/storefront-checkout/internal/httpapi"
	"github.com/nikolayk812/storefront-checkout/internal/logging"
	"github.com/nikolayk812/storefront-checkout/internal/payment"
	"github.com/nikolayk812/storefront-checkout/internal/port"
	"github.com/nikolayk812/storefront-checkout/internal/repository"
	"github.com/nikolayk812/storefront-checkout/internal/session"
	"github.com/nikolayk812/storefront-checkout/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type options struct {
	productID int64
	quantity  int
	addressID int64
	history   bool
	orderID   string

	details domain.PaymentDetails
}

func parseFlags() options {
	var (
		opts   options
		method string
	)

	flag.Int64Var(&opts.productID, "product", 0, "product to add before checkout")
	flag.IntVar(&opts.quantity, "qty", 1, "quantity of -product")
	flag.Int64Var(&opts.addressID, "address", 0, "shipping address id, default address when 0")
	flag.StringVar(&method, "method", string(domain.PaymentMethodCOD), "payment method: card, upi, cod or paypal")
	flag.StringVar(&opts.details.CardNumber, "card-number", "", "card number")
	flag.StringVar(&opts.details.Expiry, "card-expiry", "", "card expiry as MM/YY")
	flag.StringVar(&opts.details.CVV, "card-cvv", "", "card cvv")
	flag.StringVar(&opts.details.CardName, "card-name", "", "name on card")
	flag.StringVar(&opts.details.UPIID, "upi", "", "UPI id")
	flag.BoolVar(&opts.history, "history", false, "list placed orders and exit")
	flag.StringVar(&opts.orderID, "order", "", "show one placed order and exit")
	flag.Parse()

	opts.details.Method = domain.PaymentMethod(method)
	return opts
}

func main() {
	if err := run(parseFlags()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config.Load: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return fmt.Errorf("logging.New: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	identity, err := session.IdentityFromToken(domain.Credential(cfg.APIToken))
	if err != nil {
		return fmt.Errorf("API_TOKEN must be a storefront JWT: %w", err)
	}

	sessions := session.NewStore(logger)
	sess, err := sessions.Login(identity)
	if err != nil {
		return fmt.Errorf("sessions.Login: %w", err)
	}
	defer sessions.Logout(sess)

	client, err := httpapi.New(httpapi.Config{
		BaseURL:  cfg.BackendURL,
		Timeout:  cfg.RequestTimeout,
		Currency: cfg.Currency,
	}, &http.Client{}, logger)
	if err != nil {
		return fmt.Errorf("httpapi.New: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	var (
		snapshots     port.CartSnapshotStore
		confirmations port.ConfirmationStore
	)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, cart snapshots disabled", zap.Error(err))
	} else {
		store := storage.NewRedisStore(redisClient)
		snapshots, confirmations = store, store
	}

	mongoDB, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return fmt.Errorf("repository.ConnectMongoDB: %w", err)
	}
	defer func() { _ = mongoDB.Client().Disconnect(context.Background()) }()

	history := repository.NewOrderRepository(mongoDB)
	if err := history.CreateIndexes(ctx); err != nil {
		return fmt.Errorf("history.CreateIndexes: %w", err)
	}

	mirror := cartmirror.New(sess, client, client, snapshots, logger)
	sess.OnTeardown(mirror.Reset)

	resolver := address.NewResolver(sess, client, cfg.AddressCap, logger)

	orchestrator, err := checkout.NewOrchestrator(checkout.Deps{
		Cart:             mirror,
		Addresses:        resolver,
		Validator:        payment.NewValidator(time.Now),
		Payments:         payment.NewSimulator(cfg.PaymentDelay, logger),
		History:          history,
		Confirmations:    confirmations,
		Rules:            cfg.PricingRules(),
		DeliveryEstimate: cfg.DeliveryEstimate,
		Logger:           logger,
	})
	if err != nil {
		return fmt.Errorf("checkout.NewOrchestrator: %w", err)
	}

	switch {
	case opts.orderID != "":
		order, err := orchestrator.OrderDetail(ctx, identity.UserID, opts.orderID)
		if err != nil {
			return fmt.Errorf("orchestrator.OrderDetail: %w", err)
		}
		printOrder(order)
		return nil
	case opts.history:
		orders, err := orchestrator.History(ctx, identity.UserID)
		if err != nil {
			return fmt.Errorf("orchestrator.History: %w", err)
		}
		if len(orders) == 0 {
			fmt.Println("no orders yet")
		}
		for _, o := range orders {
			fmt.Printf("%s  %s  %-6s  %s\n", o.OrderDate.Format(time.DateOnly), o.ID, o.PaymentMethod, o.Price.Total)
		}
		return nil
	}

	if _, err := mirror.Restore(ctx); err != nil {
		logger.Warn("cart snapshot not restored", zap.Error(err))
	}

	if opts.productID > 0 {
		cart, err := mirror.AddItem(ctx, opts.productID, opts.quantity)
		if err != nil {
			return fmt.Errorf("mirror.AddItem: %w", err)
		}
		logger.Info("item added", zap.Int64("product_id", opts.productID), zap.Int("items", cart.ItemCount()))
	}

	flow, err := orchestrator.Begin(ctx, identity)
	if err != nil {
		return fmt.Errorf("orchestrator.Begin: %w", err)
	}

	if flow.State() == checkout.StateNoAddress {
		return fmt.Errorf("add a shipping address first: %w", domain.ErrNoAddress)
	}
	if opts.addressID > 0 {
		if err := flow.SelectAddress(opts.addressID); err != nil {
			return fmt.Errorf("flow.SelectAddress: %w", err)
		}
	}
	if err := flow.ConfirmAddress(); err != nil {
		return fmt.Errorf("flow.ConfirmAddress: %w", err)
	}

	order, err := flow.Submit(ctx, opts.details)
	if err != nil {
		for field, reason := range flow.Errors() {
			fmt.Fprintf(os.Stderr, "%s: %s\n", field, reason)
		}
		return fmt.Errorf("flow.Submit: %w", err)
	}

	confirmed, err := orchestrator.LastOrder(ctx, identity.UserID)
	if err != nil || confirmed.ID != order.ID {
		logger.Warn("confirmation not found, showing submitted order", zap.String("order_id", order.ID), zap.Error(err))
		confirmed = order
	}

	fmt.Printf("order %s placed\n", confirmed.ID)
	printOrder(confirmed)

	return nil
}

func printOrder(order domain.Order) {
	for _, item := range order.Items {
		fmt.Printf("  %3d x %-24s %s\n", item.Quantity, item.Name, item.UnitPrice)
	}
	fmt.Printf("  subtotal  %s\n", order.Price.Subtotal)
	fmt.Printf("  shipping  %s\n", order.Price.ShippingFee)
	fmt.Printf("  tax       %s\n", order.Price.Tax)
	fmt.Printf("  total     %s\n", order.Price.Total)
	fmt.Printf("  payment   %s %s\n", order.PaymentMethod, order.PaymentID)
	fmt.Printf("  ship to   %s %s, %s\n", order.ShippingAddress.FirstName, order.ShippingAddress.LastName, order.ShippingAddress.City)
	fmt.Printf("  delivery  %s\n", order.EstimatedDelivery.Format(time.DateOnly))
}
