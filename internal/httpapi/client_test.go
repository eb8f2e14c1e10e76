package httpapi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nikolayk812/storefront-checkout/internal/domain"
	"github.com/nikolayk812/storefront-checkout/internal/fakebackend"
	"github.com/nikolayk812/storefront-checkout/internal/httpapi"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"
	"golang.org/x/text/currency"
)

type clientSuite struct {
	suite.Suite

	server  *httptest.Server
	catalog *fakebackend.Catalog
	client  *httpapi.Client
	user    domain.Identity
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(clientSuite))
}

func (s *clientSuite) SetupTest() {
	logger := zaptest.NewLogger(s.T())

	s.catalog = fakebackend.NewCatalog(
		fakebackend.Product{ID: 1, Name: "Keyboard", Price: fakebackend.ParsePrice("100.00", currency.USD), Stock: 5},
		fakebackend.Product{ID: 2, Name: "Mouse", Price: fakebackend.ParsePrice("29.99", currency.USD), Stock: 50},
	)

	auth := fakebackend.NewAuthenticator("secret")
	s.user = domain.Identity{UserID: 7, Username: "ada", Token: "opaque-7"}
	auth.Register(s.user)

	backend := fakebackend.NewServer(s.catalog, fakebackend.NewMemoryCartRepository(),
		fakebackend.NewMemoryAddressStore(), auth, currency.USD, logger)
	s.server = httptest.NewServer(backend.Router())

	client, err := httpapi.New(httpapi.Config{
		BaseURL:       s.server.URL,
		Timeout:       time.Second,
		Currency:      currency.USD,
		RetryInterval: time.Millisecond,
	}, s.server.Client(), logger)
	s.Require().NoError(err)
	s.client = client
}

func (s *clientSuite) TearDownTest() {
	s.server.Close()
}

func (s *clientSuite) TestCartLifecycle() {
	ctx := context.Background()

	cart, err := s.client.GetCart(ctx, s.user)
	s.Require().NoError(err)
	s.True(cart.IsEmpty())

	cart, err = s.client.AddItem(ctx, s.user, 1, 2)
	s.Require().NoError(err)
	s.Require().Len(cart.Items, 1)

	line := cart.Items[0]
	s.Equal(int64(7), cart.OwnerID)
	s.Equal(int64(1), line.ProductID)
	s.Equal("Keyboard", line.Name)
	s.Equal("USD 100.00", line.UnitPrice.String())
	s.Equal(2, line.Quantity)

	cart, err = s.client.UpdateItem(ctx, s.user, line.LineID, 4)
	s.Require().NoError(err)
	s.Equal(4, cart.Items[0].Quantity)

	cart, err = s.client.AddItem(ctx, s.user, 2, 1)
	s.Require().NoError(err)
	s.Len(cart.Items, 2)

	cart, err = s.client.RemoveItem(ctx, s.user, line.LineID)
	s.Require().NoError(err)
	s.Require().Len(cart.Items, 1)
	s.Equal(int64(2), cart.Items[0].ProductID)

	s.Require().NoError(s.client.ClearCart(ctx, s.user))
	cart, err = s.client.GetCart(ctx, s.user)
	s.Require().NoError(err)
	s.True(cart.IsEmpty())
}

func (s *clientSuite) TestStatusMapping() {
	ctx := context.Background()

	s.Run("unknown token: error", func() {
		_, err := s.client.GetCart(ctx, domain.Identity{UserID: 7, Token: "stolen"})
		s.ErrorIs(err, domain.ErrUnauthenticated)
	})

	s.Run("missing token: error", func() {
		_, err := s.client.GetCart(ctx, domain.Identity{UserID: 7})
		s.ErrorIs(err, domain.ErrUnauthenticated)
	})

	s.Run("quantity over max: validation error", func() {
		_, err := s.client.AddItem(ctx, s.user, 2, 11)

		vErr, ok := domain.AsValidation(err)
		s.Require().True(ok)
		s.NotEmpty(vErr.Field("quantity"))
	})

	s.Run("over stock: out of stock", func() {
		_, err := s.client.AddItem(ctx, s.user, 1, 6)
		s.ErrorIs(err, domain.ErrOutOfStock)
	})

	s.Run("unknown product: not found", func() {
		_, err := s.client.AddItem(ctx, s.user, 404, 1)
		s.ErrorIs(err, domain.ErrNotFound)
	})

	s.Run("unknown line: not found", func() {
		_, err := s.client.UpdateItem(ctx, s.user, 999, 1)
		s.ErrorIs(err, domain.ErrNotFound)
	})
}

func (s *clientSuite) TestAvailableStock() {
	ctx := context.Background()

	stock, err := s.client.AvailableStock(ctx, s.user, 1)
	s.Require().NoError(err)
	s.Equal(5, stock)

	s.True(s.catalog.SetStock(1, 0))
	stock, err = s.client.AvailableStock(ctx, s.user, 1)
	s.Require().NoError(err)
	s.Equal(0, stock)

	_, err = s.client.AvailableStock(ctx, s.user, 99)
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *clientSuite) TestAddresses() {
	ctx := context.Background()

	home := domain.Address{
		FirstName: "Ada", LastName: "Lovelace", Phone: "555-0100", Street: "12 St James's Sq",
		City: "London", State: "LDN", ZipCode: "SW1Y", Country: "UK",
	}

	created, err := s.client.CreateAddress(ctx, s.user, home)
	s.Require().NoError(err)
	s.NotZero(created.ID)
	s.False(created.CreatedAt.IsZero())
	s.Equal("12 St James's Sq", created.Street)

	created.City = "Cambridge"
	updated, err := s.client.UpdateAddress(ctx, s.user, created)
	s.Require().NoError(err)
	s.Equal("Cambridge", updated.City)

	flagged, err := s.client.SetDefaultFlag(ctx, s.user, created.ID, true)
	s.Require().NoError(err)
	s.True(flagged.IsDefault)

	list, err := s.client.ListAddresses(ctx, s.user)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.True(list[0].IsDefault)

	s.Require().NoError(s.client.DeleteAddress(ctx, s.user, created.ID))
	s.ErrorIs(s.client.DeleteAddress(ctx, s.user, created.ID), domain.ErrNotFound)

	s.Run("blank fields: validation error", func() {
		_, err := s.client.CreateAddress(ctx, s.user, domain.Address{FirstName: "Ada"})

		vErr, ok := domain.AsValidation(err)
		s.Require().True(ok)
		s.NotEmpty(vErr.Field("zip_code"))
		s.NotEmpty(vErr.Field("address"))
		s.Empty(vErr.Field("first_name"))
	})
}

func TestRetryAndBreaker(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := httpapi.New(httpapi.Config{
		BaseURL:         server.URL,
		Timeout:         time.Second,
		RetryInterval:   time.Millisecond,
		BreakerFailures: 3,
		BreakerCooldown: time.Minute,
	}, server.Client(), zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx := context.Background()
	user := domain.Identity{UserID: 1, Token: "t"}

	_, err = client.GetCart(ctx, user)
	assert.True(t, domain.IsNetwork(err))
	assert.EqualValues(t, 2, hits.Load(), "reads are retried once")

	_, err = client.AddItem(ctx, user, 1, 1)
	assert.True(t, domain.IsNetwork(err))
	assert.EqualValues(t, 3, hits.Load(), "mutations are not retried")

	_, err = client.GetCart(ctx, user)
	assert.True(t, domain.IsNetwork(err))
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.EqualValues(t, 3, hits.Load(), "open breaker short-circuits")
}

func TestNew(t *testing.T) {
	_, err := httpapi.New(httpapi.Config{BaseURL: "not a url"}, nil, zaptest.NewLogger(t))
	assert.Error(t, err)

	_, err = httpapi.New(httpapi.Config{BaseURL: "http://localhost:8000/api"}, nil, zaptest.NewLogger(t))
	assert.NoError(t, err)
}
