package repository_test

import (
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/storefront-checkout/internal/domain"
	"github.com/nikolayk812/storefront-checkout/internal/port"
	"github.com/nikolayk812/storefront-checkout/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var (
	_ port.AddressStore        = (*repository.AddressRepository)(nil)
	_ port.AtomicDefaultSetter = (*repository.AddressRepository)(nil)
)

type addressRepositorySuite struct {
	suite.Suite

	container *postgres.PostgresContainer
	repo      *repository.AddressRepository
	pool      *pgxpool.Pool
}

func TestAddressRepositorySuite(t *testing.T) {
	suite.Run(t, new(addressRepositorySuite))
}

func (suite *addressRepositorySuite) SetupSuite() {
	ctx := suite.T().Context()

	var (
		connStr string
		err     error
	)

	suite.container, connStr, err = startPostgres(ctx)
	suite.Require().NoError(err)

	suite.pool, err = pgxpool.New(ctx, connStr)
	suite.Require().NoError(err)

	suite.repo, err = repository.NewAddress(suite.pool)
	suite.Require().NoError(err)
}

func (suite *addressRepositorySuite) TearDownSuite() {
	if suite.pool != nil {
		suite.pool.Close()
	}
	testcontainers.CleanupContainer(suite.T(), suite.container)
}

func (suite *addressRepositorySuite) TestCreateAndList() {
	defer suite.deleteAll()

	t := suite.T()
	ctx := t.Context()
	id := randomIdentity()

	first := randomAddress()
	second := randomAddress()

	created1, err := suite.repo.CreateAddress(ctx, id, first)
	require.NoError(t, err)
	created2, err := suite.repo.CreateAddress(ctx, id, second)
	require.NoError(t, err)

	assert.Positive(t, created1.ID)
	assert.False(t, created1.CreatedAt.IsZero())

	list, err := suite.repo.ListAddresses(ctx, id)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assertAddress(t, first, list[0])
	assertAddress(t, second, list[1])
	assert.Equal(t, created1.ID, list[0].ID)
	assert.Equal(t, created2.ID, list[1].ID)

	other, err := suite.repo.ListAddresses(ctx, randomIdentity())
	require.NoError(t, err)
	assert.Empty(t, other)
}

func (suite *addressRepositorySuite) TestCreateDefaultDemotesPrevious() {
	defer suite.deleteAll()

	t := suite.T()
	ctx := t.Context()
	id := randomIdentity()

	first := randomAddress()
	first.IsDefault = true
	created1, err := suite.repo.CreateAddress(ctx, id, first)
	require.NoError(t, err)

	second := randomAddress()
	second.IsDefault = true
	created2, err := suite.repo.CreateAddress(ctx, id, second)
	require.NoError(t, err)

	assert.Equal(t, []int64{created2.ID}, suite.defaultIDs(id))
	assert.NotEqual(t, created1.ID, created2.ID)
}

func (suite *addressRepositorySuite) TestUpdateAddress() {
	defer suite.deleteAll()

	tests := []struct {
		name      string
		missing   bool
		wantError error
	}{
		{
			name: "update existing address: ok",
		},
		{
			name:      "update non-existing address: not found",
			missing:   true,
			wantError: domain.ErrNotFound,
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			t := suite.T()
			ctx := t.Context()
			id := randomIdentity()

			original := randomAddress()
			original.IsDefault = true
			created, err := suite.repo.CreateAddress(ctx, id, original)
			require.NoError(t, err)

			changed := randomAddress()
			changed.ID = created.ID
			if tt.missing {
				changed.ID += 1000
			}

			updated, err := suite.repo.UpdateAddress(ctx, id, changed)
			if tt.wantError != nil {
				require.ErrorIs(t, err, tt.wantError)
				return
			}
			require.NoError(t, err)

			changed.IsDefault = true // flag is kept
			assertAddress(t, changed, updated)
			assert.Equal(t, created.CreatedAt, updated.CreatedAt)
		})
	}
}

func (suite *addressRepositorySuite) TestSetDefaultFlag() {
	defer suite.deleteAll()

	t := suite.T()
	ctx := t.Context()
	id := randomIdentity()

	a, err := suite.repo.CreateAddress(ctx, id, randomAddress())
	require.NoError(t, err)
	b, err := suite.repo.CreateAddress(ctx, id, randomAddress())
	require.NoError(t, err)

	updated, err := suite.repo.SetDefaultFlag(ctx, id, a.ID, true)
	require.NoError(t, err)
	assert.True(t, updated.IsDefault)

	// a second default violates the one-default index
	_, err = suite.repo.SetDefaultFlag(ctx, id, b.ID, true)
	require.Error(t, err)
	assert.Equal(t, []int64{a.ID}, suite.defaultIDs(id))

	_, err = suite.repo.SetDefaultFlag(ctx, id, a.ID, false)
	require.NoError(t, err)
	_, err = suite.repo.SetDefaultFlag(ctx, id, b.ID, true)
	require.NoError(t, err)
	assert.Equal(t, []int64{b.ID}, suite.defaultIDs(id))

	_, err = suite.repo.SetDefaultFlag(ctx, id, b.ID+1000, true)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func (suite *addressRepositorySuite) TestSetDefaultAddress() {
	defer suite.deleteAll()

	t := suite.T()
	ctx := t.Context()
	id := randomIdentity()

	first := randomAddress()
	first.IsDefault = true
	a, err := suite.repo.CreateAddress(ctx, id, first)
	require.NoError(t, err)
	b, err := suite.repo.CreateAddress(ctx, id, randomAddress())
	require.NoError(t, err)

	require.NoError(t, suite.repo.SetDefaultAddress(ctx, id, b.ID))
	assert.Equal(t, []int64{b.ID}, suite.defaultIDs(id))

	// twice in a row keeps exactly one default
	require.NoError(t, suite.repo.SetDefaultAddress(ctx, id, b.ID))
	assert.Equal(t, []int64{b.ID}, suite.defaultIDs(id))

	// a missing address rolls the demotion back
	err = suite.repo.SetDefaultAddress(ctx, id, a.ID+1000)
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, []int64{b.ID}, suite.defaultIDs(id))
}

func (suite *addressRepositorySuite) TestSetDefaultAddressInCallerTx() {
	defer suite.deleteAll()

	t := suite.T()
	ctx := t.Context()
	id := randomIdentity()

	first := randomAddress()
	first.IsDefault = true
	a, err := suite.repo.CreateAddress(ctx, id, first)
	require.NoError(t, err)
	b, err := suite.repo.CreateAddress(ctx, id, randomAddress())
	require.NoError(t, err)

	tx, err := suite.pool.Begin(ctx)
	require.NoError(t, err)

	require.NoError(t, repository.NewAddressWithTx(tx).SetDefaultAddress(ctx, id, b.ID))
	require.NoError(t, tx.Rollback(ctx))

	assert.Equal(t, []int64{a.ID}, suite.defaultIDs(id))
}

func (suite *addressRepositorySuite) TestDeleteAddress() {
	defer suite.deleteAll()

	t := suite.T()
	ctx := t.Context()
	id := randomIdentity()

	a, err := suite.repo.CreateAddress(ctx, id, randomAddress())
	require.NoError(t, err)

	require.NoError(t, suite.repo.DeleteAddress(ctx, id, a.ID))
	require.ErrorIs(t, suite.repo.DeleteAddress(ctx, id, a.ID), domain.ErrNotFound)

	// another owner cannot delete it
	b, err := suite.repo.CreateAddress(ctx, id, randomAddress())
	require.NoError(t, err)
	require.ErrorIs(t, suite.repo.DeleteAddress(ctx, randomIdentity(), b.ID), domain.ErrNotFound)
}

func (suite *addressRepositorySuite) TestEmptyOwner() {
	t := suite.T()
	ctx := t.Context()

	_, err := suite.repo.ListAddresses(ctx, domain.Identity{})
	require.EqualError(t, err, "ownerID is empty")

	err = suite.repo.SetDefaultAddress(ctx, domain.Identity{}, 1)
	require.EqualError(t, err, "ownerID is empty")
}

func (suite *addressRepositorySuite) defaultIDs(id domain.Identity) []int64 {
	t := suite.T()

	list, err := suite.repo.ListAddresses(t.Context(), id)
	require.NoError(t, err)

	var ids []int64
	for _, a := range list {
		if a.IsDefault {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

func (suite *addressRepositorySuite) deleteAll() {
	_, err := suite.pool.Exec(suite.T().Context(), "TRUNCATE TABLE addresses")
	suite.NoError(err)
}

func randomIdentity() domain.Identity {
	return domain.Identity{
		UserID:   randomOwnerID(),
		Username: gofakeit.Username(),
	}
}

func randomAddress() domain.Address {
	return domain.Address{
		FirstName: gofakeit.FirstName(),
		LastName:  gofakeit.LastName(),
		Phone:     gofakeit.Phone(),
		Street:    gofakeit.Street(),
		City:      gofakeit.City(),
		State:     gofakeit.State(),
		ZipCode:   gofakeit.Zip(),
		Country:   gofakeit.Country(),
	}
}

func assertAddress(t *testing.T, expected, actual domain.Address) {
	t.Helper()

	diff := cmp.Diff(expected, actual, cmpopts.IgnoreFields(domain.Address{}, "ID", "CreatedAt"))
	assert.Empty(t, diff)
}
