package address

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/nikolayk812/storefront-checkout/internal/domain"
	"github.com/nikolayk812/storefront-checkout/internal/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type staticIdentity struct {
	identity domain.Identity
}

func (s staticIdentity) Identity() (domain.Identity, error) {
	return s.identity, nil
}

var user = domain.Identity{UserID: 3, Token: "token"}

// fakeStore is a non-transactional address store; setFlagErr makes
// SetDefaultFlag fail for the given (addressID, flag) pair.
type fakeStore struct {
	mu         sync.Mutex
	addresses  []domain.Address
	nextID     int64
	clock      time.Time
	setFlagErr map[flagCall]error
	deleteErr  error
}

type flagCall struct {
	id   int64
	flag bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		clock:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		setFlagErr: map[flagCall]error{},
	}
}

func (f *fakeStore) ListAddresses(_ context.Context, _ domain.Identity) ([]domain.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]domain.Address, len(f.addresses))
	copy(out, f.addresses)
	return out, nil
}

func (f *fakeStore) CreateAddress(_ context.Context, _ domain.Identity, a domain.Address) (domain.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	f.clock = f.clock.Add(time.Minute)
	a.ID = f.nextID
	a.CreatedAt = f.clock
	f.addresses = append(f.addresses, a)
	return a, nil
}

func (f *fakeStore) UpdateAddress(_ context.Context, _ domain.Identity, a domain.Address) (domain.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.addresses {
		if f.addresses[i].ID == a.ID {
			a.CreatedAt = f.addresses[i].CreatedAt
			f.addresses[i] = a
			return a, nil
		}
	}
	return domain.Address{}, domain.ErrNotFound
}

func (f *fakeStore) SetDefaultFlag(_ context.Context, _ domain.Identity, addressID int64, isDefault bool) (domain.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.setFlagErr[flagCall{id: addressID, flag: isDefault}]; err != nil {
		return domain.Address{}, err
	}

	for i := range f.addresses {
		if f.addresses[i].ID == addressID {
			f.addresses[i].IsDefault = isDefault
			return f.addresses[i], nil
		}
	}
	return domain.Address{}, domain.ErrNotFound
}

func (f *fakeStore) DeleteAddress(_ context.Context, _ domain.Identity, addressID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.deleteErr != nil {
		return f.deleteErr
	}

	for i := range f.addresses {
		if f.addresses[i].ID == addressID {
			f.addresses = append(f.addresses[:i], f.addresses[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (f *fakeStore) defaults() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	var ids []int64
	for _, a := range f.addresses {
		if a.IsDefault {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// atomicStore swaps the default in one step.
type atomicStore struct {
	*fakeStore
	calls int
}

func (a *atomicStore) SetDefaultAddress(_ context.Context, _ domain.Identity, addressID int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.calls++
	found := false
	for i := range a.addresses {
		a.addresses[i].IsDefault = a.addresses[i].ID == addressID
		found = found || a.addresses[i].ID == addressID
	}
	if !found {
		return domain.ErrNotFound
	}
	return nil
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

func newResolver(t *testing.T, store port.AddressStore, maxAddresses int) *Resolver {
	t.Helper()
	return NewResolver(staticIdentity{identity: user}, store, maxAddresses, zaptest.NewLogger(t))
}

func addN(t *testing.T, r *Resolver, n int) []domain.Address {
	t.Helper()

	var out []domain.Address
	for range n {
		a, err := r.Add(context.Background(), randomAddress())
		require.NoError(t, err)
		out = append(out, a)
	}
	return out
}

func TestAddValidation(t *testing.T) {
	r := newResolver(t, newFakeStore(), DefaultCap)

	a := randomAddress()
	a.FirstName = "  "
	a.ZipCode = ""

	_, err := r.Add(context.Background(), a)

	vErr, ok := domain.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "is required", vErr.Field("firstName"))
	assert.Equal(t, "is required", vErr.Field("zipCode"))
	assert.Len(t, vErr.Fields, 2)
}

func TestListDefaultFirst(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	r := newResolver(t, store, 0)

	added := addN(t, r, 3)

	list, err := r.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{added[0].ID, added[1].ID, added[2].ID}, ids(list))

	require.NoError(t, r.SetDefault(ctx, added[2].ID))

	list, err = r.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{added[2].ID, added[0].ID, added[1].ID}, ids(list))

	resolved, err := r.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, added[2].ID, resolved.ID)
}

func TestSetDefaultTwice(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		atomic bool
	}{
		{name: "saga: ok"},
		{name: "atomic: ok", atomic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeStore()
			atomic := &atomicStore{fakeStore: fake}

			var r *Resolver
			if tt.atomic {
				r = newResolver(t, atomic, 0)
			} else {
				r = newResolver(t, fake, 0)
			}

			added := addN(t, r, 2)

			require.NoError(t, r.SetDefault(ctx, added[0].ID))
			require.NoError(t, r.SetDefault(ctx, added[1].ID))

			assert.Equal(t, []int64{added[1].ID}, fake.defaults())
			if tt.atomic {
				assert.Equal(t, 2, atomic.calls)
			}
		})
	}
}

func TestSetDefaultSagaCompensation(t *testing.T) {
	ctx := context.Background()
	errBoom := errors.New("boom")

	t.Run("second phase fails, prior default restored: error", func(t *testing.T) {
		store := newFakeStore()
		r := newResolver(t, store, 0)
		added := addN(t, r, 2)
		require.NoError(t, r.SetDefault(ctx, added[0].ID))

		store.setFlagErr[flagCall{id: added[1].ID, flag: true}] = errBoom

		err := r.SetDefault(ctx, added[1].ID)
		require.ErrorIs(t, err, errBoom)
		assert.False(t, domain.IsConsistency(err))
		assert.Equal(t, []int64{added[0].ID}, store.defaults())
	})

	t.Run("compensation fails, falls back to first: consistency error", func(t *testing.T) {
		store := newFakeStore()
		r := newResolver(t, store, 0)
		added := addN(t, r, 2)
		require.NoError(t, r.SetDefault(ctx, added[1].ID))

		store.setFlagErr[flagCall{id: added[0].ID, flag: true}] = errBoom
		store.setFlagErr[flagCall{id: added[1].ID, flag: true}] = errBoom

		err := r.SetDefault(ctx, added[0].ID)
		require.ErrorIs(t, err, errBoom)
		assert.True(t, domain.IsConsistency(err))
		assert.Empty(t, store.defaults())

		resolved, err := r.Resolve(ctx)
		require.NoError(t, err)
		assert.Equal(t, added[0].ID, resolved.ID)
	})

	t.Run("unknown address: error", func(t *testing.T) {
		r := newResolver(t, newFakeStore(), 0)
		err := r.SetDefault(ctx, 404)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestAddEviction(t *testing.T) {
	ctx := context.Background()

	t.Run("oldest non-default evicted: ok", func(t *testing.T) {
		store := newFakeStore()
		r := newResolver(t, store, DefaultCap)
		added := addN(t, r, 3)
		require.NoError(t, r.SetDefault(ctx, added[0].ID))

		fourth, err := r.Add(ctx, randomAddress())
		require.NoError(t, err)

		list, err := r.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int64{added[0].ID, added[2].ID, fourth.ID}, ids(list))
		assert.True(t, list[0].IsDefault)
	})

	t.Run("new default added at cap: ok", func(t *testing.T) {
		store := newFakeStore()
		r := newResolver(t, store, 2)
		added := addN(t, r, 2)

		a := randomAddress()
		a.IsDefault = true
		third, err := r.Add(ctx, a)
		require.NoError(t, err)
		assert.True(t, third.IsDefault)

		list, err := r.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int64{third.ID, added[1].ID}, ids(list))
		assert.Equal(t, []int64{third.ID}, store.defaults())
	})

	t.Run("only default left: error", func(t *testing.T) {
		store := newFakeStore()
		r := newResolver(t, store, 1)
		added := addN(t, r, 1)
		require.NoError(t, r.SetDefault(ctx, added[0].ID))

		_, err := r.Add(ctx, randomAddress())
		assert.ErrorIs(t, err, domain.ErrAddressCapReached)

		list, err := r.List(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})
}

func TestDeleteOnlyAddress(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	r := newResolver(t, store, DefaultCap)
	added := addN(t, r, 1)
	require.NoError(t, r.SetDefault(ctx, added[0].ID))

	require.NoError(t, r.Delete(ctx, added[0].ID))

	list, err := r.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = r.Resolve(ctx)
	assert.ErrorIs(t, err, domain.ErrNoAddress)
}

func TestDeleteDefaultLeavesNoDefault(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	r := newResolver(t, store, DefaultCap)
	added := addN(t, r, 2)
	require.NoError(t, r.SetDefault(ctx, added[1].ID))

	require.NoError(t, r.Delete(ctx, added[1].ID))

	assert.Empty(t, store.defaults())
	resolved, err := r.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, added[0].ID, resolved.ID)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	r := newResolver(t, store, DefaultCap)
	added := addN(t, r, 2)
	require.NoError(t, r.SetDefault(ctx, added[0].ID))

	t.Run("fields changed, default kept: ok", func(t *testing.T) {
		a := added[0]
		a.City = "Lisbon"
		a.IsDefault = false

		updated, err := r.Update(ctx, a)
		require.NoError(t, err)
		assert.Equal(t, "Lisbon", updated.City)
		assert.True(t, updated.IsDefault)
	})

	t.Run("promote to default: ok", func(t *testing.T) {
		a := added[1]
		a.IsDefault = true

		updated, err := r.Update(ctx, a)
		require.NoError(t, err)
		assert.True(t, updated.IsDefault)
		assert.Equal(t, []int64{added[1].ID}, store.defaults())
	})

	t.Run("unknown address: error", func(t *testing.T) {
		a := randomAddress()
		a.ID = 999
		_, err := r.Update(ctx, a)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func ids(addresses []domain.Address) []int64 {
	out := make([]int64, 0, len(addresses))
	for _, a := range addresses {
		out = append(out, a.ID)
	}
	return out
}
