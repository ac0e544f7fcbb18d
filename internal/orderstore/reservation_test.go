package orderstore

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/globeco/order-submission-service/internal/domain/order"
)

func seedOrder(t *testing.T, s *Store, portfolio string) int64 {
	t.Helper()
	created, err := s.CreateOrder(context.Background(), &order.Order{
		PortfolioID: portfolio,
		OrderTypeID: 1,
		SecurityID:  "AAPL",
		Quantity:    decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	return created.ID
}

func TestReserveCommitRelease(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	td := setupTestDatabase(t)
	defer td.cleanup()
	s := New(td.pool)
	ctx := context.Background()

	id := seedOrder(t, s, "PORT1")

	outcomes, err := s.ReserveBatch(ctx, []int64{id})
	require.NoError(t, err)
	require.True(t, outcomes[0].Reserved)

	loaded, err := s.GetOrder(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, loaded.TradeOrderID)
	require.Equal(t, order.ReservationSentinel(id), *loaded.TradeOrderID)

	results, err := s.ReconcileBatch(ctx, []ReconcileItem{{OrderID: id, Success: true, TradeOrderID: 9001}}, 50)
	require.NoError(t, err)
	require.True(t, results[0].Matched)

	committed, err := s.GetOrder(ctx, id)
	require.NoError(t, err)
	require.Equal(t, int64(9001), *committed.TradeOrderID)
	require.Equal(t, order.StatusCodeSent, committed.Status.Code)
}

func TestReserveFailsWhenAlreadyReserved(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	td := setupTestDatabase(t)
	defer td.cleanup()
	s := New(td.pool)
	ctx := context.Background()

	id := seedOrder(t, s, "PORT1")

	_, err := s.ReserveBatch(ctx, []int64{id})
	require.NoError(t, err)

	outcomes, err := s.ReserveBatch(ctx, []int64{id})
	require.NoError(t, err)
	require.False(t, outcomes[0].Reserved)
}

func TestReleaseClearsSentinel(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	td := setupTestDatabase(t)
	defer td.cleanup()
	s := New(td.pool)
	ctx := context.Background()

	id := seedOrder(t, s, "PORT1")
	_, err := s.ReserveBatch(ctx, []int64{id})
	require.NoError(t, err)

	unmatched, err := s.ReleaseBatch(ctx, []int64{id}, 50)
	require.NoError(t, err)
	require.Empty(t, unmatched)

	loaded, err := s.GetOrder(ctx, id)
	require.NoError(t, err)
	require.Nil(t, loaded.TradeOrderID)
}

func TestConcurrentReserveOnlyOneWins(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	td := setupTestDatabase(t)
	defer td.cleanup()
	s := New(td.pool)
	ctx := context.Background()

	id := seedOrder(t, s, "PORT1")

	var wg sync.WaitGroup
	results := make([]bool, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes, err := s.ReserveBatch(ctx, []int64{id})
			if err == nil && len(outcomes) == 1 {
				results[i] = outcomes[0].Reserved
			}
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, r := range results {
		if r {
			wins++
		}
	}
	require.Equal(t, 1, wins)
}

func TestLoadForSubmissionEagerJoins(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	td := setupTestDatabase(t)
	defer td.cleanup()
	s := New(td.pool)
	ctx := context.Background()

	id := seedOrder(t, s, "PORT1")

	loaded, err := s.LoadForSubmission(ctx, []int64{id, 999999})
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.NotNil(t, loaded[id].Status)
	require.True(t, loaded[id].IsEligibleForSubmission())
}
