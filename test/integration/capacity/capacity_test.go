//go:build integration

// Package capacity runs against a live capacity service. Start it with its
// ledger of choice and point TEST_SERVER_URL at it.
package capacity

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diffatours/pkg/availability"
	"diffatours/pkg/client"
	apperrors "diffatours/pkg/errors"
	"diffatours/pkg/model"
)

func newClient(t *testing.T) *client.CapacityClient {
	t.Helper()

	serverURL := os.Getenv("TEST_SERVER_URL")
	if serverURL == "" {
		serverURL = "http://localhost:8080"
	}

	c := client.NewCapacityClient(serverURL).WithOperator("integration-tests").WithClientID(uuid.NewString())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, c.HTTP().WaitForHealthy(ctx, 30*time.Second), "capacity service is not reachable at %s", serverURL)
	return c
}

// excursion returns an id no other test run has touched, so runs need no cleanup.
func excursion() string {
	return "it-" + uuid.NewString()[:18]
}

func intPtr(i int) *int { return &i }

func TestCalendar_UnlimitedByDefault(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	view, err := c.GetMonth(ctx, excursion(), 2, 2028)
	require.NoError(t, err)
	require.Len(t, view.Days, 29)
	for _, d := range view.Days {
		assert.False(t, d.HasLimit)
		assert.Equal(t, availability.StatusAvailable, d.Status)
	}
}

func TestCalendar_ReflectsOperatorChanges(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()
	exc := excursion()

	_, err := c.Upsert(ctx, exc, "2028-03-10", model.CapacityUpdate{MaxCapacity: intPtr(10)})
	require.NoError(t, err)

	view, err := c.GetMonth(ctx, exc, 3, 2028)
	require.NoError(t, err)
	day := view.Days[9]
	require.True(t, day.HasLimit)
	assert.Equal(t, 10, *day.AvailableSpots)

	require.NoError(t, c.Delete(ctx, exc, "2028-03-10"))
	view, err = c.GetMonth(ctx, exc, 3, 2028)
	require.NoError(t, err)
	assert.False(t, view.Days[9].HasLimit, "calendar cache is invalidated by writes")
}

func TestCalendar_Overlay(t *testing.T) {
	c := newClient(t)

	view, err := c.GetMonthOverlay(context.Background(), excursion(), 3, 2028, "monday", "2028-03-10")
	require.NoError(t, err)
	require.Len(t, view.Cells, 31)
	assert.False(t, view.Cells[5].Selectable, "2028-03-06 is before today")
	assert.True(t, view.Cells[12].Selectable, "2028-03-13 is a Monday")
	assert.False(t, view.Cells[13].Selectable, "2028-03-14 is a Tuesday")
}

func TestAdmission_AllOrNothing(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()
	exc := excursion()

	_, err := c.Upsert(ctx, exc, "2028-04-01", model.CapacityUpdate{MaxCapacity: intPtr(5)})
	require.NoError(t, err)
	_, err = c.Upsert(ctx, exc, "2028-04-02", model.CapacityUpdate{MaxCapacity: intPtr(2)})
	require.NoError(t, err)

	result, err := c.Reserve(ctx, model.AdmissionRequest{Items: []model.LineItem{
		{ExcursionID: exc, Date: "2028-04-01", Participants: 3},
		{ExcursionID: exc, Date: "2028-04-02", Participants: 3},
	}}, "")
	require.NoError(t, err)
	assert.False(t, result.Admitted)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "2028-04-02", result.Failures[0].Date)
	assert.Equal(t, 2, result.Failures[0].Remaining)

	day, err := c.GetDay(ctx, exc, "2028-04-01")
	require.NoError(t, err)
	assert.Equal(t, 0, *day.CurrentBookings, "first day rolled back")

	result, err = c.Reserve(ctx, model.AdmissionRequest{Items: []model.LineItem{
		{ExcursionID: exc, Date: "2028-04-01", Participants: 3},
		{ExcursionID: exc, Date: "2028-04-02", Breakdown: &model.Participants{Adults: 1, Infants: 1}},
		{ExcursionID: exc, Date: "2028-04-03", Participants: 40},
	}}, "")
	require.NoError(t, err)
	assert.True(t, result.Admitted, "unlimited days never block an order")

	day, err = c.GetDay(ctx, exc, "2028-04-02")
	require.NoError(t, err)
	assert.Equal(t, availability.StatusFull, day.Status)
}

func TestAdmission_IdempotentRetry(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()
	exc := excursion()

	_, err := c.Upsert(ctx, exc, "2028-05-01", model.CapacityUpdate{MaxCapacity: intPtr(4)})
	require.NoError(t, err)

	order := model.AdmissionRequest{OrderRef: "ord-" + exc, Items: []model.LineItem{{ExcursionID: exc, Date: "2028-05-01", Participants: 2}}}
	key := uuid.NewString()
	for range 3 {
		result, err := c.Reserve(ctx, order, key)
		require.NoError(t, err)
		assert.True(t, result.Admitted)
	}

	day, err := c.GetDay(ctx, exc, "2028-05-01")
	require.NoError(t, err)
	assert.Equal(t, 2, *day.CurrentBookings, "a retried order reserves once")
}

func TestAdmission_ConcurrentBuyersNeverOversell(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()
	exc := excursion()

	const seats, buyers = 5, 20
	_, err := c.Upsert(ctx, exc, "2028-06-01", model.CapacityUpdate{MaxCapacity: intPtr(seats)})
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := range buyers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := c.Reserve(ctx, model.AdmissionRequest{
				OrderRef: fmt.Sprintf("buyer-%d", i),
				Items:    []model.LineItem{{ExcursionID: exc, Date: "2028-06-01", Participants: 1}},
			}, "")
			if err == nil && result.Admitted {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, seats, admitted)
	day, err := c.GetDay(ctx, exc, "2028-06-01")
	require.NoError(t, err)
	assert.Equal(t, seats, *day.CurrentBookings)
}

func TestAdmin_CapacityBelowBookingsIsRefused(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()
	exc := excursion()

	_, err := c.Upsert(ctx, exc, "2028-07-01", model.CapacityUpdate{MaxCapacity: intPtr(5)})
	require.NoError(t, err)
	_, err = c.Reserve(ctx, model.AdmissionRequest{Items: []model.LineItem{{ExcursionID: exc, Date: "2028-07-01", Participants: 4}}}, "")
	require.NoError(t, err)

	_, err = c.Upsert(ctx, exc, "2028-07-01", model.CapacityUpdate{MaxCapacity: intPtr(3)})
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apperrors.CodeConflict, apiErr.Code)

	require.NoError(t, c.Release(ctx, model.ReleaseRequest{Items: []model.LineItem{{ExcursionID: exc, Date: "2028-07-01", Participants: 4}}}))
	_, err = c.Upsert(ctx, exc, "2028-07-01", model.CapacityUpdate{MaxCapacity: intPtr(3)})
	assert.NoError(t, err)
}

func TestValidationErrors(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	_, err := c.GetDay(ctx, excursion(), "2028-02-30")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apperrors.CodeInvalidDate, apiErr.Code)

	_, err = c.Reserve(ctx, model.AdmissionRequest{Items: []model.LineItem{{ExcursionID: excursion(), Date: "2028-02-01", Participants: 0}}}, "")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apperrors.CodeInvalidParticipantCount, apiErr.Code)
}
