package herd_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herdbook/herdbook/internal/common/httpclient"
	"github.com/herdbook/herdbook/internal/herd"
	"github.com/herdbook/herdbook/internal/herdtest"
	"github.com/herdbook/herdbook/internal/query"
	"github.com/herdbook/herdbook/internal/session"
)

type fixture struct {
	srv       *herdtest.Server
	store     *session.Store
	svc       *herd.Service
	cache     *query.Client
	redirects []string
}

func newFixture(t *testing.T, signedIn bool) *fixture {
	t.Helper()
	f := &fixture{srv: herdtest.New(t)}
	f.store = session.NewStore(nil, func(route string) { f.redirects = append(f.redirects, route) })
	if signedIn {
		require.NoError(t, f.store.SetToken(f.srv.Token()))
	}
	hc, err := httpclient.New(f.srv.URL, f.store)
	require.NoError(t, err)
	f.cache = query.NewClient(query.WithStaleTime(time.Minute))
	f.svc = herd.NewService(herd.NewAPI(hc), f.cache, f.store)
	return f
}

func (f *fixture) seedHerd() []herd.Animal {
	return f.srv.SeedAnimals(
		herd.AnimalInput{TagNumber: "A-1", Name: "Daisy", Breed: "Holstein", Status: herd.StatusLactating},
		herd.AnimalInput{TagNumber: "A-2", Name: "Bella", Breed: "Jersey", Status: herd.StatusDry},
		herd.AnimalInput{TagNumber: "A-3", Name: "Clover", Breed: "Holstein", Status: herd.StatusHeifer},
	)
}

func TestLoginStoresTokenAndSeedsCurrentUser(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	resp, err := f.svc.Login().Run(ctx, f.cache, herd.Credentials{Email: herdtest.AdminEmail, Password: herdtest.AdminPassword})
	require.NoError(t, err)
	assert.Equal(t, herdtest.DefaultToken, resp.Token)
	assert.Equal(t, herdtest.DefaultToken, f.store.Token())

	me, err := f.svc.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, herdtest.AdminEmail, me.Email)
	assert.Zero(t, f.srv.Hits(http.MethodGet, "/auth/me"))
}

func TestLoginWithBadCredentials(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.svc.Login().Run(context.Background(), f.cache, herd.Credentials{Email: herdtest.AdminEmail, Password: "nope"})
	require.Error(t, err)
	assert.Equal(t, httpclient.KindRequestFailed, httpclient.KindOf(err))
	assert.Equal(t, "Invalid credentials", httpclient.UserMessage(err))
	assert.False(t, f.store.IsSignedIn())
	assert.Empty(t, f.redirects)
}

func TestLogoutClearsSessionAndCache(t *testing.T) {
	f := newFixture(t, true)
	f.seedHerd()
	ctx := context.Background()

	_, err := f.svc.Animals(ctx)
	require.NoError(t, err)

	resp, err := f.svc.Logout().Run(ctx, f.cache, struct{}{})
	require.NoError(t, err)
	assert.True(t, resp.IsNoContent())
	assert.False(t, f.store.IsSignedIn())
	assert.Equal(t, query.StatusIdle, f.cache.State(herd.AnimalKeys.Lists()).Status)
	assert.Empty(t, f.redirects)
}

func TestLogoutClearsLocallyWhenServerFails(t *testing.T) {
	f := newFixture(t, true)
	f.srv.Fail(http.MethodPost, "/auth/logout", http.StatusInternalServerError, `{"message":"boom"}`)

	_, err := f.svc.Logout().Run(context.Background(), f.cache, struct{}{})
	require.Error(t, err)
	assert.False(t, f.store.IsSignedIn())
}

func TestExpiredSessionRedirectsOnce(t *testing.T) {
	f := newFixture(t, true)
	f.srv.ExpireToken()
	ctx := context.Background()

	_, err := f.svc.Animals(ctx)
	require.Error(t, err)
	assert.Equal(t, httpclient.KindSessionExpired, httpclient.KindOf(err))
	assert.False(t, f.store.IsSignedIn())

	_, err = f.svc.Users(ctx)
	require.Error(t, err)
	assert.Equal(t, []string{session.SignInRoute}, f.redirects)
}

func TestListIsCachedWhileFresh(t *testing.T) {
	f := newFixture(t, true)
	f.seedHerd()
	ctx := context.Background()

	for range 3 {
		animals, err := f.svc.Animals(ctx)
		require.NoError(t, err)
		assert.Len(t, animals, 3)
	}
	assert.Equal(t, 1, f.srv.Hits(http.MethodGet, "/animals"))
	assert.Equal(t, query.StatusFresh, f.cache.State(herd.AnimalKeys.Lists()).Status)
}

func TestConcurrentQueriesShareOneRequest(t *testing.T) {
	f := newFixture(t, true)
	f.seedHerd()
	f.srv.Delay(http.MethodGet, "/animals", 50*time.Millisecond)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([][]herd.Animal, 5)
	errs := make([]error, 5)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = f.svc.Animals(ctx)
		}()
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Len(t, results[i], 3)
	}
	assert.Equal(t, 1, f.srv.Hits(http.MethodGet, "/animals"))
}

func TestCanceledCallerDoesNotCancelSharedFetch(t *testing.T) {
	f := newFixture(t, true)
	f.seedHerd()
	f.srv.Delay(http.MethodGet, "/animals", 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.svc.Animals(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	animals, err := f.svc.Animals(context.Background())
	require.NoError(t, err)
	assert.Len(t, animals, 3)
}

func TestAnimalsByStatus(t *testing.T) {
	f := newFixture(t, true)
	f.seedHerd()

	lactating, err := f.svc.AnimalsByStatus(context.Background(), herd.StatusLactating)
	require.NoError(t, err)
	require.Len(t, lactating, 1)
	assert.Equal(t, "A-1", lactating[0].TagNumber)
}

func TestCreateAnimalInvalidatesListsAndHydratesDetail(t *testing.T) {
	f := newFixture(t, true)
	f.seedHerd()
	ctx := context.Background()

	_, err := f.svc.Animals(ctx)
	require.NoError(t, err)
	_, err = f.svc.AnimalsByStatus(ctx, herd.StatusCalf)
	require.NoError(t, err)
	_, err = f.svc.AnimalAnalytics(ctx)
	require.NoError(t, err)

	m := f.svc.CreateAnimal()
	a, err := m.Run(ctx, f.cache, herd.AnimalInput{TagNumber: "A-4", Status: herd.StatusCalf})
	require.NoError(t, err)
	assert.Equal(t, query.MutationSucceeded, m.State().Status)

	assert.Equal(t, query.StatusStale, f.cache.State(herd.AnimalKeys.Lists()).Status)
	assert.Equal(t, query.StatusStale, f.cache.State(herd.AnimalKeys.ByStatus(herd.StatusCalf)).Status)
	assert.Equal(t, query.StatusStale, f.cache.State(herd.AnimalKeys.Analytics()).Status)

	got, err := f.svc.Animal(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a, got)
	assert.Zero(t, f.srv.Hits(http.MethodGet, "/animals/{id}"))

	animals, err := f.svc.Animals(ctx)
	require.NoError(t, err)
	assert.Len(t, animals, 4)
	// list, status view, then the refetched list
	assert.Equal(t, 3, f.srv.Hits(http.MethodGet, "/animals"))
}

func TestCreateAnimalValidatesBeforeSending(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.svc.CreateAnimal().Run(context.Background(), f.cache, herd.AnimalInput{Status: "grazing", BirthDate: "yesterday"})
	require.Error(t, err)
	assert.ErrorIs(t, err, httpclient.ErrInvalidRequest)
	msg := httpclient.UserMessage(err)
	assert.Contains(t, msg, "tagNumber is required")
	assert.Contains(t, msg, "status is not a valid animal status")
	assert.Contains(t, msg, "birthDate must be a date")
	assert.Zero(t, f.srv.Hits(http.MethodPost, "/animals"))
}

func TestCreateAnimalConflict(t *testing.T) {
	f := newFixture(t, true)
	f.seedHerd()
	ctx := context.Background()

	_, err := f.svc.Animals(ctx)
	require.NoError(t, err)

	m := f.svc.CreateAnimal()
	_, err = m.Run(ctx, f.cache, herd.AnimalInput{TagNumber: "A-1", Status: herd.StatusCalf})
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httpclient.StatusCode(err))
	assert.Equal(t, "Tag already in use", httpclient.UserMessage(err))
	assert.Equal(t, query.MutationFailed, m.State().Status)
	assert.Equal(t, query.StatusFresh, f.cache.State(herd.AnimalKeys.Lists()).Status)
}

func TestChangeAnimalStatusInvalidatesMilkingAggregates(t *testing.T) {
	f := newFixture(t, true)
	herdAnimals := f.seedHerd()
	ctx := context.Background()

	_, err := f.svc.MilkingAnalytics(ctx)
	require.NoError(t, err)
	_, err = f.svc.AnimalsByStatus(ctx, herd.StatusDry)
	require.NoError(t, err)

	a, err := f.svc.ChangeAnimalStatus().Run(ctx, f.cache, herd.StatusChange{ID: herdAnimals[1].ID, Status: herd.StatusLactating})
	require.NoError(t, err)
	assert.Equal(t, herd.StatusLactating, a.Status)

	assert.Equal(t, query.StatusStale, f.cache.State(herd.MilkingKeys.Analytics()).Status)
	assert.Equal(t, query.StatusStale, f.cache.State(herd.AnimalKeys.ByStatus(herd.StatusDry)).Status)

	analytics, err := f.svc.MilkingAnalytics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, analytics.LactatingAnimals)
}

func TestDeleteAnimal(t *testing.T) {
	f := newFixture(t, true)
	herdAnimals := f.seedHerd()
	id := herdAnimals[0].ID
	f.srv.SeedMilking(herd.MilkingInput{AnimalID: id, Date: "2024-03-02", Session: "morning", Quantity: 14.5})
	ctx := context.Background()

	_, err := f.svc.CreateBreeding().Run(ctx, f.cache, herd.BreedingInput{
		AnimalID:     id,
		BreedingDate: "2024-02-10",
		Method:       "artificial",
		Status:       "confirmed",
	})
	require.NoError(t, err)

	_, err = f.svc.Animals(ctx)
	require.NoError(t, err)
	_, err = f.svc.AnimalAnalytics(ctx)
	require.NoError(t, err)
	_, err = f.svc.MilkingByAnimal(ctx, id)
	require.NoError(t, err)
	_, err = f.svc.MilkingByAnimal(ctx, herdAnimals[1].ID)
	require.NoError(t, err)
	milking, err := f.svc.MilkingRecords(ctx)
	require.NoError(t, err)
	require.Len(t, milking, 1)
	summaries, err := f.svc.MilkingSummaries(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	breeding, err := f.svc.BreedingRecords(ctx)
	require.NoError(t, err)
	require.Len(t, breeding, 1)
	for _, read := range []func(context.Context) error{
		func(ctx context.Context) error { _, err := f.svc.MilkingAnalytics(ctx); return err },
		func(ctx context.Context) error { _, err := f.svc.BreedingAnalytics(ctx); return err },
		func(ctx context.Context) error { _, err := f.svc.HeatDetections(ctx); return err },
		func(ctx context.Context) error { _, err := f.svc.HealthRecords(ctx); return err },
	} {
		require.NoError(t, read(ctx))
	}

	resp, err := f.svc.DeleteAnimal().Run(ctx, f.cache, id)
	require.NoError(t, err)
	assert.Same(t, httpclient.NoContent, resp)

	for _, k := range []query.Key{
		herd.AnimalKeys.Lists(),
		herd.AnimalKeys.Analytics(),
		herd.MilkingKeys.ByAnimal(id),
		herd.MilkingKeys.Lists(),
		herd.MilkingKeys.Summaries(),
		herd.MilkingKeys.Analytics(),
		herd.BreedingKeys.Lists(),
		herd.BreedingKeys.Analytics(),
		herd.HeatKeys.Lists(),
		herd.HealthKeys.Lists(),
	} {
		assert.Equal(t, query.StatusStale, f.cache.State(k).Status, k.String())
	}
	assert.Equal(t, query.StatusFresh, f.cache.State(herd.MilkingKeys.ByAnimal(herdAnimals[1].ID)).Status)

	milking, err = f.svc.MilkingRecords(ctx)
	require.NoError(t, err)
	assert.Empty(t, milking)
	summaries, err = f.svc.MilkingSummaries(ctx)
	require.NoError(t, err)
	assert.Empty(t, summaries)
	breeding, err = f.svc.BreedingRecords(ctx)
	require.NoError(t, err)
	assert.Empty(t, breeding)

	_, err = f.svc.Animal(ctx, id)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httpclient.StatusCode(err))
	assert.Equal(t, "Animal not found", httpclient.UserMessage(err))
}

func TestDeleteAnimalStopsDetailObservers(t *testing.T) {
	f := newFixture(t, true)
	id := f.seedHerd()[0].ID
	ctx := context.Background()

	seen := make(chan error, 4)
	stop := query.Observe(ctx, f.cache, herd.AnimalKeys.Detail(id), func(ctx context.Context) (herd.Animal, error) {
		return f.svc.API().GetAnimal(ctx, id)
	}, func(_ herd.Animal, err error) { seen <- err })
	defer stop()
	require.NoError(t, <-seen)

	_, err := f.svc.DeleteAnimal().Run(ctx, f.cache, id)
	require.NoError(t, err)
	assert.Zero(t, f.cache.Bus().SubscriberCount())

	select {
	case err := <-seen:
		t.Fatalf("observer refetched after delete: %v", err)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestUpdateAnimalRefreshesDetail(t *testing.T) {
	f := newFixture(t, true)
	a := f.seedHerd()[0]
	ctx := context.Background()

	_, err := f.svc.Animal(ctx, a.ID)
	require.NoError(t, err)

	in := herd.AnimalInput{TagNumber: a.TagNumber, Name: "Daisy II", Status: herd.StatusDry}
	updated, err := f.svc.UpdateAnimal().Run(ctx, f.cache, herd.AnimalUpdate{ID: a.ID, Input: in})
	require.NoError(t, err)
	assert.Equal(t, "Daisy II", updated.Name)

	cached, ok := query.Get[herd.Animal](f.cache, herd.AnimalKeys.Detail(a.ID))
	require.True(t, ok)
	assert.Equal(t, "Daisy II", cached.Name)
}

func TestMilkingWritesInvalidateOnlyTheirAnimal(t *testing.T) {
	f := newFixture(t, true)
	herdAnimals := f.seedHerd()
	cow, other := herdAnimals[0].ID, herdAnimals[1].ID
	ctx := context.Background()

	for _, id := range []int64{cow, other} {
		_, err := f.svc.MilkingByAnimal(ctx, id)
		require.NoError(t, err)
	}
	_, err := f.svc.MilkingSummaries(ctx)
	require.NoError(t, err)
	_, err = f.svc.BreedingByAnimal(ctx, cow)
	require.NoError(t, err)

	rec, err := f.svc.CreateMilking().Run(ctx, f.cache, herd.MilkingInput{AnimalID: cow, Date: "2024-03-02", Session: "morning", Quantity: 14.5})
	require.NoError(t, err)

	assert.Equal(t, query.StatusStale, f.cache.State(herd.MilkingKeys.ByAnimal(cow)).Status)
	assert.Equal(t, query.StatusStale, f.cache.State(herd.MilkingKeys.Summaries()).Status)
	assert.Equal(t, query.StatusFresh, f.cache.State(herd.MilkingKeys.ByAnimal(other)).Status)
	assert.Equal(t, query.StatusFresh, f.cache.State(herd.BreedingKeys.ByAnimal(cow)).Status)

	summaries, err := f.svc.MilkingSummaries(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.InDelta(t, 14.5, summaries[0].TotalQuantity, 0.001)

	_, err = f.svc.DeleteMilking().Run(ctx, f.cache, herd.RecordRef{ID: rec.ID})
	require.NoError(t, err)
	assert.Equal(t, query.StatusStale, f.cache.State(herd.MilkingKeys.ByAnimal(other)).Status)
}

func TestUpdateMovesRecordBetweenAnimals(t *testing.T) {
	f := newFixture(t, true)
	herdAnimals := f.seedHerd()
	from, to := herdAnimals[1].ID, herdAnimals[2].ID
	ctx := context.Background()

	in := herd.BreedingInput{AnimalID: from, BreedingDate: "2024-02-10", Method: "artificial", Status: "confirmed"}
	rec, err := f.svc.CreateBreeding().Run(ctx, f.cache, in)
	require.NoError(t, err)

	before, err := f.svc.BreedingByAnimal(ctx, from)
	require.NoError(t, err)
	require.Len(t, before, 1)
	_, err = f.svc.Animal(ctx, from)
	require.NoError(t, err)

	in.AnimalID = to
	moved, err := f.svc.UpdateBreeding().Run(ctx, f.cache, herd.BreedingUpdate{ID: rec.ID, Input: in})
	require.NoError(t, err)
	assert.Equal(t, to, moved.AnimalID)

	assert.Equal(t, query.StatusStale, f.cache.State(herd.BreedingKeys.ByAnimal(from)).Status)
	assert.Equal(t, query.StatusStale, f.cache.State(herd.AnimalKeys.Detail(from)).Status)

	after, err := f.svc.BreedingByAnimal(ctx, from)
	require.NoError(t, err)
	assert.Empty(t, after)
	now, err := f.svc.BreedingByAnimal(ctx, to)
	require.NoError(t, err)
	require.Len(t, now, 1)
	assert.Equal(t, rec.ID, now[0].ID)
}

func TestUpdateMilkingFindsOwnerInCachedList(t *testing.T) {
	f := newFixture(t, true)
	herdAnimals := f.seedHerd()
	from, to := herdAnimals[0].ID, herdAnimals[1].ID
	recs := f.srv.SeedMilking(herd.MilkingInput{AnimalID: from, Date: "2024-03-02", Session: "morning", Quantity: 14.5})
	ctx := context.Background()

	_, err := f.svc.MilkingRecords(ctx)
	require.NoError(t, err)
	for _, id := range []int64{from, herdAnimals[2].ID} {
		_, err := f.svc.MilkingByAnimal(ctx, id)
		require.NoError(t, err)
	}

	_, err = f.svc.UpdateMilking().Run(ctx, f.cache, herd.MilkingUpdate{
		ID:    recs[0].ID,
		Input: herd.MilkingInput{AnimalID: to, Date: "2024-03-02", Session: "morning", Quantity: 15},
	})
	require.NoError(t, err)

	assert.Equal(t, query.StatusStale, f.cache.State(herd.MilkingKeys.ByAnimal(from)).Status)
	assert.Equal(t, query.StatusFresh, f.cache.State(herd.MilkingKeys.ByAnimal(herdAnimals[2].ID)).Status)

	left, err := f.svc.MilkingByAnimal(ctx, from)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestUpdateWithUnknownOwnerInvalidatesEveryAnimal(t *testing.T) {
	f := newFixture(t, true)
	herdAnimals := f.seedHerd()
	ctx := context.Background()

	rec, err := f.svc.API().CreateHealth(ctx, herd.HealthInput{AnimalID: herdAnimals[0].ID, Date: "2024-03-01", Type: "vaccination", Description: "Booster"})
	require.NoError(t, err)
	_, err = f.svc.HealthByAnimal(ctx, herdAnimals[0].ID)
	require.NoError(t, err)
	_, err = f.svc.Animal(ctx, herdAnimals[0].ID)
	require.NoError(t, err)

	_, err = f.svc.UpdateHealth().Run(ctx, f.cache, herd.HealthUpdate{
		ID:    rec.ID,
		Input: herd.HealthInput{AnimalID: herdAnimals[1].ID, Date: "2024-03-01", Type: "vaccination", Description: "Booster"},
	})
	require.NoError(t, err)

	assert.Equal(t, query.StatusStale, f.cache.State(herd.HealthKeys.ByAnimal(herdAnimals[0].ID)).Status)
	assert.Equal(t, query.StatusStale, f.cache.State(herd.AnimalKeys.Detail(herdAnimals[0].ID)).Status)
}

func TestBreedingAndHeat(t *testing.T) {
	f := newFixture(t, true)
	cow := f.seedHerd()[0].ID
	ctx := context.Background()

	rec, err := f.svc.CreateBreeding().Run(ctx, f.cache, herd.BreedingInput{
		AnimalID:     cow,
		BreedingDate: "2024-02-10",
		Method:       "artificial",
		Status:       "confirmed",
	})
	require.NoError(t, err)

	byAnimal, err := f.svc.BreedingByAnimal(ctx, cow)
	require.NoError(t, err)
	assert.Len(t, byAnimal, 1)

	_, err = f.svc.BreedingAnalytics(ctx)
	require.NoError(t, err)

	_, err = f.svc.CreateHeat().Run(ctx, f.cache, herd.HeatInput{AnimalID: cow, DetectedAt: "2024-02-01T05:30:00Z", Intensity: "high"})
	require.NoError(t, err)
	assert.Equal(t, query.StatusStale, f.cache.State(herd.BreedingKeys.Analytics()).Status)

	stats, err := f.svc.BreedingAnalytics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.InDelta(t, 100.0, stats.SuccessRate, 0.001)
	assert.Equal(t, 1, stats.HeatDetections)
	assert.Equal(t, 1, stats.ByMethod["artificial"])

	_, err = f.svc.DeleteBreeding().Run(ctx, f.cache, herd.RecordRef{ID: rec.ID, AnimalID: cow})
	require.NoError(t, err)
	assert.Equal(t, query.StatusStale, f.cache.State(herd.BreedingKeys.ByAnimal(cow)).Status)
}

func TestHealthRecordRoundTrip(t *testing.T) {
	f := newFixture(t, true)
	cow := f.seedHerd()[0].ID
	ctx := context.Background()

	rec, err := f.svc.CreateHealth().Run(ctx, f.cache, herd.HealthInput{
		AnimalID:    cow,
		Date:        "2024-03-01",
		Type:        "vaccination",
		Description: "Annual booster",
		Cost:        35,
	})
	require.NoError(t, err)

	got, err := f.svc.HealthRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
	assert.Zero(t, f.srv.Hits(http.MethodGet, "/health/{id}"))

	_, err = f.svc.CreateHealth().Run(ctx, f.cache, herd.HealthInput{AnimalID: cow, Date: "2024-03-01", Type: "surgery", Description: "x"})
	require.Error(t, err)
	assert.Contains(t, httpclient.UserMessage(err), "type must be one of")
}

func TestAnalyticsDecodeLooselyTypedNumbers(t *testing.T) {
	f := newFixture(t, true)
	herdAnimals := f.seedHerd()
	f.srv.SeedMilking(
		herd.MilkingInput{AnimalID: herdAnimals[0].ID, Date: "2024-03-01", Session: "morning", Quantity: 10},
		herd.MilkingInput{AnimalID: herdAnimals[0].ID, Date: "2024-03-02", Session: "evening", Quantity: 12.5},
	)
	ctx := context.Background()

	animals, err := f.svc.AnimalAnalytics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, animals.Total)
	assert.Equal(t, 2, animals.ByBreed["Holstein"])

	milk, err := f.svc.MilkingAnalytics(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 22.5, milk.TotalQuantity, 0.001)
	require.Len(t, milk.TopProducers, 1)
	assert.Equal(t, "A-1", milk.TopProducers[0].TagNumber)
	assert.InDelta(t, 22.5, milk.TopProducers[0].Quantity, 0.001)
}

func TestMalformedAnalytics(t *testing.T) {
	f := newFixture(t, true)
	f.srv.Fail(http.MethodGet, "/animals/analytics", http.StatusOK, `{"total":"many"}`)

	_, err := f.svc.AnimalAnalytics(context.Background())
	require.Error(t, err)
	assert.Equal(t, httpclient.KindMalformedResponse, httpclient.KindOf(err))
}

func TestUsers(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.svc.CreateUser().Run(ctx, f.cache, herd.UserInput{Name: "Sam", Email: "sam@herd.test", Role: herd.RoleWorker})
	require.Error(t, err)
	assert.ErrorIs(t, err, httpclient.ErrInvalidRequest)

	u, err := f.svc.CreateUser().Run(ctx, f.cache, herd.UserInput{Name: "Sam", Email: "sam@herd.test", Password: "milking-time", Role: herd.RoleWorker})
	require.NoError(t, err)

	users, err := f.svc.Users(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	promoted, err := f.svc.ChangeUserRole().Run(ctx, f.cache, herd.RoleChange{ID: u.ID, Role: herd.RoleManager})
	require.NoError(t, err)
	assert.Equal(t, herd.RoleManager, promoted.Role)
	assert.Equal(t, query.StatusStale, f.cache.State(herd.UserKeys.Lists()).Status)

	_, err = f.svc.Me(ctx)
	require.NoError(t, err)
	_, err = f.svc.ChangeUserRole().Run(ctx, f.cache, herd.RoleChange{ID: u.ID, Role: herd.RoleWorker})
	require.NoError(t, err)
	assert.Equal(t, query.StatusFresh, f.cache.State(herd.AuthKeys.Me()).Status)

	_, err = f.svc.DeleteUser().Run(ctx, f.cache, u.ID)
	require.NoError(t, err)
	users, err = f.svc.Users(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestEditingSignedInUserRefreshesMe(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	me, err := f.svc.Me(ctx)
	require.NoError(t, err)

	_, err = f.svc.UpdateUser().Run(ctx, f.cache, herd.UserUpdate{
		ID:    me.ID,
		Input: herd.UserInput{Name: "Head Herder", Email: me.Email, Role: me.Role},
	})
	require.NoError(t, err)
	assert.Equal(t, query.StatusStale, f.cache.State(herd.AuthKeys.Me()).Status)

	me, err = f.svc.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Head Herder", me.Name)
}

func TestVersion(t *testing.T) {
	f := newFixture(t, false)
	v, err := f.svc.Version(context.Background())
	require.NoError(t, err)
	assert.True(t, herd.IsAPICompatible(v.APIVersion))

	f.srv.SetAPIVersion("2.1.0")
	v, err = f.svc.API().Version(context.Background())
	require.NoError(t, err)
	assert.False(t, herd.IsAPICompatible(v.APIVersion))
}
