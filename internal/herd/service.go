package herd

import (
	"context"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/herdbook/herdbook/internal/common/httpclient"
	"github.com/herdbook/herdbook/internal/query"
)

// TokenStore receives the token on login and drops it on logout.
type TokenStore interface {
	SetToken(token string) error
	Logout() error
}

// Service serves domain reads through the query cache and builds the mutations
// that write to the server. Every mutation declares the keys its write can affect.
type Service struct {
	api     *API
	cache   *query.Client
	session TokenStore
}

func NewService(api *API, cache *query.Client, session TokenStore) *Service {
	return &Service{api: api, cache: cache, session: session}
}

func (s *Service) API() *API { return s.api }

func (s *Service) Cache() *query.Client { return s.cache }

// ---- queries

func (s *Service) Me(ctx context.Context) (User, error) {
	return query.Query(ctx, s.cache, AuthKeys.Me(), s.api.Me)
}

func (s *Service) Animals(ctx context.Context) ([]Animal, error) {
	return query.Query(ctx, s.cache, AnimalKeys.Lists(), s.api.ListAnimals)
}

func (s *Service) AnimalsByStatus(ctx context.Context, status AnimalStatus) ([]Animal, error) {
	return query.Query(ctx, s.cache, AnimalKeys.ByStatus(status), func(ctx context.Context) ([]Animal, error) {
		return s.api.ListAnimalsByStatus(ctx, status)
	})
}

func (s *Service) Animal(ctx context.Context, id int64) (Animal, error) {
	return query.Query(ctx, s.cache, AnimalKeys.Detail(id), func(ctx context.Context) (Animal, error) {
		return s.api.GetAnimal(ctx, id)
	})
}

func (s *Service) AnimalAnalytics(ctx context.Context) (AnimalAnalytics, error) {
	return query.Query(ctx, s.cache, AnimalKeys.Analytics(), s.api.AnimalAnalytics)
}

func (s *Service) BreedingRecords(ctx context.Context) ([]BreedingRecord, error) {
	return query.Query(ctx, s.cache, BreedingKeys.Lists(), s.api.ListBreeding)
}

func (s *Service) BreedingByAnimal(ctx context.Context, animalID int64) ([]BreedingRecord, error) {
	return query.Query(ctx, s.cache, BreedingKeys.ByAnimal(animalID), func(ctx context.Context) ([]BreedingRecord, error) {
		return s.api.ListBreedingByAnimal(ctx, animalID)
	})
}

func (s *Service) BreedingRecord(ctx context.Context, id int64) (BreedingRecord, error) {
	return query.Query(ctx, s.cache, BreedingKeys.Detail(id), func(ctx context.Context) (BreedingRecord, error) {
		return s.api.GetBreeding(ctx, id)
	})
}

func (s *Service) BreedingAnalytics(ctx context.Context) (BreedingAnalytics, error) {
	return query.Query(ctx, s.cache, BreedingKeys.Analytics(), s.api.BreedingAnalytics)
}

func (s *Service) HeatDetections(ctx context.Context) ([]HeatDetection, error) {
	return query.Query(ctx, s.cache, HeatKeys.Lists(), s.api.ListHeat)
}

func (s *Service) HeatByAnimal(ctx context.Context, animalID int64) ([]HeatDetection, error) {
	return query.Query(ctx, s.cache, HeatKeys.ByAnimal(animalID), func(ctx context.Context) ([]HeatDetection, error) {
		return s.api.ListHeatByAnimal(ctx, animalID)
	})
}

func (s *Service) MilkingRecords(ctx context.Context) ([]MilkingRecord, error) {
	return query.Query(ctx, s.cache, MilkingKeys.Lists(), s.api.ListMilking)
}

func (s *Service) MilkingByAnimal(ctx context.Context, animalID int64) ([]MilkingRecord, error) {
	return query.Query(ctx, s.cache, MilkingKeys.ByAnimal(animalID), func(ctx context.Context) ([]MilkingRecord, error) {
		return s.api.ListMilkingByAnimal(ctx, animalID)
	})
}

func (s *Service) MilkingSummaries(ctx context.Context) ([]MilkingSummary, error) {
	return query.Query(ctx, s.cache, MilkingKeys.Summaries(), s.api.MilkingSummaries)
}

func (s *Service) MilkingAnalytics(ctx context.Context) (MilkingAnalytics, error) {
	return query.Query(ctx, s.cache, MilkingKeys.Analytics(), s.api.MilkingAnalytics)
}

func (s *Service) HealthRecords(ctx context.Context) ([]HealthRecord, error) {
	return query.Query(ctx, s.cache, HealthKeys.Lists(), s.api.ListHealth)
}

func (s *Service) HealthByAnimal(ctx context.Context, animalID int64) ([]HealthRecord, error) {
	return query.Query(ctx, s.cache, HealthKeys.ByAnimal(animalID), func(ctx context.Context) ([]HealthRecord, error) {
		return s.api.ListHealthByAnimal(ctx, animalID)
	})
}

func (s *Service) HealthRecord(ctx context.Context, id int64) (HealthRecord, error) {
	return query.Query(ctx, s.cache, HealthKeys.Detail(id), func(ctx context.Context) (HealthRecord, error) {
		return s.api.GetHealth(ctx, id)
	})
}

func (s *Service) Users(ctx context.Context) ([]User, error) {
	return query.Query(ctx, s.cache, UserKeys.Lists(), s.api.ListUsers)
}

func (s *Service) User(ctx context.Context, id int64) (User, error) {
	return query.Query(ctx, s.cache, UserKeys.Detail(id), func(ctx context.Context) (User, error) {
		return s.api.GetUser(ctx, id)
	})
}

func (s *Service) Version(ctx context.Context) (VersionInfo, error) {
	return query.Query(ctx, s.cache, VersionKey, s.api.Version)
}

// ---- auth mutations

// Login exchanges credentials for a token, stores it and seeds the current user.
func (s *Service) Login() *query.Mutation[Credentials, LoginResponse] {
	return &query.Mutation[Credentials, LoginResponse]{
		Fn: func(ctx context.Context, creds Credentials) (LoginResponse, error) {
			resp, err := s.api.Login(ctx, creds)
			if err != nil {
				return resp, err
			}
			if resp.Token == "" {
				return resp, httpclient.ErrMalformedResponse.New("The server did not return a session token.")
			}
			if err := s.session.SetToken(resp.Token); err != nil {
				log.Ctx(ctx).Warn().Err(err).Msg("unable to persist session")
			}
			return resp, nil
		},
		OnSuccess: func(_ Credentials, resp LoginResponse) {
			s.cache.SetQueryData(AuthKeys.Me(), resp.User)
		},
	}
}

// Logout ends the session on the server and always drops it locally, together with
// every cached query. The server's error, if any, is returned after the local
// cleanup.
func (s *Service) Logout() *query.Mutation[struct{}, *httpclient.Response] {
	return &query.Mutation[struct{}, *httpclient.Response]{
		Fn: func(ctx context.Context, _ struct{}) (*httpclient.Response, error) {
			resp, err := s.api.Logout(ctx)
			if lerr := s.session.Logout(); lerr != nil {
				log.Ctx(ctx).Warn().Err(lerr).Msg("unable to remove saved session")
			}
			s.cache.Clear()
			return resp, err
		},
	}
}

// ---- animal mutations

func (s *Service) CreateAnimal() *query.Mutation[AnimalInput, Animal] {
	return &query.Mutation[AnimalInput, Animal]{
		Fn: s.api.CreateAnimal,
		OnSuccess: func(_ AnimalInput, a Animal) {
			s.cache.SetQueryData(AnimalKeys.Detail(a.ID), a)
		},
		Invalidates: func(AnimalInput, Animal) []query.Key {
			return []query.Key{
				AnimalKeys.Lists(),
				AnimalKeys.StatusViews(),
				AnimalKeys.Analytics(),
				MilkingKeys.Analytics(),
			}
		},
	}
}

func animalUpdateKeys(id int64) []query.Key {
	return []query.Key{
		AnimalKeys.Lists(),
		AnimalKeys.Detail(id),
		AnimalKeys.StatusViews(),
		AnimalKeys.Analytics(),
	}
}

func (s *Service) UpdateAnimal() *query.Mutation[AnimalUpdate, Animal] {
	return &query.Mutation[AnimalUpdate, Animal]{
		Fn: s.api.UpdateAnimal,
		OnSuccess: func(_ AnimalUpdate, a Animal) {
			s.cache.SetQueryData(AnimalKeys.Detail(a.ID), a)
		},
		Invalidates: func(u AnimalUpdate, a Animal) []query.Key {
			// the full form can change status, which moves the animal between views
			return append(animalUpdateKeys(u.ID), MilkingKeys.Analytics(), MilkingKeys.Summaries())
		},
	}
}

// ChangeAnimalStatus moves an animal between status views. Lactating membership
// feeds the milking aggregates, so those are invalidated too.
func (s *Service) ChangeAnimalStatus() *query.Mutation[StatusChange, Animal] {
	return &query.Mutation[StatusChange, Animal]{
		Fn: s.api.UpdateAnimalStatus,
		OnSuccess: func(_ StatusChange, a Animal) {
			s.cache.SetQueryData(AnimalKeys.Detail(a.ID), a)
		},
		Invalidates: func(c StatusChange, _ Animal) []query.Key {
			return append(animalUpdateKeys(c.ID), MilkingKeys.Analytics(), MilkingKeys.Summaries())
		},
	}
}

// DeleteAnimal removes an animal. The server deletes the animal's records with it,
// so every list and aggregate that can include them goes stale too.
func (s *Service) DeleteAnimal() *query.Mutation[int64, *httpclient.Response] {
	return &query.Mutation[int64, *httpclient.Response]{
		Fn: s.api.DeleteAnimal,
		OnSuccess: func(id int64, _ *httpclient.Response) {
			s.cache.StopObserving(AnimalKeys.Detail(id))
		},
		Invalidates: func(id int64, _ *httpclient.Response) []query.Key {
			return []query.Key{
				AnimalKeys.Lists(),
				AnimalKeys.Detail(id),
				AnimalKeys.StatusViews(),
				AnimalKeys.Analytics(),
				BreedingKeys.Lists(),
				BreedingKeys.ByAnimal(id),
				BreedingKeys.Analytics(),
				HeatKeys.Lists(),
				HeatKeys.ByAnimal(id),
				MilkingKeys.Lists(),
				MilkingKeys.ByAnimal(id),
				MilkingKeys.Summaries(),
				MilkingKeys.Analytics(),
				HealthKeys.Lists(),
				HealthKeys.ByAnimal(id),
			}
		},
	}
}

// ---- breeding mutations

func breedingWriteKeys(animalIDs ...int64) []query.Key {
	keys := []query.Key{BreedingKeys.Lists(), BreedingKeys.Analytics(), AnimalKeys.Analytics()}
	keys = append(keys, BreedingKeys.byAnimal(animalIDs...)...)
	for _, id := range animalIDs {
		if id != 0 {
			keys = append(keys, AnimalKeys.Detail(id))
		}
	}
	return keys
}

func (s *Service) CreateBreeding() *query.Mutation[BreedingInput, BreedingRecord] {
	return &query.Mutation[BreedingInput, BreedingRecord]{
		Fn: s.api.CreateBreeding,
		OnSuccess: func(_ BreedingInput, r BreedingRecord) {
			s.cache.SetQueryData(BreedingKeys.Detail(r.ID), r)
		},
		Invalidates: func(in BreedingInput, r BreedingRecord) []query.Key {
			return breedingWriteKeys(dedupe(in.AnimalID, r.AnimalID)...)
		},
	}
}

// UpdateBreeding may move the record to another animal, so the previous owner's
// views go stale as well.
func (s *Service) UpdateBreeding() *query.Mutation[BreedingUpdate, BreedingRecord] {
	m := &moves{}
	lookup := func(id int64) owner {
		return cachedOwner(s.cache, BreedingKeys, id,
			func(r BreedingRecord) int64 { return r.ID },
			func(r BreedingRecord) int64 { return r.AnimalID })
	}
	return &query.Mutation[BreedingUpdate, BreedingRecord]{
		Fn: tracked(m, func(u BreedingUpdate) int64 { return u.ID }, lookup, s.api.UpdateBreeding),
		OnSuccess: func(_ BreedingUpdate, r BreedingRecord) {
			s.cache.SetQueryData(BreedingKeys.Detail(r.ID), r)
		},
		Invalidates: func(u BreedingUpdate, r BreedingRecord) []query.Key {
			prev := m.take(u.ID)
			keys := append(breedingWriteKeys(dedupe(u.Input.AnimalID, r.AnimalID, prev.animalID)...), BreedingKeys.Detail(u.ID))
			if !prev.known {
				keys = append(keys, BreedingKeys.AllByAnimal(), AnimalKeys.Details())
			}
			return keys
		},
	}
}

func (s *Service) DeleteBreeding() *query.Mutation[RecordRef, *httpclient.Response] {
	return &query.Mutation[RecordRef, *httpclient.Response]{
		Fn: s.api.DeleteBreeding,
		OnSuccess: func(ref RecordRef, _ *httpclient.Response) {
			s.cache.StopObserving(BreedingKeys.Detail(ref.ID))
		},
		Invalidates: func(ref RecordRef, _ *httpclient.Response) []query.Key {
			return append(breedingWriteKeys(dedupe(ref.AnimalID)...), BreedingKeys.Detail(ref.ID))
		},
	}
}

// ---- heat detection mutations

func heatWriteKeys(animalIDs ...int64) []query.Key {
	keys := []query.Key{HeatKeys.Lists(), BreedingKeys.Analytics()}
	return append(keys, HeatKeys.byAnimal(animalIDs...)...)
}

func (s *Service) CreateHeat() *query.Mutation[HeatInput, HeatDetection] {
	return &query.Mutation[HeatInput, HeatDetection]{
		Fn: s.api.CreateHeat,
		Invalidates: func(in HeatInput, h HeatDetection) []query.Key {
			return heatWriteKeys(dedupe(in.AnimalID, h.AnimalID)...)
		},
	}
}

func (s *Service) DeleteHeat() *query.Mutation[RecordRef, *httpclient.Response] {
	return &query.Mutation[RecordRef, *httpclient.Response]{
		Fn: s.api.DeleteHeat,
		Invalidates: func(ref RecordRef, _ *httpclient.Response) []query.Key {
			return heatWriteKeys(dedupe(ref.AnimalID)...)
		},
	}
}

// ---- milking mutations

func milkingWriteKeys(animalIDs ...int64) []query.Key {
	keys := []query.Key{
		MilkingKeys.Lists(),
		MilkingKeys.Summaries(),
		MilkingKeys.Analytics(),
		AnimalKeys.Analytics(),
	}
	return append(keys, MilkingKeys.byAnimal(animalIDs...)...)
}

func (s *Service) CreateMilking() *query.Mutation[MilkingInput, MilkingRecord] {
	return &query.Mutation[MilkingInput, MilkingRecord]{
		Fn: s.api.CreateMilking,
		Invalidates: func(in MilkingInput, r MilkingRecord) []query.Key {
			return milkingWriteKeys(dedupe(in.AnimalID, r.AnimalID)...)
		},
	}
}

// UpdateMilking has no detail to read the previous owner from, so it looks in the
// cached milking list.
func (s *Service) UpdateMilking() *query.Mutation[MilkingUpdate, MilkingRecord] {
	m := &moves{}
	lookup := func(id int64) owner {
		return cachedOwner(s.cache, MilkingKeys.animalScopedKeys, id,
			func(r MilkingRecord) int64 { return r.ID },
			func(r MilkingRecord) int64 { return r.AnimalID })
	}
	return &query.Mutation[MilkingUpdate, MilkingRecord]{
		Fn: tracked(m, func(u MilkingUpdate) int64 { return u.ID }, lookup, s.api.UpdateMilking),
		Invalidates: func(u MilkingUpdate, r MilkingRecord) []query.Key {
			prev := m.take(u.ID)
			keys := milkingWriteKeys(dedupe(u.Input.AnimalID, r.AnimalID, prev.animalID)...)
			if !prev.known {
				keys = append(keys, MilkingKeys.AllByAnimal())
			}
			return keys
		},
	}
}

func (s *Service) DeleteMilking() *query.Mutation[RecordRef, *httpclient.Response] {
	return &query.Mutation[RecordRef, *httpclient.Response]{
		Fn: s.api.DeleteMilking,
		Invalidates: func(ref RecordRef, _ *httpclient.Response) []query.Key {
			return milkingWriteKeys(dedupe(ref.AnimalID)...)
		},
	}
}

// ---- health mutations

func healthWriteKeys(animalIDs ...int64) []query.Key {
	keys := []query.Key{HealthKeys.Lists()}
	keys = append(keys, HealthKeys.byAnimal(animalIDs...)...)
	for _, id := range animalIDs {
		if id != 0 {
			keys = append(keys, AnimalKeys.Detail(id))
		}
	}
	return keys
}

func (s *Service) CreateHealth() *query.Mutation[HealthInput, HealthRecord] {
	return &query.Mutation[HealthInput, HealthRecord]{
		Fn: s.api.CreateHealth,
		OnSuccess: func(_ HealthInput, r HealthRecord) {
			s.cache.SetQueryData(HealthKeys.Detail(r.ID), r)
		},
		Invalidates: func(in HealthInput, r HealthRecord) []query.Key {
			return healthWriteKeys(dedupe(in.AnimalID, r.AnimalID)...)
		},
	}
}

func (s *Service) UpdateHealth() *query.Mutation[HealthUpdate, HealthRecord] {
	m := &moves{}
	lookup := func(id int64) owner {
		return cachedOwner(s.cache, HealthKeys, id,
			func(r HealthRecord) int64 { return r.ID },
			func(r HealthRecord) int64 { return r.AnimalID })
	}
	return &query.Mutation[HealthUpdate, HealthRecord]{
		Fn: tracked(m, func(u HealthUpdate) int64 { return u.ID }, lookup, s.api.UpdateHealth),
		OnSuccess: func(_ HealthUpdate, r HealthRecord) {
			s.cache.SetQueryData(HealthKeys.Detail(r.ID), r)
		},
		Invalidates: func(u HealthUpdate, r HealthRecord) []query.Key {
			prev := m.take(u.ID)
			keys := append(healthWriteKeys(dedupe(u.Input.AnimalID, r.AnimalID, prev.animalID)...), HealthKeys.Detail(u.ID))
			if !prev.known {
				keys = append(keys, HealthKeys.AllByAnimal(), AnimalKeys.Details())
			}
			return keys
		},
	}
}

func (s *Service) DeleteHealth() *query.Mutation[RecordRef, *httpclient.Response] {
	return &query.Mutation[RecordRef, *httpclient.Response]{
		Fn: s.api.DeleteHealth,
		OnSuccess: func(ref RecordRef, _ *httpclient.Response) {
			s.cache.StopObserving(HealthKeys.Detail(ref.ID))
		},
		Invalidates: func(ref RecordRef, _ *httpclient.Response) []query.Key {
			return append(healthWriteKeys(dedupe(ref.AnimalID)...), HealthKeys.Detail(ref.ID))
		},
	}
}

// ---- user mutations

func (s *Service) CreateUser() *query.Mutation[UserInput, User] {
	return &query.Mutation[UserInput, User]{
		Fn: s.api.CreateUser,
		OnSuccess: func(_ UserInput, u User) {
			s.cache.SetQueryData(UserKeys.Detail(u.ID), u)
		},
		Invalidates: func(UserInput, User) []query.Key {
			return []query.Key{UserKeys.Lists()}
		},
	}
}

func (s *Service) UpdateUser() *query.Mutation[UserUpdate, User] {
	return &query.Mutation[UserUpdate, User]{
		Fn: s.api.UpdateUser,
		OnSuccess: func(_ UserUpdate, u User) {
			s.cache.SetQueryData(UserKeys.Detail(u.ID), u)
		},
		Invalidates: func(u UserUpdate, _ User) []query.Key {
			return s.userWriteKeys(u.ID)
		},
	}
}

func (s *Service) ChangeUserRole() *query.Mutation[RoleChange, User] {
	return &query.Mutation[RoleChange, User]{
		Fn: s.api.ChangeUserRole,
		OnSuccess: func(_ RoleChange, u User) {
			s.cache.SetQueryData(UserKeys.Detail(u.ID), u)
		},
		Invalidates: func(c RoleChange, _ User) []query.Key {
			return s.userWriteKeys(c.ID)
		},
	}
}

func (s *Service) DeleteUser() *query.Mutation[int64, *httpclient.Response] {
	return &query.Mutation[int64, *httpclient.Response]{
		Fn: s.api.DeleteUser,
		OnSuccess: func(id int64, _ *httpclient.Response) {
			s.cache.StopObserving(UserKeys.Detail(id))
		},
		Invalidates: func(id int64, _ *httpclient.Response) []query.Key {
			return s.userWriteKeys(id)
		},
	}
}

// userWriteKeys includes the signed-in user when the write touched them, or when
// who is signed in is not cached.
func (s *Service) userWriteKeys(id int64) []query.Key {
	keys := []query.Key{UserKeys.Lists(), UserKeys.Detail(id)}
	if me, ok := query.Get[User](s.cache, AuthKeys.Me()); !ok || me.ID == id {
		keys = append(keys, AuthKeys.Me())
	}
	return keys
}

// dedupe returns the distinct non-zero ids.
func dedupe(ids ...int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
