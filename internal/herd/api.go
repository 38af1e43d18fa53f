// Package herd is the domain layer of the dairy-herd API: typed request functions
// for every resource, the cache keys of each resource, and cached queries and
// mutations that keep the cache consistent after writes.
package herd

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/herdbook/herdbook/internal/common/httpclient"
)

// API calls the herd REST endpoints. Every method is a direct composition over the
// transport and caches nothing.
type API struct {
	c httpclient.Doer
}

func NewAPI(d httpclient.Doer) *API {
	return &API{c: d}
}

func get[T any](ctx context.Context, a *API, path string, query url.Values) (T, error) {
	return httpclient.Fetch[T](ctx, a.c, path, httpclient.RequestOptions{Query: query})
}

// send validates body and issues a write.
func send[T any](ctx context.Context, a *API, method, path string, body any) (T, error) {
	if body != nil {
		if err := validatePayload(body); err != nil {
			var zero T
			return zero, err
		}
	}
	return httpclient.Fetch[T](ctx, a.c, path, httpclient.RequestOptions{Method: method, Body: body})
}

func remove(ctx context.Context, a *API, path string) (*httpclient.Response, error) {
	return httpclient.FetchResponse(ctx, a.c, path, httpclient.RequestOptions{Method: http.MethodDelete})
}

func idPath(base string, id int64, rest ...string) string {
	p := fmt.Sprintf("%s/%d", base, id)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

func byAnimalQuery(animalID int64) url.Values {
	return url.Values{"animalId": {strconv.FormatInt(animalID, 10)}}
}

const (
	loginPath   = "/auth/login"
	logoutPath  = "/auth/logout"
	mePath      = "/auth/me"
	animalsPath = "/animals"
	breedPath   = "/breeding"
	heatPath    = "/heat-detections"
	milkingPath = "/milking"
	healthPath  = "/health"
	usersPath   = "/users"
	versionPath = "/version"
)

// Auth

func (a *API) Login(ctx context.Context, creds Credentials) (LoginResponse, error) {
	return send[LoginResponse](ctx, a, http.MethodPost, loginPath, creds)
}

func (a *API) Logout(ctx context.Context) (*httpclient.Response, error) {
	return httpclient.FetchResponse(ctx, a.c, logoutPath, httpclient.RequestOptions{Method: http.MethodPost})
}

func (a *API) Me(ctx context.Context) (User, error) {
	return get[User](ctx, a, mePath, nil)
}

// Animals

func (a *API) ListAnimals(ctx context.Context) ([]Animal, error) {
	return get[[]Animal](ctx, a, animalsPath, nil)
}

func (a *API) ListAnimalsByStatus(ctx context.Context, status AnimalStatus) ([]Animal, error) {
	return get[[]Animal](ctx, a, animalsPath, url.Values{"status": {string(status)}})
}

func (a *API) GetAnimal(ctx context.Context, id int64) (Animal, error) {
	return get[Animal](ctx, a, idPath(animalsPath, id), nil)
}

func (a *API) CreateAnimal(ctx context.Context, in AnimalInput) (Animal, error) {
	return send[Animal](ctx, a, http.MethodPost, animalsPath, in)
}

func (a *API) UpdateAnimal(ctx context.Context, u AnimalUpdate) (Animal, error) {
	return send[Animal](ctx, a, http.MethodPut, idPath(animalsPath, u.ID), u.Input)
}

func (a *API) UpdateAnimalStatus(ctx context.Context, c StatusChange) (Animal, error) {
	return send[Animal](ctx, a, http.MethodPatch, idPath(animalsPath, c.ID, "status"), c)
}

func (a *API) DeleteAnimal(ctx context.Context, id int64) (*httpclient.Response, error) {
	return remove(ctx, a, idPath(animalsPath, id))
}

func (a *API) AnimalAnalytics(ctx context.Context) (AnimalAnalytics, error) {
	return getAnalytics[AnimalAnalytics](ctx, a, animalsPath+"/analytics")
}

// Breeding

func (a *API) ListBreeding(ctx context.Context) ([]BreedingRecord, error) {
	return get[[]BreedingRecord](ctx, a, breedPath, nil)
}

func (a *API) ListBreedingByAnimal(ctx context.Context, animalID int64) ([]BreedingRecord, error) {
	return get[[]BreedingRecord](ctx, a, breedPath, byAnimalQuery(animalID))
}

func (a *API) GetBreeding(ctx context.Context, id int64) (BreedingRecord, error) {
	return get[BreedingRecord](ctx, a, idPath(breedPath, id), nil)
}

func (a *API) CreateBreeding(ctx context.Context, in BreedingInput) (BreedingRecord, error) {
	return send[BreedingRecord](ctx, a, http.MethodPost, breedPath, in)
}

func (a *API) UpdateBreeding(ctx context.Context, u BreedingUpdate) (BreedingRecord, error) {
	return send[BreedingRecord](ctx, a, http.MethodPut, idPath(breedPath, u.ID), u.Input)
}

func (a *API) DeleteBreeding(ctx context.Context, ref RecordRef) (*httpclient.Response, error) {
	return remove(ctx, a, idPath(breedPath, ref.ID))
}

func (a *API) BreedingAnalytics(ctx context.Context) (BreedingAnalytics, error) {
	return getAnalytics[BreedingAnalytics](ctx, a, breedPath+"/analytics")
}

// Heat detections

func (a *API) ListHeat(ctx context.Context) ([]HeatDetection, error) {
	return get[[]HeatDetection](ctx, a, heatPath, nil)
}

func (a *API) ListHeatByAnimal(ctx context.Context, animalID int64) ([]HeatDetection, error) {
	return get[[]HeatDetection](ctx, a, heatPath, byAnimalQuery(animalID))
}

func (a *API) CreateHeat(ctx context.Context, in HeatInput) (HeatDetection, error) {
	return send[HeatDetection](ctx, a, http.MethodPost, heatPath, in)
}

func (a *API) DeleteHeat(ctx context.Context, ref RecordRef) (*httpclient.Response, error) {
	return remove(ctx, a, idPath(heatPath, ref.ID))
}

// Milking

func (a *API) ListMilking(ctx context.Context) ([]MilkingRecord, error) {
	return get[[]MilkingRecord](ctx, a, milkingPath, nil)
}

func (a *API) ListMilkingByAnimal(ctx context.Context, animalID int64) ([]MilkingRecord, error) {
	return get[[]MilkingRecord](ctx, a, milkingPath, byAnimalQuery(animalID))
}

func (a *API) CreateMilking(ctx context.Context, in MilkingInput) (MilkingRecord, error) {
	return send[MilkingRecord](ctx, a, http.MethodPost, milkingPath, in)
}

func (a *API) UpdateMilking(ctx context.Context, u MilkingUpdate) (MilkingRecord, error) {
	return send[MilkingRecord](ctx, a, http.MethodPut, idPath(milkingPath, u.ID), u.Input)
}

func (a *API) DeleteMilking(ctx context.Context, ref RecordRef) (*httpclient.Response, error) {
	return remove(ctx, a, idPath(milkingPath, ref.ID))
}

func (a *API) MilkingSummaries(ctx context.Context) ([]MilkingSummary, error) {
	return get[[]MilkingSummary](ctx, a, milkingPath+"/summaries", nil)
}

func (a *API) MilkingAnalytics(ctx context.Context) (MilkingAnalytics, error) {
	return getAnalytics[MilkingAnalytics](ctx, a, milkingPath+"/analytics")
}

// Health

func (a *API) ListHealth(ctx context.Context) ([]HealthRecord, error) {
	return get[[]HealthRecord](ctx, a, healthPath, nil)
}

func (a *API) ListHealthByAnimal(ctx context.Context, animalID int64) ([]HealthRecord, error) {
	return get[[]HealthRecord](ctx, a, healthPath, byAnimalQuery(animalID))
}

func (a *API) GetHealth(ctx context.Context, id int64) (HealthRecord, error) {
	return get[HealthRecord](ctx, a, idPath(healthPath, id), nil)
}

func (a *API) CreateHealth(ctx context.Context, in HealthInput) (HealthRecord, error) {
	return send[HealthRecord](ctx, a, http.MethodPost, healthPath, in)
}

func (a *API) UpdateHealth(ctx context.Context, u HealthUpdate) (HealthRecord, error) {
	return send[HealthRecord](ctx, a, http.MethodPut, idPath(healthPath, u.ID), u.Input)
}

func (a *API) DeleteHealth(ctx context.Context, ref RecordRef) (*httpclient.Response, error) {
	return remove(ctx, a, idPath(healthPath, ref.ID))
}

// Users

func (a *API) ListUsers(ctx context.Context) ([]User, error) {
	return get[[]User](ctx, a, usersPath, nil)
}

func (a *API) GetUser(ctx context.Context, id int64) (User, error) {
	return get[User](ctx, a, idPath(usersPath, id), nil)
}

// CreateUser requires a password in addition to the fields UpdateUser accepts.
func (a *API) CreateUser(ctx context.Context, in UserInput) (User, error) {
	if in.Password == "" {
		return User{}, httpclient.ErrInvalidRequest.New("Invalid input: password is required")
	}
	return send[User](ctx, a, http.MethodPost, usersPath, in)
}

func (a *API) UpdateUser(ctx context.Context, u UserUpdate) (User, error) {
	return send[User](ctx, a, http.MethodPut, idPath(usersPath, u.ID), u.Input)
}

func (a *API) ChangeUserRole(ctx context.Context, c RoleChange) (User, error) {
	return send[User](ctx, a, http.MethodPatch, idPath(usersPath, c.ID, "role"), c)
}

func (a *API) DeleteUser(ctx context.Context, id int64) (*httpclient.Response, error) {
	return remove(ctx, a, idPath(usersPath, id))
}

// Version

func (a *API) Version(ctx context.Context) (VersionInfo, error) {
	return get[VersionInfo](ctx, a, versionPath, nil)
}
