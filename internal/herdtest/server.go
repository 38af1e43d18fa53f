// Package herdtest runs an in-memory herd API for tests. It implements every route
// the client uses, counts requests per route, and can be told to fail routes or to
// expire the session token.
package herdtest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"

	"github.com/herdbook/herdbook/internal/herd"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	AdminEmail    = "admin@herd.test"
	AdminPassword = "correct-horse"
	DefaultToken  = "test-token"
	APIVersion    = "1.4.0"
	createdAt     = "2024-03-01T06:00:00Z"
)

type failure struct {
	status int
	body   string
}

// Server is a fake herd API backed by maps.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	token     string
	version   VersionInfo
	lastID    int64
	hits      map[string]int
	failures  map[string]failure
	delays    map[string]time.Duration
	passwords map[string]string
	lastAuth  string

	animals  *collection[herd.Animal, herd.AnimalInput]
	breeding *collection[herd.BreedingRecord, herd.BreedingInput]
	heat     *collection[herd.HeatDetection, herd.HeatInput]
	milking  *collection[herd.MilkingRecord, herd.MilkingInput]
	health   *collection[herd.HealthRecord, herd.HealthInput]
	users    *collection[herd.User, herd.UserInput]
}

// VersionInfo mirrors herd.VersionInfo so the served version can be changed.
type VersionInfo = herd.VersionInfo

// New starts a server seeded with one admin user. It is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := NewUnstarted()
	s.Server = httptest.NewServer(s.Handler())
	t.Cleanup(s.Close)
	return s
}

// NewUnstarted returns a server whose Handler can be mounted without a listener.
func NewUnstarted() *Server {
	s := &Server{
		token:     DefaultToken,
		version:   VersionInfo{Version: "2024.3.1", APIVersion: APIVersion},
		hits:      make(map[string]int),
		failures:  make(map[string]failure),
		delays:    make(map[string]time.Duration),
		passwords: make(map[string]string),
	}
	s.initCollections()

	admin := herd.User{ID: s.nextID(), Name: "Admin", Email: AdminEmail, Role: herd.RoleAdmin, CreatedAt: createdAt}
	s.users.rows[admin.ID] = admin
	s.passwords[AdminEmail] = AdminPassword
	return s
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestLogger, PanicHandler)

	s.route(r, http.MethodPost, "/auth/login", s.login, true)
	s.route(r, http.MethodPost, "/auth/logout", s.logout, false)
	s.route(r, http.MethodGet, "/auth/me", s.me, false)
	s.route(r, http.MethodGet, "/version", s.getVersion, true)

	s.route(r, http.MethodGet, "/animals", s.animals.list, false)
	s.route(r, http.MethodPost, "/animals", s.animals.create, false)
	s.route(r, http.MethodGet, "/animals/analytics", s.animalAnalytics, false)
	s.route(r, http.MethodGet, "/animals/{id}", s.animals.get, false)
	s.route(r, http.MethodPut, "/animals/{id}", s.animals.update, false)
	s.route(r, http.MethodPatch, "/animals/{id}/status", s.changeStatus, false)
	s.route(r, http.MethodDelete, "/animals/{id}", s.animals.remove, false)

	s.route(r, http.MethodGet, "/breeding", s.breeding.list, false)
	s.route(r, http.MethodPost, "/breeding", s.breeding.create, false)
	s.route(r, http.MethodGet, "/breeding/analytics", s.breedingAnalytics, false)
	s.route(r, http.MethodGet, "/breeding/{id}", s.breeding.get, false)
	s.route(r, http.MethodPut, "/breeding/{id}", s.breeding.update, false)
	s.route(r, http.MethodDelete, "/breeding/{id}", s.breeding.remove, false)

	s.route(r, http.MethodGet, "/heat-detections", s.heat.list, false)
	s.route(r, http.MethodPost, "/heat-detections", s.heat.create, false)
	s.route(r, http.MethodDelete, "/heat-detections/{id}", s.heat.remove, false)

	s.route(r, http.MethodGet, "/milking", s.milking.list, false)
	s.route(r, http.MethodPost, "/milking", s.milking.create, false)
	s.route(r, http.MethodGet, "/milking/summaries", s.milkingSummaries, false)
	s.route(r, http.MethodGet, "/milking/analytics", s.milkingAnalytics, false)
	s.route(r, http.MethodPut, "/milking/{id}", s.milking.update, false)
	s.route(r, http.MethodDelete, "/milking/{id}", s.milking.remove, false)

	s.route(r, http.MethodGet, "/health", s.health.list, false)
	s.route(r, http.MethodPost, "/health", s.health.create, false)
	s.route(r, http.MethodGet, "/health/{id}", s.health.get, false)
	s.route(r, http.MethodPut, "/health/{id}", s.health.update, false)
	s.route(r, http.MethodDelete, "/health/{id}", s.health.remove, false)

	s.route(r, http.MethodGet, "/users", s.users.list, false)
	s.route(r, http.MethodPost, "/users", s.users.create, false)
	s.route(r, http.MethodGet, "/users/{id}", s.users.get, false)
	s.route(r, http.MethodPut, "/users/{id}", s.users.update, false)
	s.route(r, http.MethodPatch, "/users/{id}/role", s.changeRole, false)
	s.route(r, http.MethodDelete, "/users/{id}", s.users.remove, false)

	return r
}

// route registers h behind request counting, failure injection and, unless public,
// bearer token checks.
func (s *Server) route(r chi.Router, method, pattern string, h http.HandlerFunc, public bool) {
	name := method + " " + pattern
	r.Method(method, pattern, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.mu.Lock()
		s.hits[name]++
		s.lastAuth = req.Header.Get("Authorization")
		f, failing := s.failures[name]
		delay := s.delays[name]
		token := s.token
		s.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-req.Context().Done():
				return
			}
		}

		if failing {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.status)
			_, _ = w.Write([]byte(f.body))
			return
		}
		if !public {
			auth := req.Header.Get("Authorization")
			if auth == "" {
				writeError(w, http.StatusUnauthorized, "error", "Authentication required")
				return
			}
			if token == "" || auth != "Bearer "+token {
				writeError(w, http.StatusUnauthorized, "error", "Invalid or expired token")
				return
			}
		}
		h(w, req)
	}))
}

// Hits returns how many requests reached the route, e.g. Hits("GET", "/animals/{id}").
func (s *Server) Hits(method, pattern string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[method+" "+pattern]
}

// ResetHits zeroes every counter.
func (s *Server) ResetHits() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits = make(map[string]int)
}

// LastAuthorization returns the Authorization header of the most recent request.
func (s *Server) LastAuthorization() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAuth
}

// Fail makes every request to the route answer with status and the raw body until
// ClearFailures is called.
func (s *Server) Fail(method, pattern string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+pattern] = failure{status: status, body: body}
}

// ClearFailures removes every injected failure and delay.
func (s *Server) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = make(map[string]failure)
	s.delays = make(map[string]time.Duration)
}

// Delay holds every response of the route for d, or until the request is canceled.
func (s *Server) Delay(method, pattern string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[method+" "+pattern] = d
}

// Token is the bearer token the server currently accepts.
func (s *Server) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// ExpireToken makes the current token invalid; the next login issues a new one.
func (s *Server) ExpireToken() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
}

// SetAPIVersion changes the version reported by GET /version.
func (s *Server) SetAPIVersion(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version.APIVersion = v
}

// SeedAnimals stores animals with fresh ids and returns them.
func (s *Server) SeedAnimals(inputs ...herd.AnimalInput) []herd.Animal {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]herd.Animal, 0, len(inputs))
	for _, in := range inputs {
		a := s.animals.build(s.nextID(), in)
		s.animals.rows[a.ID] = a
		out = append(out, a)
	}
	return out
}

// SeedMilking stores milking records with fresh ids and returns them.
func (s *Server) SeedMilking(inputs ...herd.MilkingInput) []herd.MilkingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]herd.MilkingRecord, 0, len(inputs))
	for _, in := range inputs {
		m := s.milking.build(s.nextID(), in)
		s.milking.rows[m.ID] = m
		out = append(out, m)
	}
	return out
}

// nextID is called with s.mu held.
func (s *Server) nextID() int64 {
	s.lastID++
	return s.lastID
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError sends {field: msg}; the API uses both "error" and "message".
func writeError(w http.ResponseWriter, status int, field, msg string) {
	writeJSON(w, status, map[string]string{field: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "message", "Invalid request body")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "message", "Invalid id")
		return 0, false
	}
	return id, true
}

func animalIDFilter(r *http.Request) (int64, bool) {
	v := r.URL.Query().Get("animalId")
	if v == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(v, 10, 64)
	return id, err == nil
}

func sortedRows[T any](rows map[int64]T, keep func(T) bool) []T {
	ids := make([]int64, 0, len(rows))
	for id := range rows {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		if keep == nil || keep(rows[id]) {
			out = append(out, rows[id])
		}
	}
	return out
}

func notFound(label string) string {
	return fmt.Sprintf("%s not found", strings.ToUpper(label[:1])+label[1:])
}
