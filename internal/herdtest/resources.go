package herdtest

import (
	"cmp"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/herdbook/herdbook/internal/herd"
)

// collection serves list, create, get, update and delete for one resource.
type collection[T any, In any] struct {
	s     *Server
	label string
	rows  map[int64]T

	// build makes the stored row for id from the request body. Called with s.mu held.
	build func(id int64, in In) T
	// animalOf enables ?animalId= filtering. Nil for resources not owned by an animal.
	animalOf func(T) int64
	// filter narrows list results from other query parameters.
	filter func(r *http.Request, row T) bool
	// conflict rejects a write; id is zero on create. Called with s.mu held.
	conflict func(id int64, in In) (int, string)
	// removed runs after a row is deleted. Called with s.mu held.
	removed func(id int64)
}

func newCollection[T, In any](s *Server, label string, build func(int64, In) T) *collection[T, In] {
	return &collection[T, In]{s: s, label: label, rows: make(map[int64]T), build: build}
}

func (c *collection[T, In]) list(w http.ResponseWriter, r *http.Request) {
	animalID, byAnimal := animalIDFilter(r)
	c.s.mu.Lock()
	rows := sortedRows(c.rows, func(row T) bool {
		if byAnimal && c.animalOf != nil && c.animalOf(row) != animalID {
			return false
		}
		return c.filter == nil || c.filter(r, row)
	})
	c.s.mu.Unlock()
	writeJSON(w, http.StatusOK, rows)
}

func (c *collection[T, In]) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	c.s.mu.Lock()
	row, found := c.rows[id]
	c.s.mu.Unlock()
	if !found {
		writeError(w, http.StatusNotFound, "error", notFound(c.label))
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (c *collection[T, In]) create(w http.ResponseWriter, r *http.Request) {
	var in In
	if !decodeBody(w, r, &in) {
		return
	}
	c.s.mu.Lock()
	if status, msg := c.check(0, in); status != 0 {
		c.s.mu.Unlock()
		writeError(w, status, "message", msg)
		return
	}
	row := c.build(c.s.nextID(), in)
	c.rows[c.idOf(row)] = row
	c.s.mu.Unlock()
	writeJSON(w, http.StatusCreated, row)
}

func (c *collection[T, In]) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in In
	if !decodeBody(w, r, &in) {
		return
	}
	c.s.mu.Lock()
	if _, found := c.rows[id]; !found {
		c.s.mu.Unlock()
		writeError(w, http.StatusNotFound, "error", notFound(c.label))
		return
	}
	if status, msg := c.check(id, in); status != 0 {
		c.s.mu.Unlock()
		writeError(w, status, "message", msg)
		return
	}
	row := c.build(id, in)
	c.rows[id] = row
	c.s.mu.Unlock()
	writeJSON(w, http.StatusOK, row)
}

func (c *collection[T, In]) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	c.s.mu.Lock()
	_, found := c.rows[id]
	if found {
		delete(c.rows, id)
		if c.removed != nil {
			c.removed(id)
		}
	}
	c.s.mu.Unlock()
	if !found {
		writeError(w, http.StatusNotFound, "error", notFound(c.label))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *collection[T, In]) check(id int64, in In) (int, string) {
	if c.conflict == nil {
		return 0, ""
	}
	return c.conflict(id, in)
}

// idOf reads the id back through JSON so build stays the single source of ids.
func (c *collection[T, In]) idOf(row T) int64 {
	var v struct {
		ID int64 `json:"id"`
	}
	b, _ := json.Marshal(row)
	_ = json.Unmarshal(b, &v)
	return v.ID
}

// removeWhere deletes every row owned by animalID. Called with s.mu held.
func (c *collection[T, In]) removeWhere(animalID int64) {
	for id, row := range c.rows {
		if c.animalOf(row) == animalID {
			delete(c.rows, id)
		}
	}
}

func (s *Server) initCollections() {
	s.animals = newCollection(s, "animal", func(id int64, in herd.AnimalInput) herd.Animal {
		return herd.Animal{
			ID:        id,
			TagNumber: in.TagNumber,
			Name:      in.Name,
			Breed:     in.Breed,
			BirthDate: in.BirthDate,
			Status:    in.Status,
			Notes:     in.Notes,
			CreatedAt: createdAt,
		}
	})
	s.animals.filter = func(r *http.Request, a herd.Animal) bool {
		status := r.URL.Query().Get("status")
		return status == "" || string(a.Status) == status
	}
	s.animals.conflict = func(id int64, in herd.AnimalInput) (int, string) {
		if in.TagNumber == "" {
			return http.StatusBadRequest, "Tag number is required"
		}
		for _, a := range s.animals.rows {
			if a.ID != id && strings.EqualFold(a.TagNumber, in.TagNumber) {
				return http.StatusConflict, "Tag already in use"
			}
		}
		return 0, ""
	}
	s.animals.removed = func(id int64) {
		s.breeding.removeWhere(id)
		s.heat.removeWhere(id)
		s.milking.removeWhere(id)
		s.health.removeWhere(id)
	}

	s.breeding = newCollection(s, "breeding record", func(id int64, in herd.BreedingInput) herd.BreedingRecord {
		return herd.BreedingRecord{
			ID:                  id,
			AnimalID:            in.AnimalID,
			BreedingDate:        in.BreedingDate,
			Method:              in.Method,
			Sire:                in.Sire,
			ExpectedCalvingDate: in.ExpectedCalvingDate,
			Status:              in.Status,
			Notes:               in.Notes,
		}
	})
	s.breeding.animalOf = func(b herd.BreedingRecord) int64 { return b.AnimalID }
	s.breeding.conflict = func(_ int64, in herd.BreedingInput) (int, string) {
		return s.requireAnimal(in.AnimalID)
	}

	s.heat = newCollection(s, "heat detection", func(id int64, in herd.HeatInput) herd.HeatDetection {
		return herd.HeatDetection{
			ID:         id,
			AnimalID:   in.AnimalID,
			DetectedAt: in.DetectedAt,
			Intensity:  in.Intensity,
			Signs:      in.Signs,
			Notes:      in.Notes,
		}
	})
	s.heat.animalOf = func(h herd.HeatDetection) int64 { return h.AnimalID }
	s.heat.conflict = func(_ int64, in herd.HeatInput) (int, string) {
		return s.requireAnimal(in.AnimalID)
	}

	s.milking = newCollection(s, "milking record", func(id int64, in herd.MilkingInput) herd.MilkingRecord {
		return herd.MilkingRecord{
			ID:       id,
			AnimalID: in.AnimalID,
			Date:     in.Date,
			Session:  in.Session,
			Quantity: in.Quantity,
			Notes:    in.Notes,
		}
	})
	s.milking.animalOf = func(m herd.MilkingRecord) int64 { return m.AnimalID }
	s.milking.conflict = func(_ int64, in herd.MilkingInput) (int, string) {
		return s.requireAnimal(in.AnimalID)
	}

	s.health = newCollection(s, "health record", func(id int64, in herd.HealthInput) herd.HealthRecord {
		return herd.HealthRecord{
			ID:           id,
			AnimalID:     in.AnimalID,
			Date:         in.Date,
			Type:         in.Type,
			Description:  in.Description,
			Veterinarian: in.Veterinarian,
			Medication:   in.Medication,
			Cost:         in.Cost,
			Notes:        in.Notes,
		}
	})
	s.health.animalOf = func(h herd.HealthRecord) int64 { return h.AnimalID }
	s.health.conflict = func(_ int64, in herd.HealthInput) (int, string) {
		return s.requireAnimal(in.AnimalID)
	}

	s.users = newCollection(s, "user", func(id int64, in herd.UserInput) herd.User {
		if in.Password != "" {
			s.passwords[in.Email] = in.Password
		}
		return herd.User{ID: id, Name: in.Name, Email: in.Email, Role: in.Role, CreatedAt: createdAt}
	})
	s.users.conflict = func(id int64, in herd.UserInput) (int, string) {
		if id == 0 && in.Password == "" {
			return http.StatusBadRequest, "Password is required"
		}
		for _, u := range s.users.rows {
			if u.ID != id && strings.EqualFold(u.Email, in.Email) {
				return http.StatusConflict, "Email already registered"
			}
		}
		return 0, ""
	}
}

// requireAnimal is called with s.mu held.
func (s *Server) requireAnimal(id int64) (int, string) {
	if _, ok := s.animals.rows[id]; !ok {
		return http.StatusBadRequest, "Animal does not exist"
	}
	return 0, ""
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var creds herd.Credentials
	if !decodeBody(w, r, &creds) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if pw, ok := s.passwords[creds.Email]; !ok || pw != creds.Password {
		writeError(w, http.StatusUnauthorized, "message", "Invalid credentials")
		return
	}
	if s.token == "" {
		s.token = fmt.Sprintf("%s-%d", DefaultToken, s.nextID())
	}
	var user herd.User
	for _, u := range s.users.rows {
		if strings.EqualFold(u.Email, creds.Email) {
			user = u
		}
	}
	writeJSON(w, http.StatusOK, herd.LoginResponse{Token: s.token, User: user})
}

func (s *Server) logout(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) me(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range sortedRows(s.users.rows, nil) {
		if u.Email == AdminEmail {
			writeJSON(w, http.StatusOK, u)
			return
		}
	}
	writeError(w, http.StatusUnauthorized, "error", "Invalid or expired token")
}

func (s *Server) getVersion(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	v := s.version
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) changeStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		Status herd.AnimalStatus `json:"status"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if !slices.Contains(herd.AnimalStatuses, body.Status) {
		writeError(w, http.StatusBadRequest, "message", "Invalid status")
		return
	}
	s.mu.Lock()
	a, found := s.animals.rows[id]
	if found {
		a.Status = body.Status
		a.UpdatedAt = createdAt
		s.animals.rows[id] = a
	}
	s.mu.Unlock()
	if !found {
		writeError(w, http.StatusNotFound, "error", notFound(s.animals.label))
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) changeRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		Role herd.Role `json:"role"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	s.mu.Lock()
	u, found := s.users.rows[id]
	if found {
		u.Role = body.Role
		s.users.rows[id] = u
	}
	s.mu.Unlock()
	if !found {
		writeError(w, http.StatusNotFound, "error", notFound(s.users.label))
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// Analytics numbers are partly sent as strings, the way aggregate SQL results
// come back from the real server.

func (s *Server) animalAnalytics(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byStatus := map[string]int{}
	byBreed := map[string]int{}
	for _, a := range s.animals.rows {
		byStatus[string(a.Status)]++
		if a.Breed != "" {
			byBreed[a.Breed]++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":      fmt.Sprint(len(s.animals.rows)),
		"byStatus":   byStatus,
		"byBreed":    byBreed,
		"averageAge": "0.0",
	})
}

func (s *Server) breedingAnalytics(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byMethod := map[string]int{}
	var confirmed, pending, calved int
	for _, b := range s.breeding.rows {
		byMethod[b.Method]++
		switch b.Status {
		case "pending":
			pending++
		case "confirmed":
			confirmed++
		case "calved":
			calved++
		}
	}
	rate := 0.0
	if n := len(s.breeding.rows); n > 0 {
		rate = float64(confirmed+calved) * 100 / float64(n)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":                len(s.breeding.rows),
		"successRate":          fmt.Sprintf("%.1f", rate),
		"pendingConfirmations": pending,
		"upcomingCalvings":     float64(confirmed),
		"byMethod":             byMethod,
		"heatDetections":       fmt.Sprint(len(s.heat.rows)),
	})
}

func (s *Server) milkingAnalytics(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total float64
	perAnimal := map[int64]float64{}
	bySession := map[string]float64{}
	days := map[string]bool{}
	for _, m := range s.milking.rows {
		total += m.Quantity
		perAnimal[m.AnimalID] += m.Quantity
		bySession[m.Session] += m.Quantity
		days[m.Date] = true
	}
	lactating := 0
	for _, a := range s.animals.rows {
		if a.Status == herd.StatusLactating {
			lactating++
		}
	}
	producers := make([]map[string]any, 0, len(perAnimal))
	for id, q := range perAnimal {
		producers = append(producers, map[string]any{
			"animalId":  id,
			"tagNumber": s.animals.rows[id].TagNumber,
			"quantity":  fmt.Sprintf("%.2f", q),
		})
	}
	slices.SortFunc(producers, func(a, b map[string]any) int {
		return cmp.Compare(perAnimal[b["animalId"].(int64)], perAnimal[a["animalId"].(int64)])
	})
	avgAnimal, avgDay := 0.0, 0.0
	if len(perAnimal) > 0 {
		avgAnimal = total / float64(len(perAnimal))
	}
	if len(days) > 0 {
		avgDay = total / float64(len(days))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"totalQuantity":     fmt.Sprintf("%.2f", total),
		"averagePerAnimal":  avgAnimal,
		"averagePerDay":     avgDay,
		"lactatingAnimals":  lactating,
		"topProducers":      producers,
		"quantityBySession": bySession,
	})
}

func (s *Server) milkingSummaries(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byDate := map[string]*herd.MilkingSummary{}
	animals := map[string]map[int64]bool{}
	for _, m := range s.milking.rows {
		sum, ok := byDate[m.Date]
		if !ok {
			sum = &herd.MilkingSummary{Date: m.Date}
			byDate[m.Date] = sum
			animals[m.Date] = map[int64]bool{}
		}
		sum.TotalQuantity += m.Quantity
		animals[m.Date][m.AnimalID] = true
	}
	out := make([]herd.MilkingSummary, 0, len(byDate))
	for date, sum := range byDate {
		sum.AnimalCount = len(animals[date])
		sum.Average = sum.TotalQuantity / float64(sum.AnimalCount)
		out = append(out, *sum)
	}
	slices.SortFunc(out, func(a, b herd.MilkingSummary) int { return strings.Compare(b.Date, a.Date) })
	writeJSON(w, http.StatusOK, out)
}
