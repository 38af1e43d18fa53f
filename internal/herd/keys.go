package herd

import (
	"github.com/herdbook/herdbook/internal/query"
)

// animalScopedKeys adds the per-animal and analytics sub-queries shared by the
// record resources.
type animalScopedKeys struct {
	query.Keys
}

// ByAnimal is the list of records for one animal.
func (k animalScopedKeys) ByAnimal(animalID int64) query.Key {
	return k.Sub("byAnimal", animalID)
}

// AllByAnimal covers ByAnimal for every animal.
func (k animalScopedKeys) AllByAnimal() query.Key {
	return k.Sub("byAnimal")
}

func (k animalScopedKeys) Analytics() query.Key {
	return k.Sub("analytics")
}

// byAnimal returns ByAnimal for each known animal, or AllByAnimal when none is known.
func (k animalScopedKeys) byAnimal(ids ...int64) []query.Key {
	var keys []query.Key
	seen := make(map[int64]bool)
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		keys = append(keys, k.ByAnimal(id))
	}
	if len(keys) == 0 {
		return []query.Key{k.AllByAnimal()}
	}
	return keys
}

type authKeys struct {
	query.Keys
}

func (k authKeys) Me() query.Key { return k.Sub("me") }

type animalKeys struct {
	query.Keys
}

// ByStatus is the filtered view of animals in one status.
func (k animalKeys) ByStatus(status AnimalStatus) query.Key {
	return k.Sub("status", string(status))
}

// StatusViews covers ByStatus for every status.
func (k animalKeys) StatusViews() query.Key { return k.Sub("status") }

func (k animalKeys) Analytics() query.Key { return k.Sub("analytics") }

type milkingKeys struct {
	animalScopedKeys
}

func (k milkingKeys) Summaries() query.Key { return k.Sub("summaries") }

var (
	AuthKeys     = authKeys{query.NewKeys("auth")}
	AnimalKeys   = animalKeys{query.NewKeys("animals")}
	BreedingKeys = animalScopedKeys{query.NewKeys("breeding")}
	HeatKeys     = animalScopedKeys{query.NewKeys("heat-detections")}
	MilkingKeys  = milkingKeys{animalScopedKeys{query.NewKeys("milking")}}
	HealthKeys   = animalScopedKeys{query.NewKeys("health")}
	UserKeys     = query.NewKeys("users")
	VersionKey   = query.NewKey("version")
)
