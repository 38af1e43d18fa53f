package herd

import (
	"context"

	"github.com/mitchellh/mapstructure"

	"github.com/herdbook/herdbook/internal/common/httpclient"
)

// Analytics payloads are assembled by the server from aggregate queries, so numbers
// may arrive as strings and counts as floats. They are decoded loosely.

type AnimalAnalytics struct {
	Total      int            `json:"total"`
	ByStatus   map[string]int `json:"byStatus"`
	ByBreed    map[string]int `json:"byBreed"`
	AverageAge float64        `json:"averageAge"`
}

type BreedingAnalytics struct {
	Total                int            `json:"total"`
	SuccessRate          float64        `json:"successRate"`
	PendingConfirmations int            `json:"pendingConfirmations"`
	UpcomingCalvings     int            `json:"upcomingCalvings"`
	ByMethod             map[string]int `json:"byMethod"`
	HeatDetections       int            `json:"heatDetections"`
}

type ProducerStat struct {
	AnimalID  int64   `json:"animalId"`
	TagNumber string  `json:"tagNumber"`
	Quantity  float64 `json:"quantity"`
}

type MilkingAnalytics struct {
	TotalQuantity     float64            `json:"totalQuantity"`
	AveragePerAnimal  float64            `json:"averagePerAnimal"`
	AveragePerDay     float64            `json:"averagePerDay"`
	LactatingAnimals  int                `json:"lactatingAnimals"`
	TopProducers      []ProducerStat     `json:"topProducers"`
	QuantityBySession map[string]float64 `json:"quantityBySession"`
}

func getAnalytics[T any](ctx context.Context, a *API, path string) (T, error) {
	var out T
	raw, err := get[map[string]any](ctx, a, path, nil)
	if err != nil {
		return out, err
	}
	if err := decodeLoose(raw, &out); err != nil {
		return out, httpclient.ErrMalformedResponse.Err(err)
	}
	return out, nil
}

// decodeLoose decodes a generic JSON object into out using its json tags, converting
// between strings, numbers and booleans where needed.
func decodeLoose(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		TagName:          "json",
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}
