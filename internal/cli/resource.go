package cli

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/tidwall/gjson"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/herdbook/herdbook/internal/common/httpclient"
	"github.com/herdbook/herdbook/internal/herd"
	"github.com/herdbook/herdbook/internal/query"
)

// column is one table column; path selects the value from the item's JSON form.
type column struct {
	title string
	path  string
}

var (
	animalColumns   = []column{{"ID", "id"}, {"TAG", "tagNumber"}, {"NAME", "name"}, {"BREED", "breed"}, {"STATUS", "status"}}
	breedingColumns = []column{{"ID", "id"}, {"ANIMAL", "animalId"}, {"DATE", "breedingDate"}, {"METHOD", "method"}, {"STATUS", "status"}, {"DUE", "expectedCalvingDate"}}
	heatColumns     = []column{{"ID", "id"}, {"ANIMAL", "animalId"}, {"DETECTED", "detectedAt"}, {"INTENSITY", "intensity"}}
	milkingColumns  = []column{{"ID", "id"}, {"ANIMAL", "animalId"}, {"DATE", "date"}, {"SESSION", "session"}, {"QUANTITY", "quantity"}}
	healthColumns   = []column{{"ID", "id"}, {"ANIMAL", "animalId"}, {"DATE", "date"}, {"TYPE", "type"}, {"DESCRIPTION", "description"}}
	userColumns     = []column{{"ID", "id"}, {"NAME", "name"}, {"EMAIL", "email"}, {"ROLE", "role"}}
	summaryColumns  = []column{{"DATE", "date"}, {"TOTAL", "totalQuantity"}, {"ANIMALS", "animalCount"}, {"AVERAGE", "averageQuantity"}}
)

type listOptions struct {
	status   herd.AnimalStatus
	animalID int64
}

type (
	listFunc      func(ctx context.Context, svc *herd.Service, opts listOptions) ([]any, error)
	getFunc       func(ctx context.Context, svc *herd.Service, id int64) (any, error)
	createFunc    func(ctx context.Context, svc *herd.Service, body []byte) (any, error)
	updateFunc    func(ctx context.Context, svc *herd.Service, id int64, body []byte) (any, error)
	removeFunc    func(ctx context.Context, svc *herd.Service, ref herd.RecordRef) error
	analyticsFunc func(ctx context.Context, svc *herd.Service) (any, error)
)

// resource describes what the generic commands can do with one API resource. A nil
// operation is not offered by the API.
type resource struct {
	name      string
	aliases   []string
	columns   []column
	list      listFunc
	get       getFunc
	create    createFunc
	update    updateFunc
	remove    removeFunc
	analytics analyticsFunc
}

var resources = []*resource{
	{
		name:    "animals",
		aliases: []string{"animal"},
		columns: animalColumns,
		list: func(ctx context.Context, svc *herd.Service, opts listOptions) ([]any, error) {
			if opts.status != "" {
				return items(svc.AnimalsByStatus(ctx, opts.status))
			}
			return items(svc.Animals(ctx))
		},
		get:       one((*herd.Service).Animal),
		create:    runCreate((*herd.Service).CreateAnimal),
		update:    runUpdate(func(id int64, in herd.AnimalInput) herd.AnimalUpdate { return herd.AnimalUpdate{ID: id, Input: in} }, (*herd.Service).UpdateAnimal),
		remove:    removeByID((*herd.Service).DeleteAnimal),
		analytics: stats((*herd.Service).AnimalAnalytics),
	},
	{
		name:      "breeding",
		aliases:   []string{"breedings"},
		columns:   breedingColumns,
		list:      listScoped((*herd.Service).BreedingRecords, (*herd.Service).BreedingByAnimal),
		get:       one((*herd.Service).BreedingRecord),
		create:    runCreate((*herd.Service).CreateBreeding),
		update:    runUpdate(func(id int64, in herd.BreedingInput) herd.BreedingUpdate { return herd.BreedingUpdate{ID: id, Input: in} }, (*herd.Service).UpdateBreeding),
		remove:    removeRecord((*herd.Service).DeleteBreeding),
		analytics: stats((*herd.Service).BreedingAnalytics),
	},
	{
		name:    "heat-detections",
		aliases: []string{"heat", "heat-detection"},
		columns: heatColumns,
		list:    listScoped((*herd.Service).HeatDetections, (*herd.Service).HeatByAnimal),
		create:  runCreate((*herd.Service).CreateHeat),
		remove:  removeRecord((*herd.Service).DeleteHeat),
	},
	{
		name:      "milking",
		aliases:   []string{"milkings"},
		columns:   milkingColumns,
		list:      listScoped((*herd.Service).MilkingRecords, (*herd.Service).MilkingByAnimal),
		create:    runCreate((*herd.Service).CreateMilking),
		update:    runUpdate(func(id int64, in herd.MilkingInput) herd.MilkingUpdate { return herd.MilkingUpdate{ID: id, Input: in} }, (*herd.Service).UpdateMilking),
		remove:    removeRecord((*herd.Service).DeleteMilking),
		analytics: stats((*herd.Service).MilkingAnalytics),
	},
	{
		name:    "health",
		aliases: []string{"health-records"},
		columns: healthColumns,
		list:    listScoped((*herd.Service).HealthRecords, (*herd.Service).HealthByAnimal),
		get:     one((*herd.Service).HealthRecord),
		create:  runCreate((*herd.Service).CreateHealth),
		update:  runUpdate(func(id int64, in herd.HealthInput) herd.HealthUpdate { return herd.HealthUpdate{ID: id, Input: in} }, (*herd.Service).UpdateHealth),
		remove:  removeRecord((*herd.Service).DeleteHealth),
	},
	{
		name:    "users",
		aliases: []string{"user"},
		columns: userColumns,
		list: func(ctx context.Context, svc *herd.Service, _ listOptions) ([]any, error) {
			return items(svc.Users(ctx))
		},
		get:    one((*herd.Service).User),
		create: runCreate((*herd.Service).CreateUser),
		update: runUpdate(func(id int64, in herd.UserInput) herd.UserUpdate { return herd.UserUpdate{ID: id, Input: in} }, (*herd.Service).UpdateUser),
		remove: removeByID((*herd.Service).DeleteUser),
	},
}

// lookupResource finds a resource by name or alias.
func lookupResource(name string) (*resource, error) {
	name = strings.ToLower(name)
	for _, r := range resources {
		if r.name == name || slices.Contains(r.aliases, name) {
			return r, nil
		}
	}
	return nil, fmt.Errorf("unknown resource %q; expected one of: %s", name, strings.Join(resourceNames(nil), ", "))
}

// resourceNames lists the resources for which has returns true, or all of them.
func resourceNames(has func(*resource) bool) []string {
	var names []string
	for _, r := range resources {
		if has == nil || has(r) {
			names = append(names, r.name)
		}
	}
	return names
}

func unsupported(op string, r *resource) error {
	return fmt.Errorf("%s is not supported for %s", op, r.name)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func items[T any](list []T, err error) ([]any, error) {
	if err != nil {
		return nil, err
	}
	out := make([]any, len(list))
	for i, v := range list {
		out[i] = v
	}
	return out, nil
}

func listScoped[T any](
	all func(*herd.Service, context.Context) ([]T, error),
	byAnimal func(*herd.Service, context.Context, int64) ([]T, error),
) listFunc {
	return func(ctx context.Context, svc *herd.Service, opts listOptions) ([]any, error) {
		if opts.animalID != 0 {
			return items(byAnimal(svc, ctx, opts.animalID))
		}
		return items(all(svc, ctx))
	}
}

func one[T any](fn func(*herd.Service, context.Context, int64) (T, error)) getFunc {
	return func(ctx context.Context, svc *herd.Service, id int64) (any, error) {
		return fn(svc, ctx, id)
	}
}

func stats[T any](fn func(*herd.Service, context.Context) (T, error)) analyticsFunc {
	return func(ctx context.Context, svc *herd.Service) (any, error) {
		return fn(svc, ctx)
	}
}

func decodePayload[In any](body []byte) (In, error) {
	var in In
	if err := json.Unmarshal(body, &in); err != nil {
		return in, fmt.Errorf("invalid payload: %w", err)
	}
	return in, nil
}

func runCreate[In, R any](mk func(*herd.Service) *query.Mutation[In, R]) createFunc {
	return func(ctx context.Context, svc *herd.Service, body []byte) (any, error) {
		in, err := decodePayload[In](body)
		if err != nil {
			return nil, err
		}
		return mk(svc).Run(ctx, svc.Cache(), in)
	}
}

func runUpdate[In, U, R any](wrap func(int64, In) U, mk func(*herd.Service) *query.Mutation[U, R]) updateFunc {
	return func(ctx context.Context, svc *herd.Service, id int64, body []byte) (any, error) {
		in, err := decodePayload[In](body)
		if err != nil {
			return nil, err
		}
		return mk(svc).Run(ctx, svc.Cache(), wrap(id, in))
	}
}

func removeByID(mk func(*herd.Service) *query.Mutation[int64, *httpclient.Response]) removeFunc {
	return func(ctx context.Context, svc *herd.Service, ref herd.RecordRef) error {
		_, err := mk(svc).Run(ctx, svc.Cache(), ref.ID)
		return err
	}
}

func removeRecord(mk func(*herd.Service) *query.Mutation[herd.RecordRef, *httpclient.Response]) removeFunc {
	return func(ctx context.Context, svc *herd.Service, ref herd.RecordRef) error {
		_, err := mk(svc).Run(ctx, svc.Cache(), ref)
		return err
	}
}

// cell renders the value at path of v's JSON form.
func cell(raw []byte, path string) string {
	res := gjson.GetBytes(raw, path)
	if !res.Exists() {
		return ""
	}
	return res.String()
}

// printTable writes a titled table of rows to w.
func printTable(w io.Writer, title string, rows []any, cols []column) error {
	fmt.Fprintf(w, "%s:\n", cases.Title(language.English).String(title))
	if len(rows) == 0 {
		fmt.Fprintln(w, "  (none)")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	titles := make([]string, len(cols))
	for i, c := range cols {
		titles[i] = c.title
	}
	fmt.Fprintln(tw, strings.Join(titles, "\t"))
	for _, row := range rows {
		raw, err := json.Marshal(row)
		if err != nil {
			return err
		}
		cells := make([]string, len(cols))
		for i, c := range cols {
			cells[i] = cell(raw, c.path)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

// printFields writes one item as "Title:" followed by indented columns.
func printFields(w io.Writer, title string, v any, cols []column) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "%s:\n", title)
	for _, c := range cols {
		fmt.Fprintf(w, "  %s: %s\n", cases.Title(language.English).String(strings.ToLower(c.title)), cell(raw, c.path))
	}
}
