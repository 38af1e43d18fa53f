package herd

import (
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/gjson"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Filter returns the items for which keep is true, preserving order.
func Filter[T any](items []T, keep func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}

// MatchField keeps the items whose JSON form has value at path, compared without
// regard to case. path uses gjson syntax, e.g. "status" or "user.role".
func MatchField[T any](items []T, path, value string) []T {
	return Filter(items, func(it T) bool {
		b, err := json.Marshal(it)
		if err != nil {
			return false
		}
		res := gjson.GetBytes(b, path)
		return res.Exists() && strings.EqualFold(res.String(), value)
	})
}

// Page is one page of an already-fetched list.
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// Paginate returns the 1-based page of items. A page size of zero or less puts
// everything on one page; a page past the end is empty.
func Paginate[T any](items []T, page, pageSize int) Page[T] {
	total := len(items)
	if pageSize <= 0 {
		pageSize = total
	}
	if page < 1 {
		page = 1
	}
	totalPages := 0
	if pageSize > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}

	p := Page[T]{Page: page, PageSize: pageSize, Total: total, TotalPages: totalPages, Items: []T{}}
	start := (page - 1) * pageSize
	if start >= total {
		return p
	}
	end := min(start+pageSize, total)
	p.Items = items[start:end]
	return p
}
