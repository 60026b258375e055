package service

import (
	"slices"
	"sort"
	"strings"

	"docgen/internal/model"
)

// DefaultPageSize applies when a query asks for a non-positive page size.
const DefaultPageSize = 10

// SortKey names a sortable column.
type SortKey string

const (
	SortByName   SortKey = "name"
	SortBySize   SortKey = "size"
	SortByDate   SortKey = "date"
	SortByStatus SortKey = "status"
)

// SortDir is the sort direction.
type SortDir string

const (
	SortAsc  SortDir = "asc"
	SortDesc SortDir = "desc"
)

// Query selects one page of the document list.
type Query struct {
	Search   string
	SortKey  SortKey
	SortDir  SortDir
	Page     int
	PageSize int
}

// Page is the read model handed to the presentation layer.
type Page struct {
	Items      []model.Document `json:"data"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalPages int              `json:"total_pages"`
	Total      int              `json:"total"`
}

// Project filters, sorts and paginates a registry snapshot. It never modifies snapshot.
func Project(snapshot []model.Document, q Query) Page {
	size := q.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	page := q.Page
	if page < 1 {
		page = 1
	}

	needle := strings.ToLower(strings.TrimSpace(q.Search))
	rows := make([]model.Document, 0, len(snapshot))
	for _, d := range snapshot {
		if needle == "" ||
			strings.Contains(strings.ToLower(d.Name), needle) ||
			strings.Contains(strings.ToLower(d.Status.String()), needle) {
			rows = append(rows, d)
		}
	}

	if less := lessFor(q.SortKey); less != nil {
		sort.SliceStable(rows, func(i, j int) bool { return less(rows[i], rows[j]) })
	}
	if q.SortDir == SortDesc {
		slices.Reverse(rows)
	}

	total := len(rows)
	pages := total / size
	if total%size != 0 {
		pages++
	}
	if pages < 1 {
		pages = 1
	}

	items := []model.Document{}
	if page <= pages && total > 0 {
		start := (page - 1) * size
		end := min(start+size, total)
		items = rows[start:end]
	}

	return Page{Items: items, Page: page, PageSize: size, TotalPages: pages, Total: total}
}

func lessFor(key SortKey) func(a, b model.Document) bool {
	switch key {
	case SortByName:
		return func(a, b model.Document) bool { return a.Name < b.Name }
	case SortBySize:
		return func(a, b model.Document) bool { return a.SizeBytes < b.SizeBytes }
	case SortByDate:
		return func(a, b model.Document) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case SortByStatus:
		return func(a, b model.Document) bool { return a.Status.String() < b.Status.String() }
	default:
		return nil
	}
}

// ParseSortKey maps a query parameter to a SortKey; unknown values keep insertion order.
func ParseSortKey(s string) SortKey {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case SortByName, SortBySize, SortByDate, SortByStatus:
		return k
	default:
		return ""
	}
}

// ParseSortDir maps a query parameter to a SortDir, defaulting to ascending.
func ParseSortDir(s string) SortDir {
	if strings.EqualFold(strings.TrimSpace(s), string(SortDesc)) {
		return SortDesc
	}
	return SortAsc
}
