package api

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/opcron/opcron/internal/apperr"
	"github.com/opcron/opcron/internal/model"
)

const (
	itemsPerPage    = 25
	pageParameter   = "page"
	dateRangeLayout = "2006-01-02 15:04:05"
)

// listSpec declares which fields of a listing support which filter kinds.
// Filters apply in a fixed order: exact, select, date-range, contains.
type listSpec struct {
	Table   string
	Columns string
	OrderBy string // defaults to "id DESC"

	Exact     []string
	Numeric   []string // subset of Exact holding integer columns
	Select    []string
	DateRange []string
	Contains  []string
}

// filterLabels maps filter keys to the labels shown by the front end.
var filterLabels = map[string]string{
	"id":            "Specify ID",
	"user":          "Specify User ID",
	"request_ip":    "Specify Request IP",
	"log_type":      "Select Log type",
	"created_at":    "Select created range",
	"request_data":  "Specify Request data",
	"request_url":   "Specify Request URL",
	"response_data": "Specify Response data",
	"last_login_at": "Select last login range",
	"started_at":    "Select started range",
	"finished_at":   "Select finished range",
	"username":      "Specify Username",
	"is_admin":      "User is admin",
	"is_active":     "User is active",
	"error":         "Specify error text",
	"traceback":     "Specify error traceback text",
	"job_id":        "Specify Job ID",
}

// list runs a filtered, paginated query and shapes the standard listing
// payload: items, filter descriptors, pagination.
func (a *API) list(spec listSpec, query url.Values) (map[string]any, error) {
	where, args, err := buildWhere(spec, query)
	if err != nil {
		return nil, err
	}

	orderBy := spec.OrderBy
	if orderBy == "" {
		orderBy = "id DESC"
	}
	page := currentPage(query)

	total, err := a.store.Count(
		"SELECT COUNT(*) FROM "+spec.Table+where, args...)
	if err != nil {
		return nil, err
	}

	sel := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s LIMIT ? OFFSET ?",
		spec.Columns, spec.Table, where, orderBy)
	items, err := a.store.SelectMaps(sel,
		append(args, itemsPerPage, (page-1)*itemsPerPage)...)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"items":   items,
		"filters": buildFilters(spec),
		"pagination": map[string]any{
			"page":        page,
			"total_items": total,
			"per_page":    itemsPerPage,
		},
	}, nil
}

func buildWhere(spec listSpec, query url.Values) (string, []any, error) {
	var clauses []string
	var args []any

	numeric := make(map[string]bool, len(spec.Numeric))
	for _, name := range spec.Numeric {
		numeric[name] = true
	}

	for _, name := range spec.Exact {
		value := query.Get(name)
		if value == "" {
			continue
		}
		if numeric[name] && !isDigits(value) {
			return "", nil, apperr.New(apperr.Validation,
				"Invalid value %s for %s filter", value, name)
		}
		clauses = append(clauses, name+" = ?")
		args = append(args, value)
	}

	for _, name := range spec.Select {
		value := query.Get(name)
		if value == "" {
			continue
		}
		tokens := strings.Split(value, ",")
		placeholders := make([]string, len(tokens))
		for i, token := range tokens {
			placeholders[i] = "?"
			// Translate boolean tokens for integer-backed boolean columns.
			switch token {
			case "true":
				args = append(args, 1)
			case "false":
				args = append(args, 0)
			default:
				args = append(args, token)
			}
		}
		clauses = append(clauses,
			name+" IN ("+strings.Join(placeholders, ",")+")")
	}

	for _, name := range spec.DateRange {
		value := query.Get(name)
		if value == "" {
			continue
		}
		start, end, err := parseDateRange(value)
		if err != nil {
			return "", nil, apperr.New(apperr.Validation,
				"Invalid value %s for %s filter", value, name)
		}
		clauses = append(clauses, name+" BETWEEN ? AND ?")
		args = append(args, start, end)
	}

	for _, name := range spec.Contains {
		value := query.Get(name)
		if value == "" {
			continue
		}
		clauses = append(clauses, name+" LIKE ?")
		args = append(args, "%"+value+"%")
	}

	if len(clauses) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

// parseDateRange splits a `"start - end"` value into its two timestamps.
func parseDateRange(value string) (time.Time, time.Time, error) {
	parts := strings.SplitN(value, " - ", 2)
	if len(parts) != 2 {
		return time.Time{}, time.Time{}, fmt.Errorf("malformed date range")
	}
	start, err := time.ParseInLocation(dateRangeLayout, parts[0], time.Local)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := time.ParseInLocation(dateRangeLayout, parts[1], time.Local)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

// currentPage returns the requested page, defaulting to 1 on anything
// unparseable.
func currentPage(query url.Values) int {
	value := query.Get(pageParameter)
	if page, err := strconv.Atoi(value); err == nil && page > 0 {
		return page
	}
	return 1
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// buildFilters emits the filter descriptor block listing responses carry
// for the front end.
func buildFilters(spec listSpec) map[string]any {
	filters := map[string]any{}
	for _, name := range spec.Exact {
		filters[name] = textFilter(name, "text")
	}
	for _, name := range spec.Contains {
		filters[name] = textFilter(name, "text")
	}
	for _, name := range spec.DateRange {
		filters[name] = textFilter(name, "daterange")
	}
	for _, name := range spec.Select {
		filters[name] = selectFilter(name)
	}
	return filters
}

func textFilter(key, kind string) map[string]any {
	return map[string]any{
		"key":   key,
		"label": filterLabel(key),
		"type":  kind,
		"value": nil,
	}
}

func selectFilter(key string) map[string]any {
	var options []map[string]any
	switch key {
	case "log_type":
		for id := model.LogUserLogin; id <= model.LogLogView; id++ {
			options = append(options, map[string]any{
				"id": id, "label": model.LogTypeLabels[id],
			})
		}
	case "is_admin", "is_active":
		options = []map[string]any{
			{"id": "false", "label": "False"},
			{"id": "true", "label": "True"},
		}
	}
	return map[string]any{
		"key":     key,
		"label":   filterLabel(key),
		"type":    "select",
		"options": options,
		"value":   nil,
	}
}

func filterLabel(key string) string {
	if label, ok := filterLabels[key]; ok {
		return label
	}
	return key
}
