package api

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opcron/opcron/internal/apperr"
)

func TestCurrentPage(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"", 1},
		{"page=3", 3},
		{"page=abc", 1},
		{"page=-2", 1},
		{"page=0", 1},
	}
	for _, tt := range tests {
		query, err := url.ParseQuery(tt.raw)
		require.NoError(t, err)
		assert.Equal(t, tt.want, currentPage(query), tt.raw)
	}
}

func TestBuildWhereExact(t *testing.T) {
	spec := listSpec{Exact: []string{"id", "username"}, Numeric: []string{"id"}}

	where, args, err := buildWhere(spec, url.Values{"id": {"7"}})
	require.NoError(t, err)
	assert.Equal(t, " WHERE id = ?", where)
	assert.Equal(t, []any{"7"}, args)

	_, _, err = buildWhere(spec, url.Values{"id": {"seven"}})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Validation))
	assert.EqualError(t, err, "Invalid value seven for id filter")

	// Non-numeric fields accept anything.
	_, _, err = buildWhere(spec, url.Values{"username": {"alice"}})
	assert.NoError(t, err)
}

func TestBuildWhereSelect(t *testing.T) {
	spec := listSpec{Select: []string{"is_active", "log_type"}}

	where, args, err := buildWhere(spec, url.Values{"is_active": {"true,false"}})
	require.NoError(t, err)
	assert.Equal(t, " WHERE is_active IN (?,?)", where)
	assert.Equal(t, []any{1, 0}, args)

	where, args, err = buildWhere(spec, url.Values{"log_type": {"1,9"}})
	require.NoError(t, err)
	assert.Equal(t, " WHERE log_type IN (?,?)", where)
	assert.Equal(t, []any{"1", "9"}, args)
}

func TestBuildWhereDateRange(t *testing.T) {
	spec := listSpec{DateRange: []string{"created_at"}}

	where, args, err := buildWhere(spec, url.Values{
		"created_at": {"2026-01-01 00:00:00 - 2026-02-01 00:00:00"},
	})
	require.NoError(t, err)
	assert.Equal(t, " WHERE created_at BETWEEN ? AND ?", where)
	assert.Len(t, args, 2)

	_, _, err = buildWhere(spec, url.Values{"created_at": {"yesterday"}})
	require.Error(t, err)
	assert.EqualError(t, err, "Invalid value yesterday for created_at filter")
}

func TestBuildWhereContains(t *testing.T) {
	spec := listSpec{Contains: []string{"error"}}

	where, args, err := buildWhere(spec, url.Values{"error": {"timeout"}})
	require.NoError(t, err)
	assert.Equal(t, " WHERE error LIKE ?", where)
	assert.Equal(t, []any{"%timeout%"}, args)
}

func TestBuildWhereCombined(t *testing.T) {
	spec := listSpec{
		Exact:     []string{"id"},
		Numeric:   []string{"id"},
		Select:    []string{"is_admin"},
		DateRange: []string{"created_at"},
		Contains:  []string{"username"},
	}
	where, args, err := buildWhere(spec, url.Values{
		"id":         {"3"},
		"is_admin":   {"true"},
		"created_at": {"2026-01-01 00:00:00 - 2026-02-01 00:00:00"},
		"username":   {"ali"},
	})
	require.NoError(t, err)
	// Filters apply in declaration order: exact, select, range, contains.
	assert.Equal(t,
		" WHERE id = ? AND is_admin IN (?) AND created_at BETWEEN ? AND ? AND username LIKE ?",
		where)
	assert.Len(t, args, 5)

	// Empty query builds no clause at all.
	where, args, err = buildWhere(spec, url.Values{})
	require.NoError(t, err)
	assert.Empty(t, where)
	assert.Nil(t, args)
}

func TestBuildFilters(t *testing.T) {
	filters := buildFilters(listSpec{
		Exact:     []string{"id"},
		Select:    []string{"is_admin", "log_type"},
		DateRange: []string{"created_at"},
		Contains:  []string{"username"},
	})

	id := filters["id"].(map[string]any)
	assert.Equal(t, "Specify ID", id["label"])
	assert.Equal(t, "text", id["type"])

	created := filters["created_at"].(map[string]any)
	assert.Equal(t, "daterange", created["type"])

	isAdmin := filters["is_admin"].(map[string]any)
	assert.Equal(t, "select", isAdmin["type"])
	assert.Len(t, isAdmin["options"], 2)

	logType := filters["log_type"].(map[string]any)
	assert.Len(t, logType["options"], 16)
}
