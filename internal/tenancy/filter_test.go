package tenancy

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestConditionSQL(t *testing.T) {
	school := uuid.New()
	student := uuid.New()
	cond := NewCondition()
	cond.WithEqualityFilter("school_id", school)
	cond.WithEqualityFilter("student_id", student)

	sql, args := cond.SQL(3)
	require.Equal(t, "school_id = $3 AND student_id = $4", sql)
	require.Equal(t, []any{school, student}, args)
}

func TestConditionRangeFilter(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)
	cond := NewCondition().
		WithRangeFilter("occurred_at", ">=", from).
		WithRangeFilter("occurred_at", "<=", to)

	sql, args := cond.SQL(1)
	require.Equal(t, "occurred_at >= $1 AND occurred_at <= $2", sql)
	require.Equal(t, []any{from, to}, args)
}

func TestConditionEmptyAndImpossible(t *testing.T) {
	sql, args := NewCondition().SQL(1)
	require.Equal(t, "TRUE", sql)
	require.Nil(t, args)

	cond := NewCondition()
	cond.WithEqualityFilter("school_id", uuid.New())
	cond.WithImpossibleFilter()
	sql, args = cond.SQL(1)
	require.Equal(t, "FALSE", sql)
	require.Nil(t, args)
	require.True(t, cond.Impossible())
}
