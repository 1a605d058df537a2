package storage

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestOrderPair(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	b := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	x, y := OrderPair(a, b)
	assert.Equal(t, a, x)
	assert.Equal(t, b, y)

	x, y = OrderPair(b, a)
	assert.Equal(t, a, x)
	assert.Equal(t, b, y)

	x, y = OrderPair(a, a)
	assert.Equal(t, a, x)
	assert.Equal(t, a, y)
}

func TestIsUniqueViolation(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505", ConstraintName: LiveDelegationConstraint}

	assert.True(t, IsUniqueViolation(unique, ""))
	assert.True(t, IsUniqueViolation(unique, LiveDelegationConstraint))
	assert.False(t, IsUniqueViolation(unique, "other_idx"))

	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}, ""))
	assert.False(t, IsUniqueViolation(errors.New("plain"), ""))
	assert.False(t, IsUniqueViolation(nil, ""))
}
