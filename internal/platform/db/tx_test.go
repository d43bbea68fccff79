package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	err := &pgconn.PgError{Code: "23505", ConstraintName: "uq_payroll_period"}
	assert.True(t, IsUniqueViolation(err, ""))
	assert.True(t, IsUniqueViolation(err, "uq_payroll_period"))
	assert.False(t, IsUniqueViolation(err, "uq_other"))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}, ""))
	assert.False(t, IsUniqueViolation(errors.New("boom"), ""))
}

func TestIsSerializationFailure(t *testing.T) {
	assert.True(t, IsSerializationFailure(fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"})))
	assert.True(t, IsSerializationFailure(&pgconn.PgError{Code: "40001"}))
	assert.False(t, IsSerializationFailure(fmt.Errorf("wrapped: %w", errors.New("x"))))
}
