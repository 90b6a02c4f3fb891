package postgres

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/abtest/internal/domain"
)

func TestMigrationsEmbedded(t *testing.T) {
	raw, err := migrationFS.ReadFile("migrations/0001_init.sql")
	require.NoError(t, err)
	sql := string(raw)
	assert.True(t, strings.Contains(sql, "events_dedup_key_uq"))
	assert.True(t, strings.Contains(sql, "enrollments_user_course_uq"))
	assert.True(t, strings.Contains(sql, "user_token  TEXT PRIMARY KEY"))
}

func TestPersistErrWrapsSentinel(t *testing.T) {
	cause := errors.New("connection refused")
	err := persistErr("insert event", cause)
	assert.True(t, errors.Is(err, domain.ErrPersistence))
	assert.True(t, errors.Is(err, cause))
	assert.True(t, strings.HasPrefix(err.Error(), "insert event: "))
}
