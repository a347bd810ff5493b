package repo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInsert(t *testing.T) {
	q := Insert("edit_requests", []string{"status", "reason"}, "id", "created_at")
	require.Equal(t, "INSERT INTO edit_requests (status, reason) VALUES ($1, $2) RETURNING id, created_at", q)
}

func TestUpdate(t *testing.T) {
	q := Update("edit_requests", []string{"status", "approver_id"}, "id = $3", "status = 'pending'")
	require.Equal(t, "UPDATE edit_requests SET status = $1, approver_id = $2 WHERE id = $3 AND status = 'pending'", q)
}

func TestJoinAndLimit(t *testing.T) {
	require.Equal(t, "SELECT 1 FROM t LIMIT 10", Join("SELECT 1", "FROM t", JoinWhere(), FormatLimitOffset(10, 0)))
	require.Equal(t, "OFFSET 5", FormatLimitOffset(0, 5))
	require.Empty(t, FormatLimitOffset(0, 0))
}
