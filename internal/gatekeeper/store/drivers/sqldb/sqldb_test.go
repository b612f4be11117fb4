package sqldb

import (
	"testing"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
	"github.com/stretchr/testify/require"
)

func TestRebindDollar(t *testing.T) {
	t.Parallel()

	require.Equal(t,
		"SELECT 1 FROM users WHERE id = $1 AND name = $2",
		RebindDollar("SELECT 1 FROM users WHERE id = ? AND name = ?"),
	)
	require.Equal(t, "SELECT 1", RebindDollar("SELECT 1"))
}

func TestPage(t *testing.T) {
	t.Parallel()

	limit, offset := page(store.ListQuery{})
	require.Positive(t, limit)
	require.Zero(t, offset)

	limit, offset = page(store.ListQuery{Limit: 10, Offset: -5})
	require.Equal(t, 10, limit)
	require.Zero(t, offset)
}

func TestLikePattern(t *testing.T) {
	t.Parallel()

	require.Equal(t, "%adm%", likePattern("  ADM "))
}
