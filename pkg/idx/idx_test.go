package idx_test

import (
	"sort"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatekeeper/pkg/idx"
	"github.com/stretchr/testify/require"
)

func TestNewAndParse(t *testing.T) {
	id := idx.New()
	require.NotEqual(t, idx.Zero, id)
	require.True(t, idx.Valid(id.String()))

	parsed, err := idx.Parse(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "   ", "not-a-ulid", "01HQ7T3Z1MZ0JQ3M6MZQ1FQ3Z"} {
		_, err := idx.Parse(s)
		require.ErrorIs(t, err, idx.ErrInvalid, "input %q", s)
		require.False(t, idx.Valid(s))
	}
}

func TestMonotonicWithinSameMillisecond(t *testing.T) {
	at := time.Unix(1700000000, 0)

	ids := make([]string, 0, 50)
	for range 50 {
		ids = append(ids, idx.NewAt(at).String())
	}

	require.True(t, sort.StringsAreSorted(ids))
}
