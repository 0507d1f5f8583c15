package logstream

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func dataOf(entries []LogEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Data)
	}
	return out
}

func TestCacheEvictsOldestFirst(t *testing.T) {
	t.Parallel()

	c := NewCache(3)
	for _, d := range []string{"A", "B", "C", "D", "E"} {
		c.Append(LogEntry{Data: d})
		require.LessOrEqual(t, c.Len(), c.Max())
	}
	require.Equal(t, []string{"C", "D", "E"}, dataOf(c.Snapshot()))
}

func TestCacheDefaultsAndTail(t *testing.T) {
	t.Parallel()

	c := NewCache(0)
	require.Equal(t, DefaultCacheSize, c.Max())

	for i := 0; i < 5; i++ {
		c.Append(LogEntry{Data: fmt.Sprint(i)})
	}
	require.Equal(t, []string{"3", "4"}, dataOf(c.Tail(2)))
	require.Len(t, c.Tail(0), 5)
	require.Len(t, c.Tail(50), 5)
}

func TestCacheSnapshotIsACopy(t *testing.T) {
	t.Parallel()

	c := NewCache(2)
	c.Append(LogEntry{Data: "a"})
	snap := c.Snapshot()
	snap[0].Data = "mutated"
	require.Equal(t, "a", c.Snapshot()[0].Data)
}
