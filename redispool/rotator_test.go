package redispool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRotatorRoundRobin(t *testing.T) {
	r := newAddressRotator([]string{"A", "B", "C"})
	got := make([]string, 7)
	for i := range got {
		got[i] = r.nextTarget()
	}
	require.Equal(t, []string{"A", "B", "C", "A", "B", "C", "A"}, got)
}

func TestRotatorEmpty(t *testing.T) {
	r := newAddressRotator(nil)
	require.Equal(t, "", r.nextTarget())
	require.Equal(t, "", r.nextTarget())
}

func TestRotatorUpdateResetsCursor(t *testing.T) {
	r := newAddressRotator([]string{"A", "B"})
	r.nextTarget()
	r.update([]string{"X", "Y"})
	require.Equal(t, "X", r.nextTarget())
}
