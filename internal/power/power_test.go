package power

import (
	"context"
	"testing"

	"github.com/srg/blite/internal/adapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic_ReportsFixedState(t *testing.T) {
	var got []adapter.State
	w := Static{State: adapter.On}

	require.NoError(t, w.Start(context.Background(), func(s adapter.State) { got = append(got, s) }))
	assert.Equal(t, []adapter.State{adapter.On}, got)
	assert.NoError(t, w.Close())
}
