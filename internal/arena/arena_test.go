package arena_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bourse/internal/arena"
	"bourse/internal/common"
)

func TestArena_AddAssignsDenseIDs(t *testing.T) {
	a := arena.New(4)
	id0 := a.Add(common.Order{Side: common.Bid})
	id1 := a.Add(common.Order{Side: common.Ask})
	assert.Equal(t, uint64(0), id0)
	assert.Equal(t, uint64(1), id1)
	assert.Equal(t, 2, a.Len())
}

func TestArena_GetOutOfRange(t *testing.T) {
	a := arena.New(0)
	_, ok := a.Get(0)
	assert.False(t, ok)
}

func TestArena_Mutate(t *testing.T) {
	a := arena.New(1)
	id := a.Add(common.Order{Vol: 10})
	ok := a.Mutate(id, func(o *common.Order) { o.Vol = 5 })
	require.True(t, ok)

	order, ok := a.Get(id)
	require.True(t, ok)
	assert.Equal(t, uint32(5), order.Vol)
}

func TestArena_MutateOutOfRangeIsNoop(t *testing.T) {
	a := arena.New(0)
	ok := a.Mutate(0, func(o *common.Order) { o.Vol = 5 })
	assert.False(t, ok)
}

func TestArena_AllReturnsCopy(t *testing.T) {
	a := arena.New(1)
	a.Add(common.Order{Vol: 1})
	all := a.All()
	all[0].Vol = 99

	order, _ := a.Get(0)
	assert.Equal(t, uint32(1), order.Vol)
}
