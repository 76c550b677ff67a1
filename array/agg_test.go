package array

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-db/lumen"
)

func TestCountStarCountsNulls(t *testing.T) {
	v := lumen.Int32Value(1)
	arr := mustBuild(t, lumen.Int32Type(true), []*lumen.Value{&v, nil, nil})
	s := NewCountStarState()
	s.Update(arr)
	assert.Equal(t, int64(3), s.Output().Int64())
}

func TestCountSkipsNulls(t *testing.T) {
	v := lumen.Int32Value(1)
	arr := mustBuild(t, lumen.Int32Type(true), []*lumen.Value{&v, nil, nil})
	s := NewCountState()
	s.Update(arr)
	assert.Equal(t, int64(1), s.Output().Int64())
}

func TestSumStateWidensAndCastsBack(t *testing.T) {
	v1, v2 := lumen.Int32Value(2), lumen.Int32Value(3)
	arr := mustBuild(t, lumen.Int32Type(true), []*lumen.Value{&v1, &v2, nil})
	s := NewSumState(lumen.Int64Type(true))
	s.Update(arr)
	require.False(t, s.Output().IsNull())
	assert.Equal(t, int64(5), s.Output().Int64())
}

func TestSumStateAllNullYieldsNull(t *testing.T) {
	arr := mustBuild(t, lumen.Int32Type(true), []*lumen.Value{nil, nil})
	s := NewSumState(lumen.Int64Type(true))
	s.Update(arr)
	assert.True(t, s.Output().IsNull())
}

func TestMinMaxState(t *testing.T) {
	v1, v2, v3 := lumen.Int32Value(5), lumen.Int32Value(1), lumen.Int32Value(9)
	arr := mustBuild(t, lumen.Int32Type(true), []*lumen.Value{&v1, &v2, &v3, nil})

	minS := NewMinState()
	minS.Update(arr)
	assert.Equal(t, int32(1), minS.Output().Int32())

	maxS := NewMaxState()
	maxS.Update(arr)
	assert.Equal(t, int32(9), maxS.Output().Int32())
}

func TestFirstLastState(t *testing.T) {
	v1, v2 := lumen.Int32Value(7), lumen.Int32Value(8)
	arr := mustBuild(t, lumen.Int32Type(true), []*lumen.Value{nil, &v1, &v2})

	firstS := NewFirstState()
	firstS.Update(arr)
	assert.Equal(t, int32(7), firstS.Output().Int32())

	lastS := NewLastState()
	lastS.Update(arr)
	assert.Equal(t, int32(8), lastS.Output().Int32())
}

func TestMinMaxStateEmptyYieldsNull(t *testing.T) {
	s := NewMinState()
	assert.True(t, s.Output().IsNull())
}
