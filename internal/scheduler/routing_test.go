package scheduler

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/vehicle-offloader/pkg/models"
)

func TestRankBaseStations(t *testing.T) {
	stations := []models.BaseStationPosition{
		{ID: "10", Position: models.Position{X: 30}},
		{ID: "2", Position: models.Position{Y: 30}},
		{ID: "3", Position: models.Position{X: 5}},
		{ID: "1", Position: models.Position{Z: -30}},
		{ID: "b", Position: models.Position{X: 100}},
		{ID: "a", Position: models.Position{Y: -100}},
	}

	ranked, err := RankBaseStations(models.Position{}, stations)
	require.NoError(t, err)

	var ids []string
	for i, r := range ranked {
		ids = append(ids, r.ID)
		if i > 0 {
			assert.LessOrEqual(t, ranked[i-1].Distance, r.Distance)
		}
	}
	// 同距离的整数ID按数值排序
	assert.Equal(t, []string{"3", "1", "2", "10", "a", "b"}, ids)
	assert.InDelta(t, 5.0, ranked[0].Distance, 1e-9)
}

func TestRankBaseStationsEmpty(t *testing.T) {
	ranked, err := RankBaseStations(models.Position{X: 1}, nil)
	require.NoError(t, err)
	assert.Empty(t, ranked)
}

func TestRankBaseStationsInvalidPosition(t *testing.T) {
	_, err := RankBaseStations(models.Position{}, []models.BaseStationPosition{
		{ID: "1", Position: models.Position{X: math.NaN()}},
	})
	assert.ErrorIs(t, err, models.ErrInvalidPosition)

	_, err = RankBaseStations(models.Position{Y: math.Inf(1)}, []models.BaseStationPosition{{ID: "1"}})
	assert.ErrorIs(t, err, models.ErrInvalidPosition)
}

func TestCheckCoverage(t *testing.T) {
	ranked := []models.RankedBaseStation{{ID: "1", Distance: 50}, {ID: "2", Distance: 80}}

	cov := CheckCoverage(ranked, 50)
	assert.True(t, cov.Covered, "distance equal to threshold is covered")
	assert.Equal(t, "1", cov.Nearest.ID)

	assert.False(t, CheckCoverage(ranked, 49.9).Covered)
	assert.False(t, CheckCoverage(nil, 1000).Covered)
}

func TestSelectOptimal(t *testing.T) {
	role, latency, ok := SelectOptimal(map[string]float64{"edge1": 5, "edge2": 25})
	assert.True(t, ok)
	assert.Equal(t, "edge1", role)
	assert.Equal(t, 5.0, latency)

	role, _, ok = SelectOptimal(map[string]float64{"edge3": 4, "edge2": 4, "edge1": 9})
	assert.True(t, ok)
	assert.Equal(t, "edge2", role)

	_, _, ok = SelectOptimal(map[string]float64{})
	assert.False(t, ok)
}
