package scheduler

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/yourusername/vehicle-offloader/pkg/models"
)

// RankBaseStations 按到车辆的距离升序排列基站，距离相同按ID排序
//
// 每次决策都重新计算，不做缓存。
func RankBaseStations(vehicle models.Position, stations []models.BaseStationPosition) ([]models.RankedBaseStation, error) {
	ranked := make([]models.RankedBaseStation, 0, len(stations))
	for _, st := range stations {
		d, err := vehicle.Distance(st.Position)
		if err != nil {
			return nil, fmt.Errorf("base station %s: %w", st.ID, err)
		}
		ranked = append(ranked, models.RankedBaseStation{ID: st.ID, Distance: d})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Distance != ranked[j].Distance {
			return ranked[i].Distance < ranked[j].Distance
		}
		return lessID(ranked[i].ID, ranked[j].ID)
	})
	return ranked, nil
}

// lessID 两个ID都是整数时按数值比较，否则按字典序
func lessID(a, b string) bool {
	ai, errA := strconv.ParseInt(a, 10, 64)
	bi, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		if ai != bi {
			return ai < bi
		}
	}
	return a < b
}
