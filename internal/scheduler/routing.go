package scheduler

import (
	"sort"

	"github.com/yourusername/vehicle-offloader/pkg/models"
)

// Coverage 覆盖检查结果
type Coverage struct {
	Covered bool
	Nearest models.RankedBaseStation
}

// CheckCoverage 最近基站距离不超过阈值时视为覆盖
func CheckCoverage(ranked []models.RankedBaseStation, threshold float64) Coverage {
	if len(ranked) == 0 {
		return Coverage{}
	}
	nearest := ranked[0]
	return Coverage{Covered: nearest.Distance <= threshold, Nearest: nearest}
}

// SelectOptimal 选出平均延迟最小的节点，延迟相同按角色名排序
func SelectOptimal(latencies map[string]float64) (string, float64, bool) {
	if len(latencies) == 0 {
		return "", 0, false
	}

	roles := make([]string, 0, len(latencies))
	for role := range latencies {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	best := roles[0]
	for _, role := range roles[1:] {
		if latencies[role] < latencies[best] {
			best = role
		}
	}
	return best, latencies[best], true
}
