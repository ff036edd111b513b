package positioning

import (
	"context"
	"errors"

	"github.com/yourusername/vehicle-offloader/pkg/models"
)

// ErrPositionUnavailable 数据源暂时无法给出位置
var ErrPositionUnavailable = errors.New("position unavailable")

// StationLister 基站位置数据源
type StationLister interface {
	ListBaseStations(ctx context.Context) ([]models.BaseStationPosition, error)
}

// VehicleLocator 车辆位置数据源
type VehicleLocator interface {
	VehiclePosition(ctx context.Context) (models.Position, error)
}

// Provider 调度器需要的定位能力
type Provider interface {
	StationLister
	VehicleLocator
}

type composite struct {
	StationLister
	VehicleLocator
}

// Compose 组合基站和车辆两个数据源
func Compose(stations StationLister, vehicle VehicleLocator) Provider {
	return composite{StationLister: stations, VehicleLocator: vehicle}
}

// StaticStations 配置文件中固定的基站位置
type StaticStations []models.BaseStationPosition

// ListBaseStations 返回配置的副本
func (s StaticStations) ListBaseStations(context.Context) ([]models.BaseStationPosition, error) {
	out := make([]models.BaseStationPosition, len(s))
	copy(out, s)
	return out, nil
}

// FixedVehicle 固定的车辆位置
type FixedVehicle models.Position

// VehiclePosition 返回固定位置
func (f FixedVehicle) VehiclePosition(context.Context) (models.Position, error) {
	return models.Position(f), nil
}

// PositionSource 可以给出当前位置的对象，如轨迹模拟器
type PositionSource interface {
	Position() models.Position
}

// SimulatedVehicle 从模拟器读取车辆位置
type SimulatedVehicle struct {
	Source PositionSource
}

// VehiclePosition 模拟器当前位置
func (s SimulatedVehicle) VehiclePosition(context.Context) (models.Position, error) {
	if s.Source == nil {
		return models.Position{}, ErrPositionUnavailable
	}
	return s.Source.Position(), nil
}
