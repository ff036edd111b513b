package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/yourusername/vehicle-offloader/pkg/models"
)

var (
	// ErrUnknownBaseStation 基站ID没有角色映射
	ErrUnknownBaseStation = errors.New("unknown base station")
	// ErrUnknownRole 角色没有地址映射
	ErrUnknownRole = errors.New("unknown role")
)

// Topology 基站ID->角色、角色->地址的静态映射，构造后只读
type Topology struct {
	roles     map[string]string
	addresses map[string]string
	roleNames []string
}

// NewTopology 复制传入的映射
func NewTopology(roles, addresses map[string]string) *Topology {
	t := &Topology{
		roles:     make(map[string]string, len(roles)),
		addresses: make(map[string]string, len(addresses)),
	}
	for id, role := range roles {
		t.roles[id] = role
	}
	for role, addr := range addresses {
		t.addresses[role] = addr
		t.roleNames = append(t.roleNames, role)
	}
	sort.Strings(t.roleNames)
	return t
}

// Role 基站ID对应的角色
func (t *Topology) Role(id string) (string, error) {
	role, ok := t.roles[id]
	if !ok {
		return "", fmt.Errorf("%w: %s has no role mapping", ErrUnknownBaseStation, id)
	}
	return role, nil
}

// Address 角色对应的地址
func (t *Topology) Address(role string) (string, error) {
	addr, ok := t.addresses[role]
	if !ok {
		return "", fmt.Errorf("%w: %s has no address mapping", ErrUnknownRole, role)
	}
	return addr, nil
}

// Resolve 将基站ID解析为完整的基站信息
func (t *Topology) Resolve(id string) (models.BaseStation, error) {
	role, err := t.Role(id)
	if err != nil {
		return models.BaseStation{}, err
	}
	addr, err := t.Address(role)
	if err != nil {
		return models.BaseStation{}, fmt.Errorf("base station %s: %w", id, err)
	}
	return models.BaseStation{ID: id, Role: role, Address: addr}, nil
}

// Roles 所有已配置地址的边缘节点角色（有序）
func (t *Topology) Roles() []string {
	out := make([]string, len(t.roleNames))
	copy(out, t.roleNames)
	return out
}

// AppTasksFrom 将 任务->云端URL 映射转换为有序列表
func AppTasksFrom(apps map[string]string) []models.AppTask {
	names := make([]string, 0, len(apps))
	for name := range apps {
		names = append(names, name)
	}
	sort.Strings(names)

	tasks := make([]models.AppTask, 0, len(names))
	for _, name := range names {
		tasks = append(tasks, models.AppTask{Name: name, CloudURL: apps[name]})
	}
	return tasks
}
