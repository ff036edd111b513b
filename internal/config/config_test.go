package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
offload:
  policy: optimal
  time_limit: 15
  base_station_roles:
    "101": edge1
    "102": edge2
  edge_nodes:
    edge1: 10.0.0.1
    edge2: 10.0.0.2
  apps:
    mobilenet: http://cloud.example/mobilenet
    yolo: http://cloud.example/yolo
positioning:
  source: static
  base_stations:
    - id: "101"
      position: {x: 10, y: 0, z: 0}
    - id: "102"
      position: {x: 200, y: 0, z: 0}
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "optimal", cfg.Offload.Policy)
	assert.Equal(t, 50.0, cfg.Offload.Coverage.Strict)
	assert.Equal(t, 120.0, cfg.Offload.Coverage.Loose)
	assert.Equal(t, 8000, cfg.Offload.ProxyPort)
	assert.Equal(t, 8001, cfg.Offload.MetricPort)
	assert.Equal(t, 4, cfg.Dispatch.Workers)
	assert.Equal(t, 1, cfg.Dispatch.MaxReplay)
	assert.Equal(t, 5, cfg.Network.Timeout)
	assert.Equal(t, "info", cfg.Logging.Level)

	require.Len(t, cfg.Positioning.BaseStations, 2)
	assert.Equal(t, "102", cfg.Positioning.BaseStations[1].ID)
	assert.Equal(t, 200.0, cfg.Positioning.BaseStations[1].Position.X)
}

func TestLoadBuildsTopologyAndApps(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	topo := cfg.Topology()
	bs, err := topo.Resolve("101")
	require.NoError(t, err)
	assert.Equal(t, "edge1", bs.Role)
	assert.Equal(t, "10.0.0.1", bs.Address)
	assert.Equal(t, []string{"edge1", "edge2"}, topo.Roles())

	apps := cfg.AppTasks()
	require.Len(t, apps, 2)
	assert.Equal(t, "mobilenet", apps[0].Name)
	assert.Equal(t, "http://cloud.example/yolo", apps[1].CloudURL)
}

func TestLoadRejectsInvalidPolicy(t *testing.T) {
	_, err := Load(writeConfig(t, sampleConfig+"\ndispatch:\n  workers: 0\n"))
	assert.Error(t, err)

	body := `
offload:
  policy: fastest
  apps:
    mobilenet: http://cloud.example/mobilenet
`
	_, err = Load(writeConfig(t, body))
	assert.ErrorContains(t, err, "offload.policy")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestTopologyMissingMappings(t *testing.T) {
	topo := NewTopology(map[string]string{"1": "edge1", "2": "edge9"}, map[string]string{"edge1": "10.0.0.1"})

	_, err := topo.Resolve("3")
	assert.ErrorIs(t, err, ErrUnknownBaseStation)

	_, err = topo.Resolve("2")
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestTopologyIsImmutable(t *testing.T) {
	roles := map[string]string{"1": "edge1"}
	addrs := map[string]string{"edge1": "10.0.0.1"}
	topo := NewTopology(roles, addrs)

	roles["1"] = "edge2"
	addrs["edge1"] = "192.168.0.1"
	topo.Roles()[0] = "mutated"

	bs, err := topo.Resolve("1")
	require.NoError(t, err)
	assert.Equal(t, "edge1", bs.Role)
	assert.Equal(t, "10.0.0.1", bs.Address)
	assert.Equal(t, []string{"edge1"}, topo.Roles())
}
