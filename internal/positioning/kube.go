package positioning

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/vehicle-offloader/internal/k8s"
	"github.com/yourusername/vehicle-offloader/pkg/models"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
)

// 基站Node上的标签和注解
const (
	BaseStationIDLabel  = "offload.io/base-station-id"
	PositionAnnotationX = "offload.io/position-x"
	PositionAnnotationY = "offload.io/position-y"
	PositionAnnotationZ = "offload.io/position-z"
)

// KubeStations 从带标签的K8s Node读取基站位置
type KubeStations struct {
	client   kubernetes.Interface
	selector string
	logger   *logrus.Logger
}

// NewKubeStations 创建基于Node的基站数据源
func NewKubeStations(client kubernetes.Interface, selector string, logger *logrus.Logger) *KubeStations {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}
	return &KubeStations{client: client, selector: selector, logger: logger}
}

// ListBaseStations 列出带标签的节点，缺少或无法解析坐标注解的节点被跳过
func (k *KubeStations) ListBaseStations(ctx context.Context) ([]models.BaseStationPosition, error) {
	nodes, err := k.client.CoreV1().Nodes().List(ctx, metav1.ListOptions{LabelSelector: k.selector})
	if err != nil {
		return nil, fmt.Errorf("failed to list base station nodes: %w", err)
	}

	stations := make([]models.BaseStationPosition, 0, len(nodes.Items))
	for _, node := range nodes.Items {
		id := node.Labels[BaseStationIDLabel]
		if id == "" {
			id = node.Name
		}

		pos, err := annotationPosition(node.Annotations)
		if err != nil {
			k.logger.Warnf("Skipping base station node %s: %v", node.Name, err)
			continue
		}
		stations = append(stations, models.BaseStationPosition{ID: id, Position: pos})
	}
	return stations, nil
}

func annotationPosition(annotations map[string]string) (models.Position, error) {
	var coords [3]float64
	for i, key := range []string{PositionAnnotationX, PositionAnnotationY, PositionAnnotationZ} {
		raw, ok := annotations[key]
		if !ok {
			if key == PositionAnnotationZ {
				continue
			}
			return models.Position{}, fmt.Errorf("missing annotation %s", key)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return models.Position{}, fmt.Errorf("annotation %s: %w", key, err)
		}
		coords[i] = v
	}
	pos := models.Position{X: coords[0], Y: coords[1], Z: coords[2]}
	return pos, pos.Validate()
}

// KubeVehicle 通过Vehicle自定义资源的status读写车辆位置
type KubeVehicle struct {
	client    dynamic.Interface
	namespace string
	name      string
}

// NewKubeVehicle 创建基于Vehicle资源的车辆数据源
func NewKubeVehicle(client dynamic.Interface, namespace, name string) *KubeVehicle {
	return &KubeVehicle{client: client, namespace: namespace, name: name}
}

// VehiclePosition 读取 status.position
func (k *KubeVehicle) VehiclePosition(ctx context.Context) (models.Position, error) {
	obj, err := k.client.Resource(k8s.VehicleGVR).Namespace(k.namespace).Get(ctx, k.name, metav1.GetOptions{})
	if err != nil {
		return models.Position{}, fmt.Errorf("failed to get vehicle %s/%s: %w", k.namespace, k.name, err)
	}

	position, found, err := unstructured.NestedMap(obj.Object, "status", "position")
	if err != nil {
		return models.Position{}, fmt.Errorf("read status.position failed: %w", err)
	}
	if !found {
		return models.Position{}, fmt.Errorf("%w: vehicle %s/%s has no status.position", ErrPositionUnavailable, k.namespace, k.name)
	}

	var coords [3]float64
	for i, field := range []string{"x", "y", "z"} {
		v, ok, err := readFloat(position, field)
		if err != nil {
			return models.Position{}, fmt.Errorf("%w: vehicle %s/%s: %v", ErrPositionUnavailable, k.namespace, k.name, err)
		}
		if !ok && field != "z" {
			return models.Position{}, fmt.Errorf("%w: vehicle %s/%s: missing status.position.%s", ErrPositionUnavailable, k.namespace, k.name, field)
		}
		coords[i] = v
	}
	pos := models.Position{X: coords[0], Y: coords[1], Z: coords[2]}
	return pos, pos.Validate()
}

// Publish 写入车辆状态，资源不存在时先创建
func (k *KubeVehicle) Publish(ctx context.Context, pos models.Position, speed, heading float64) error {
	resource := k.client.Resource(k8s.VehicleGVR).Namespace(k.namespace)

	obj, err := resource.Get(ctx, k.name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		obj = &unstructured.Unstructured{Object: map[string]interface{}{
			"apiVersion": k8s.VehicleGroup + "/" + k8s.VehicleVersion,
			"kind":       k8s.VehicleKind,
			"metadata": map[string]interface{}{
				"name":      k.name,
				"namespace": k.namespace,
			},
			"spec": map[string]interface{}{
				"vehicleId": k.name,
			},
		}}
		obj, err = resource.Create(ctx, obj, metav1.CreateOptions{})
	}
	if err != nil {
		return fmt.Errorf("failed to get or create vehicle %s/%s: %w", k.namespace, k.name, err)
	}

	status := map[string]interface{}{
		"position": map[string]interface{}{
			"x": pos.X,
			"y": pos.Y,
			"z": pos.Z,
		},
		"speed":      speed,
		"heading":    heading,
		"lastUpdate": time.Now().UTC().Format(time.RFC3339),
	}
	if err := unstructured.SetNestedMap(obj.Object, status, "status"); err != nil {
		return fmt.Errorf("set status failed: %w", err)
	}

	if _, err := resource.UpdateStatus(ctx, obj, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("failed to update vehicle status: %w", err)
	}
	return nil
}

// readFloat 读取数值字段，ok=false表示字段不存在
func readFloat(m map[string]interface{}, field string) (float64, bool, error) {
	raw, ok := m[field]
	if !ok {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, true, nil
	case int64:
		return float64(v), true, nil
	case int:
		return float64(v), true, nil
	default:
		return 0, true, fmt.Errorf("status.position.%s: expected number, got %T", field, raw)
	}
}
