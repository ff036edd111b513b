package metrics

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"
	metricsclientset "k8s.io/metrics/pkg/client/clientset/versioned"
)

// RoleLabel 标识边缘节点角色的Node标签
const RoleLabel = "offload.io/role"

// ErrNodeNotFound 没有带该角色标签的节点
var ErrNodeNotFound = errors.New("node not found")

// NodeLoadSource 节点负载数据源接口
type NodeLoadSource interface {
	// CPUUsageRate 角色所在节点的CPU使用率 (0-100)
	CPUUsageRate(ctx context.Context, role string) (float64, error)
}

// KubeNodeLoad 通过Metrics Server读取节点CPU使用率
type KubeNodeLoad struct {
	kubeClient    kubernetes.Interface
	metricsClient metricsclientset.Interface
	logger        *logrus.Logger
}

// NewKubeNodeLoad 创建节点负载数据源
func NewKubeNodeLoad(kubeClient kubernetes.Interface, metricsClient metricsclientset.Interface, logger *logrus.Logger) *KubeNodeLoad {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}

	return &KubeNodeLoad{
		kubeClient:    kubeClient,
		metricsClient: metricsClient,
		logger:        logger,
	}
}

// CPUUsageRate 查找带 offload.io/role=<role> 标签的节点并计算CPU使用率
func (k *KubeNodeLoad) CPUUsageRate(ctx context.Context, role string) (float64, error) {
	nodes, err := k.kubeClient.CoreV1().Nodes().List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("%s=%s", RoleLabel, role),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list nodes: %w", err)
	}
	if len(nodes.Items) == 0 {
		return 0, fmt.Errorf("%w: role %s", ErrNodeNotFound, role)
	}

	node := &nodes.Items[0]
	metric, err := k.metricsClient.MetricsV1beta1().NodeMetricses().Get(ctx, node.Name, metav1.GetOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to get metrics for node %s: %w", node.Name, err)
	}

	rate := cpuUsageRate(node, metric)
	k.logger.Debugf("Node %s (%s) CPU usage %.1f%%", node.Name, role, rate)
	return rate, nil
}

// cpuUsageRate CPU使用率 = 使用量 / 容量 * 100（毫核）
func cpuUsageRate(node *corev1.Node, metric *metricsv1beta1.NodeMetrics) float64 {
	capacity := node.Status.Capacity.Cpu().MilliValue()
	if capacity <= 0 || metric == nil {
		return 0
	}
	usage := metric.Usage.Cpu().MilliValue()
	return float64(usage) / float64(capacity) * 100.0
}
