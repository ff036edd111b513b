package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	kubefake "k8s.io/client-go/kubernetes/fake"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"
	metricsfake "k8s.io/metrics/pkg/client/clientset/versioned/fake"
)

func edgeNode(name, role, cpu string) *corev1.Node {
	return &corev1.Node{
		ObjectMeta: metav1.ObjectMeta{
			Name:   name,
			Labels: map[string]string{RoleLabel: role},
		},
		Status: corev1.NodeStatus{
			Capacity: corev1.ResourceList{
				corev1.ResourceCPU: resource.MustParse(cpu),
			},
		},
	}
}

func nodeMetric(name, cpu string) *metricsv1beta1.NodeMetrics {
	return &metricsv1beta1.NodeMetrics{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Usage: corev1.ResourceList{
			corev1.ResourceCPU: resource.MustParse(cpu),
		},
	}
}

func TestKubeNodeLoadCPUUsageRate(t *testing.T) {
	kube := kubefake.NewSimpleClientset(edgeNode("rsu-a", "edge1", "4"))
	metricsClient := metricsfake.NewSimpleClientset()
	// metrics.k8s.io的NodeMetrics资源名为nodes
	gvr := metricsv1beta1.SchemeGroupVersion.WithResource("nodes")
	require.NoError(t, metricsClient.Tracker().Create(gvr, nodeMetric("rsu-a", "3000m"), ""))

	load := NewKubeNodeLoad(kube, metricsClient, nil)
	rate, err := load.CPUUsageRate(context.Background(), "edge1")
	require.NoError(t, err)
	assert.InDelta(t, 75.0, rate, 1e-9)
}

func TestKubeNodeLoadUnknownRole(t *testing.T) {
	kube := kubefake.NewSimpleClientset(edgeNode("rsu-a", "edge1", "4"))
	load := NewKubeNodeLoad(kube, metricsfake.NewSimpleClientset(), nil)

	_, err := load.CPUUsageRate(context.Background(), "edge7")
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestCPUUsageRate(t *testing.T) {
	assert.InDelta(t, 25.0, cpuUsageRate(edgeNode("n", "edge1", "2"), nodeMetric("n", "500m")), 1e-9)
	assert.Zero(t, cpuUsageRate(edgeNode("n", "edge1", "0"), nodeMetric("n", "500m")))
	assert.Zero(t, cpuUsageRate(edgeNode("n", "edge1", "2"), nil))
}
