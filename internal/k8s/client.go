package k8s

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/vehicle-offloader/internal/config"

	apiextensionsclientset "k8s.io/apiextensions-apiserver/pkg/client/clientset/clientset"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/klog/v2"
	metricsclientset "k8s.io/metrics/pkg/client/clientset/versioned"
)

// Clients 调度器用到的K8s客户端集合
type Clients struct {
	Kube          kubernetes.Interface
	Dynamic       dynamic.Interface
	APIExtensions apiextensionsclientset.Interface
	Metrics       metricsclientset.Interface
	Namespace     string

	logger *logrus.Logger
}

// NewClients 根据kubeconfig或in-cluster配置创建客户端
func NewClients(cfg *config.K8sConfig, logger *logrus.Logger) (*Clients, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}

	redirectKlog(logger)

	var restConfig *rest.Config
	var err error

	// 如果有kubeconfig文件，使用文件配置
	if cfg.Kubeconfig != "" {
		restConfig, err = clientcmd.BuildConfigFromFlags("", cfg.Kubeconfig)
	} else {
		// 否则使用in-cluster配置
		restConfig, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create k8s config: %w", err)
	}

	kube, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}
	dyn, err := dynamic.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}
	ext, err := apiextensionsclientset.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create CRD clientset: %w", err)
	}
	mc, err := metricsclientset.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics clientset: %w", err)
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "default"
	}

	return &Clients{
		Kube:          kube,
		Dynamic:       dyn,
		APIExtensions: ext,
		Metrics:       mc,
		Namespace:     namespace,
		logger:        logger,
	}, nil
}

// redirectKlog client-go内部日志统一走logrus
func redirectKlog(logger *logrus.Logger) {
	klog.LogToStderr(false)
	klog.SetOutput(logger.WriterLevel(logrus.InfoLevel))
}

// TestConnection 测试K8s连接
func (c *Clients) TestConnection() error {
	// 尝试获取集群版本
	version, err := c.Kube.Discovery().ServerVersion()
	if err != nil {
		return fmt.Errorf("failed to get server version: %w", err)
	}

	c.logger.Infof("Connected to Kubernetes cluster: %s", version.String())
	return nil
}
