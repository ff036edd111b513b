package k8s

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	apiextensionsclientset "k8s.io/apiextensions-apiserver/pkg/client/clientset/clientset"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// Vehicle 自定义资源
const (
	VehicleGroup    = "offload.io"
	VehicleVersion  = "v1"
	VehicleKind     = "Vehicle"
	VehicleResource = "vehicles"
)

// VehicleGVR Vehicle资源的GVR
var VehicleGVR = schema.GroupVersionResource{
	Group:    VehicleGroup,
	Version:  VehicleVersion,
	Resource: VehicleResource,
}

// VehicleCRDName CRD对象名称
const VehicleCRDName = VehicleResource + "." + VehicleGroup

// EnsureVehicleCRD 集群中没有Vehicle CRD时创建
func EnsureVehicleCRD(ctx context.Context, client apiextensionsclientset.Interface, logger *logrus.Logger) error {
	crds := client.ApiextensionsV1().CustomResourceDefinitions()

	_, err := crds.Get(ctx, VehicleCRDName, metav1.GetOptions{})
	if err == nil {
		return nil
	}
	if !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to get CRD %s: %w", VehicleCRDName, err)
	}

	if _, err := crds.Create(ctx, vehicleCRD(), metav1.CreateOptions{}); err != nil {
		if apierrors.IsAlreadyExists(err) {
			return nil
		}
		return fmt.Errorf("failed to create CRD %s: %w", VehicleCRDName, err)
	}

	if logger != nil {
		logger.Infof("Created CRD %s", VehicleCRDName)
	}
	return nil
}

func vehicleCRD() *apiextensionsv1.CustomResourceDefinition {
	number := apiextensionsv1.JSONSchemaProps{Type: "number"}
	position := apiextensionsv1.JSONSchemaProps{
		Type:     "object",
		Required: []string{"x", "y"},
		Properties: map[string]apiextensionsv1.JSONSchemaProps{
			"x": number,
			"y": number,
			"z": number,
		},
	}

	return &apiextensionsv1.CustomResourceDefinition{
		ObjectMeta: metav1.ObjectMeta{Name: VehicleCRDName},
		Spec: apiextensionsv1.CustomResourceDefinitionSpec{
			Group: VehicleGroup,
			Scope: apiextensionsv1.NamespaceScoped,
			Names: apiextensionsv1.CustomResourceDefinitionNames{
				Plural:     VehicleResource,
				Singular:   "vehicle",
				Kind:       VehicleKind,
				ListKind:   VehicleKind + "List",
				ShortNames: []string{"veh"},
			},
			Versions: []apiextensionsv1.CustomResourceDefinitionVersion{{
				Name:    VehicleVersion,
				Served:  true,
				Storage: true,
				Subresources: &apiextensionsv1.CustomResourceSubresources{
					Status: &apiextensionsv1.CustomResourceSubresourceStatus{},
				},
				Schema: &apiextensionsv1.CustomResourceValidation{
					OpenAPIV3Schema: &apiextensionsv1.JSONSchemaProps{
						Type: "object",
						Properties: map[string]apiextensionsv1.JSONSchemaProps{
							"spec": {
								Type: "object",
								Properties: map[string]apiextensionsv1.JSONSchemaProps{
									"vehicleId": {Type: "string"},
								},
							},
							"status": {
								Type: "object",
								Properties: map[string]apiextensionsv1.JSONSchemaProps{
									"position":   position,
									"speed":      number,
									"heading":    number,
									"lastUpdate": {Type: "string"},
								},
							},
						},
					},
				},
			}},
		},
	}
}
