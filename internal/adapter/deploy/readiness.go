package deploy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/yaml"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
)

type workloadRef struct {
	Kind      string
	Namespace string
	Name      string
}

// parseWorkloadRefs 从release manifest中提取工作负载引用.
// 蓝绿槽位的chart只会产出Deployment/StatefulSet, 其余资源跳过.
func parseWorkloadRefs(manifest, defaultNamespace string) ([]workloadRef, error) {
	manifest = strings.TrimSpace(manifest)
	if manifest == "" {
		return nil, nil
	}

	decoder := yaml.NewYAMLOrJSONDecoder(bytes.NewReader([]byte(manifest)), 4096)
	var refs []workloadRef
	for {
		var doc map[string]any
		err := decoder.Decode(&doc)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("解析manifest失败: %w", err)
		}
		kind, _ := doc["kind"].(string)
		if kind != "Deployment" && kind != "StatefulSet" {
			continue
		}

		meta, _ := doc["metadata"].(map[string]any)
		name, _ := meta["name"].(string)
		if strings.TrimSpace(name) == "" {
			continue
		}
		namespace, _ := meta["namespace"].(string)
		if strings.TrimSpace(namespace) == "" {
			namespace = defaultNamespace
		}
		refs = append(refs, workloadRef{Kind: kind, Namespace: namespace, Name: name})
	}
	return refs, nil
}

// checkManifestWorkloads 检查manifest中全部工作负载是否就绪
func checkManifestWorkloads(ctx context.Context, kubeconfig, manifest, defaultNamespace string) (bool, string, error) {
	refs, err := parseWorkloadRefs(manifest, defaultNamespace)
	if err != nil {
		return false, "", err
	}
	if len(refs) == 0 {
		return true, "", nil
	}

	restCfg, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return false, "", err
	}
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return false, "", err
	}

	var pending []string
	for _, ref := range refs {
		ok, reason := checkWorkload(ctx, clientset, ref)
		if !ok {
			pending = append(pending, fmt.Sprintf("%s/%s: %s", ref.Kind, ref.Name, reason))
		}
	}
	if len(pending) > 0 {
		return false, strings.Join(pending, "; "), nil
	}
	return true, "", nil
}

func checkWorkload(ctx context.Context, clientset *kubernetes.Clientset, ref workloadRef) (bool, string) {
	switch ref.Kind {
	case "Deployment":
		obj, err := clientset.AppsV1().Deployments(ref.Namespace).Get(ctx, ref.Name, metav1.GetOptions{})
		if apierrors.IsNotFound(err) {
			return false, "not found"
		}
		if err != nil {
			return false, err.Error()
		}
		return deploymentReady(obj)
	case "StatefulSet":
		obj, err := clientset.AppsV1().StatefulSets(ref.Namespace).Get(ctx, ref.Name, metav1.GetOptions{})
		if apierrors.IsNotFound(err) {
			return false, "not found"
		}
		if err != nil {
			return false, err.Error()
		}
		return statefulSetReady(obj)
	}
	return true, ""
}

func deploymentReady(d *appsv1.Deployment) (bool, string) {
	var replicas int32 = 1
	if d.Spec.Replicas != nil {
		replicas = *d.Spec.Replicas
	}
	if d.Status.ObservedGeneration >= d.Generation &&
		d.Status.UpdatedReplicas >= replicas &&
		d.Status.AvailableReplicas >= replicas {
		return true, ""
	}
	return false, fmt.Sprintf("available %d/%d", d.Status.AvailableReplicas, replicas)
}

func statefulSetReady(s *appsv1.StatefulSet) (bool, string) {
	var replicas int32 = 1
	if s.Spec.Replicas != nil {
		replicas = *s.Spec.Replicas
	}
	if s.Status.ObservedGeneration >= s.Generation && s.Status.ReadyReplicas >= replicas {
		return true, ""
	}
	return false, fmt.Sprintf("ready %d/%d", s.Status.ReadyReplicas, replicas)
}
