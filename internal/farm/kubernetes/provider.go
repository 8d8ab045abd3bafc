// Package kubernetes implements the farm.Provider backend that claims
// workers by submitting batch Jobs to a Kubernetes cluster. Pools and
// groups map to node labels, so a claim can be pinned to a slice of the
// cluster the same way a Deadline job targets a pool.
package kubernetes

import (
	"context"
	"fmt"
	"sort"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	_ "k8s.io/client-go/plugin/pkg/client/auth" // Important for various auth providers
	"k8s.io/client-go/tools/clientcmd"

	"farmctl/internal/config"
	"farmctl/internal/farm"
	"farmctl/pkg/logging"
)

const (
	// PoolLabel and GroupLabel classify farm nodes; their distinct values
	// become the pool/group dropdown contents.
	PoolLabel  = "farm.farmctl.io/pool"
	GroupLabel = "farm.farmctl.io/group"

	// claimLabel marks Jobs submitted by farmctl so release only ever
	// touches our own jobs.
	claimLabel = "app.farmctl.io/claim"

	defaultNamespace = "render-farm"
	defaultImage     = "farm-worker:latest"
)

// Provider submits worker Jobs through client-go.
type Provider struct {
	namespace string
	image     string

	// client construction is deferred and mockable for tests.
	clientset     kubernetes.Interface
	clientFactory func() (kubernetes.Interface, error)
}

// New creates a provider for the given farm configuration. The kubeconfig
// is resolved with the default loading rules, honoring the configured
// context override.
func New(cfg config.FarmConfig) *Provider {
	namespace := cfg.KubeNamespace
	if namespace == "" {
		namespace = defaultNamespace
	}
	image := cfg.WorkerImage
	if image == "" {
		image = defaultImage
	}
	p := &Provider{namespace: namespace, image: image}
	p.clientFactory = func() (kubernetes.Interface, error) {
		loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
		configOverrides := &clientcmd.ConfigOverrides{CurrentContext: cfg.KubeContext}
		kubeConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, configOverrides)

		restConfig, err := kubeConfig.ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to get REST config: %w", err)
		}
		restConfig.Timeout = 30 * time.Second
		return kubernetes.NewForConfig(restConfig)
	}
	return p
}

func (p *Provider) client() (kubernetes.Interface, error) {
	if p.clientset != nil {
		return p.clientset, nil
	}
	cs, err := p.clientFactory()
	if err != nil {
		return nil, err
	}
	p.clientset = cs
	return cs, nil
}

// Name implements farm.Provider.
func (p *Provider) Name() string { return "kubernetes" }

// Available implements farm.Provider. The cluster connection is attempted
// lazily; availability only means a client could be constructed.
func (p *Provider) Available() bool {
	_, err := p.client()
	return err == nil
}

// ListPools implements farm.Provider by collecting distinct pool label
// values across farm nodes.
func (p *Provider) ListPools(ctx context.Context) ([]string, error) {
	return p.listNodeLabelValues(ctx, PoolLabel)
}

// ListGroups implements farm.Provider.
func (p *Provider) ListGroups(ctx context.Context) ([]string, error) {
	return p.listNodeLabelValues(ctx, GroupLabel)
}

func (p *Provider) listNodeLabelValues(ctx context.Context, label string) ([]string, error) {
	cs, err := p.client()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", farm.ErrFarmUnavailable, err)
	}

	nodes, err := cs.CoreV1().Nodes().List(ctx, metav1.ListOptions{LabelSelector: label})
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}

	seen := make(map[string]struct{})
	for _, node := range nodes.Items {
		if v := node.Labels[label]; v != "" {
			seen[v] = struct{}{}
		}
	}
	values := make([]string, 0, len(seen))
	for v := range seen {
		values = append(values, v)
	}
	sort.Strings(values)
	return values, nil
}

// ClaimWorkers implements farm.Provider. One Job with
// parallelism=completions=count yields count concurrently scheduled worker
// pods, each registering with the master on boot.
func (p *Provider) ClaimWorkers(ctx context.Context, req farm.ClaimRequest) (farm.ClaimResult, error) {
	cs, err := p.client()
	if err != nil {
		return farm.ClaimResult{}, fmt.Errorf("%w: %v", farm.ErrFarmUnavailable, err)
	}

	job := p.buildWorkerJob(req)
	created, err := cs.BatchV1().Jobs(p.namespace).Create(ctx, job, metav1.CreateOptions{})
	if err != nil {
		return farm.ClaimResult{}, fmt.Errorf("create worker job: %w", err)
	}

	logging.Info("KubeFarm", "Claimed %d worker(s) via job %s/%s", req.Count, p.namespace, created.Name)
	return farm.ClaimResult{JobID: created.Name, Count: req.Count, SubmittedAt: time.Now()}, nil
}

// ReleaseWorkers implements farm.Provider. Jobs are deleted with foreground
// propagation so worker pods are torn down with them. Only the names that
// were actually deleted are returned.
func (p *Provider) ReleaseWorkers(ctx context.Context, jobIDs []string) ([]string, error) {
	cs, err := p.client()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", farm.ErrFarmUnavailable, err)
	}

	propagation := metav1.DeletePropagationForeground
	var released []string
	for _, name := range jobIDs {
		err := cs.BatchV1().Jobs(p.namespace).Delete(ctx, name, metav1.DeleteOptions{PropagationPolicy: &propagation})
		if err != nil {
			logging.Warn("KubeFarm", "Failed to delete job %s: %v", name, err)
			continue
		}
		released = append(released, name)
	}
	return released, nil
}

func (p *Provider) buildWorkerJob(req farm.ClaimRequest) *batchv1.Job {
	count := int32(req.Count)
	host, port := masterHostPort(req.MasterAddr)

	nodeSelector := map[string]string{}
	if req.Pool != farm.NoneSelection && req.Pool != "" {
		nodeSelector[PoolLabel] = req.Pool
	}
	if req.Group != farm.NoneSelection && req.Group != "" {
		nodeSelector[GroupLabel] = req.Group
	}

	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			GenerateName: "farm-workers-",
			Namespace:    p.namespace,
			Labels:       map[string]string{claimLabel: "true"},
		},
		Spec: batchv1.JobSpec{
			Parallelism: &count,
			Completions: &count,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: map[string]string{claimLabel: "true"},
				},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					NodeSelector:  nodeSelector,
					Containers: []corev1.Container{
						{
							Name:  "worker",
							Image: p.image,
							Env: []corev1.EnvVar{
								{Name: "FARM_DIST_MODE", Value: "1"},
								{Name: "FARM_MASTER_WS", Value: req.MasterAddr},
								{Name: "FARM_MASTER_HOST", Value: host},
								{Name: "FARM_MASTER_PORT", Value: port},
								{Name: "FARM_FORCE_NEW_INSTANCE", Value: "1"},
								{Name: "FARM_WORKER_MODE", Value: "1"},
							},
						},
					},
				},
			},
		},
	}
}

func masterHostPort(addr string) (string, string) {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i], addr[i+1:]
		}
	}
	return addr, "8188"
}
