package deploy

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"bluegreen-cd/internal/pkg/config"
	"bluegreen-cd/internal/pkg/logger"
	pkgErrors "bluegreen-cd/pkg/errors"

	"go.uber.org/zap"
	"helm.sh/helm/v3/pkg/action"
	"helm.sh/helm/v3/pkg/chart"
	"helm.sh/helm/v3/pkg/chart/loader"
	"helm.sh/helm/v3/pkg/cli"
	"helm.sh/helm/v3/pkg/getter"
	"helm.sh/helm/v3/pkg/release"
	"helm.sh/helm/v3/pkg/repo"
	"helm.sh/helm/v3/pkg/storage/driver"
	"k8s.io/cli-runtime/pkg/genericclioptions"
)

var settings = cli.New()

// HelmDriver 工作负载驱动, 槽位对应helm release.
// 权重与启停都落在release values上, 由chart内的ingress注解生效.
type HelmDriver struct {
	cfg config.HelmConfig
}

func NewHelmDriver(cfg config.HelmConfig) *HelmDriver {
	return &HelmDriver{cfg: cfg}
}

// releaseName 槽位release命名约定, 资源登记时同样按此生成
func releaseName(targetName, environment, slotName string) string {
	return fmt.Sprintf("%s-%s-%s", targetName, environment, slotName)
}

func (d *HelmDriver) initAction() (*action.Configuration, error) {
	flags := genericclioptions.NewConfigFlags(false)
	flags.KubeConfig = &d.cfg.Kubeconfig
	flags.Namespace = &d.cfg.Namespace

	actionConfig := new(action.Configuration)
	if err := actionConfig.Init(flags, d.cfg.Namespace, "secret", logger.Sugar().Debugf); err != nil {
		return nil, err
	}
	return actionConfig, nil
}

// Deploy install or upgrade, 不处理chart的依赖关系
func (d *HelmDriver) Deploy(ctx context.Context, param *DeployParam) error {
	actionConfig, err := d.initAction()
	if err != nil {
		return pkgErrors.NewDeployError(true, err)
	}

	// 1. 加载chart, chart名即发布目标名
	ch, err := d.loadChart(param.Slot.TargetName)
	if err != nil {
		return pkgErrors.NewDeployError(false, err)
	}

	// 2. 合并values, 槽位身份与镜像版本由编排方写死
	vals := map[string]interface{}{}
	for k, v := range param.Values {
		vals[k] = v
	}
	vals["image"] = map[string]interface{}{"tag": param.ArtifactVersion}
	vals["slot"] = map[string]interface{}{"name": param.Slot.SlotName, "enabled": true}

	// 3. upgrade or install
	var rel *release.Release
	name := param.Slot.BackingResourceID

	historyClient := action.NewHistory(actionConfig)
	historyClient.Max = 1
	versions, err := historyClient.Run(name)
	if errors.Is(err, driver.ErrReleaseNotFound) || (len(versions) > 0 && versions[len(versions)-1].Info.Status == release.StatusUninstalled) {
		client := action.NewInstall(actionConfig)
		client.Namespace = d.cfg.Namespace
		client.ReleaseName = name

		rel, err = client.RunWithContext(ctx, ch, vals)
		if err != nil {
			return pkgErrors.NewDeployError(true, err)
		}
	} else if err != nil {
		return pkgErrors.NewDeployError(true, err)
	} else {
		client := action.NewUpgrade(actionConfig)
		client.Namespace = d.cfg.Namespace

		rel, err = client.RunWithContext(ctx, name, ch, vals)
		if err != nil {
			return pkgErrors.NewDeployError(true, err)
		}
	}

	log := logger.SugarWith(zap.String("release_name", rel.Name), zap.String("release_namespace", rel.Namespace))
	log.Debugf("Helm 部署成功! Release %s has been upgraded. Revision: %d Status:%v", rel.Name, rel.Version, rel.Info.Status)

	return nil
}

// Ready release已deployed且其中的工作负载全部就绪
func (d *HelmDriver) Ready(ctx context.Context, slot SlotRef) error {
	actionConfig, err := d.initAction()
	if err != nil {
		return err
	}

	statusClient := action.NewStatus(actionConfig)
	rel, err := statusClient.Run(slot.BackingResourceID)
	if err != nil {
		return fmt.Errorf("查询release %s 失败: %w", slot.BackingResourceID, err)
	}
	if rel.Info.Status != release.StatusDeployed {
		return fmt.Errorf("release %s 状态为 %s", slot.BackingResourceID, rel.Info.Status)
	}

	ready, reason, err := checkManifestWorkloads(ctx, d.cfg.Kubeconfig, rel.Manifest, d.cfg.Namespace)
	if err != nil {
		return err
	}
	if !ready {
		return fmt.Errorf("release %s 工作负载未就绪: %s", slot.BackingResourceID, reason)
	}
	return nil
}

func (d *HelmDriver) SlotState(ctx context.Context, slot SlotRef) (SlotState, error) {
	actionConfig, err := d.initAction()
	if err != nil {
		return SlotState{}, err
	}

	getValues := action.NewGetValues(actionConfig)
	getValues.AllValues = true
	vals, err := getValues.Run(slot.BackingResourceID)
	if err != nil {
		if errors.Is(err, driver.ErrReleaseNotFound) {
			return SlotState{}, nil
		}
		return SlotState{}, fmt.Errorf("读取release %s values失败: %w", slot.BackingResourceID, err)
	}

	st := SlotState{}
	if slotVals, ok := vals["slot"].(map[string]interface{}); ok {
		st.Enabled, _ = slotVals["enabled"].(bool)
	}
	if trafficVals, ok := vals["traffic"].(map[string]interface{}); ok {
		switch w := trafficVals["weight"].(type) {
		case int:
			st.Weight = w
		case float64:
			st.Weight = int(w)
		}
	}
	return st, nil
}

// SetWeights 逐release覆写traffic.weight. 两次upgrade之间无法原子,
// 先降后升, 过渡期内总权重不会超过100.
func (d *HelmDriver) SetWeights(ctx context.Context, targetName, environment string, weights map[string]int) error {
	slots := make([]string, 0, len(weights))
	for name := range weights {
		slots = append(slots, name)
	}
	sort.Slice(slots, func(i, j int) bool { return weights[slots[i]] < weights[slots[j]] })

	for _, slotName := range slots {
		vals := map[string]interface{}{
			"traffic": map[string]interface{}{"weight": weights[slotName]},
		}
		if err := d.patchRelease(ctx, releaseName(targetName, environment, slotName), vals); err != nil {
			return fmt.Errorf("写入槽位 %s 权重失败: %w", slotName, err)
		}
	}
	return nil
}

func (d *HelmDriver) SetEnabled(ctx context.Context, slot SlotRef, enabled bool) error {
	vals := map[string]interface{}{
		"slot": map[string]interface{}{"name": slot.SlotName, "enabled": enabled},
	}
	return d.patchRelease(ctx, slot.BackingResourceID, vals)
}

// patchRelease 复用已有values做一次增量upgrade
func (d *HelmDriver) patchRelease(ctx context.Context, name string, vals map[string]interface{}) error {
	actionConfig, err := d.initAction()
	if err != nil {
		return err
	}

	getClient := action.NewGet(actionConfig)
	rel, err := getClient.Run(name)
	if err != nil {
		return fmt.Errorf("查询release %s 失败: %w", name, err)
	}

	client := action.NewUpgrade(actionConfig)
	client.Namespace = d.cfg.Namespace
	client.ReuseValues = true

	if _, err = client.RunWithContext(ctx, name, rel.Chart, vals); err != nil {
		return err
	}
	return nil
}

func (d *HelmDriver) loadChart(chartName string) (*chart.Chart, error) {
	chartPathOptions := action.ChartPathOptions{
		RepoURL:  d.cfg.ChartRepoURL,
		Username: d.cfg.Username,
		Password: d.cfg.Password,
	}

	// 更新repo索引
	if err := d.updateRepo(); err != nil {
		return nil, err
	}

	chartPath, err := chartPathOptions.LocateChart(chartName, settings)
	if err != nil {
		return nil, err
	}
	return loader.Load(chartPath)
}

func (d *HelmDriver) updateRepo() error {
	repoEntry := &repo.Entry{
		Name:     "bluegreen-cd",
		URL:      d.cfg.ChartRepoURL,
		Username: d.cfg.Username,
		Password: d.cfg.Password,
	}

	providers := getter.All(settings)
	r, err := repo.NewChartRepository(repoEntry, providers)
	if err != nil {
		return err
	}
	if _, err = r.DownloadIndexFile(); err != nil {
		return err
	}
	return nil
}
