package metrics

import (
	"context"
	"fmt"
	"time"

	"bluegreen-cd/internal/pkg/logger"

	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PromSource 从Prometheus查询槽位健康指标
type PromSource struct {
	api promv1.API
}

func NewPromSource(address string) (*PromSource, error) {
	client, err := api.NewClient(api.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("初始化Prometheus客户端失败: %w", err)
	}
	return &PromSource{api: promv1.NewAPI(client)}, nil
}

// Sample 三条查询并发执行, 缓存命中率缺失不算错误
func (s *PromSource) Sample(ctx context.Context, target SampleTarget) (*Sample, error) {
	window := model.Duration(target.Window).String()
	selector := fmt.Sprintf(`target=%q,env=%q,slot=%q`, target.TargetName, target.Environment, target.SlotName)

	errRateQ := fmt.Sprintf(
		`sum(rate(http_requests_total{%s,code=~"5.."}[%s])) / sum(rate(http_requests_total{%s}[%s]))`,
		selector, window, selector, window)
	p95Q := fmt.Sprintf(
		`histogram_quantile(0.95, sum by (le) (rate(http_request_duration_seconds_bucket{%s}[%s]))) * 1000`,
		selector, window)
	cacheQ := fmt.Sprintf(
		`sum(rate(cache_hits_total{%s}[%s])) / (sum(rate(cache_hits_total{%s}[%s])) + sum(rate(cache_misses_total{%s}[%s])))`,
		selector, window, selector, window, selector, window)

	sample := &Sample{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		v, ok, err := s.queryScalar(gctx, errRateQ)
		if err != nil {
			return fmt.Errorf("查询错误率失败: %w", err)
		}
		if ok {
			// 无请求时分母为0, Prometheus返回空向量, 按零错误率处理
			sample.ErrorRate = v
		}
		return nil
	})
	g.Go(func() error {
		v, ok, err := s.queryScalar(gctx, p95Q)
		if err != nil {
			return fmt.Errorf("查询P95延迟失败: %w", err)
		}
		if ok {
			sample.LatencyP95Ms = v
		}
		return nil
	})
	g.Go(func() error {
		v, ok, err := s.queryScalar(gctx, cacheQ)
		if err != nil {
			return fmt.Errorf("查询缓存命中率失败: %w", err)
		}
		if ok {
			sample.CacheHitRate = &v
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sample, nil
}

func (s *PromSource) queryScalar(ctx context.Context, query string) (float64, bool, error) {
	result, warnings, err := s.api.Query(ctx, query, time.Now())
	if err != nil {
		return 0, false, err
	}
	if len(warnings) > 0 {
		logger.Log.Warn("Prometheus查询告警", zap.Strings("warnings", warnings), zap.String("query", query))
	}

	vector, ok := result.(model.Vector)
	if !ok {
		return 0, false, fmt.Errorf("查询结果类型非向量: %s", result.Type())
	}
	if len(vector) == 0 {
		return 0, false, nil
	}
	v := float64(vector[0].Value)
	return v, true, nil
}
