package orchestrator

import (
	"context"
	"time"

	"bluegreen-cd/internal/adapter/metrics"
	"bluegreen-cd/internal/model"
	"bluegreen-cd/pkg/utils"

	"go.uber.org/zap"
)

// verifySlot 对目标槽位做一次健康采样并打门槛.
// 错误率与P95是硬门槛, 缓存命中率只告警不阻断.
func (o *Orchestrator) verifySlot(ctx context.Context, st *runState, step int) (*model.HealthSample, error) {
	target := metrics.SampleTarget{
		TargetName:  st.target.Name,
		Environment: st.target.Environment,
		SlotName:    st.to.SlotName,
		Window:      utils.ParseDurationOr(o.gates.Window, 5*time.Minute),
	}

	s, err := o.metrics.Sample(ctx, target)
	if err != nil {
		return nil, err
	}

	sample := &model.HealthSample{
		Timestamp:    time.Now(),
		Step:         step,
		ErrorRate:    s.ErrorRate,
		LatencyP95Ms: s.LatencyP95Ms,
		CacheHitRate: s.CacheHitRate,
	}
	sample.Passed = s.ErrorRate <= o.gates.ErrorRateThreshold &&
		s.LatencyP95Ms <= o.gates.LatencyP95MsMax

	log := o.logger.With(
		zap.String("attempt_id", st.attempt.AttemptID),
		zap.String("slot", st.to.SlotName),
		zap.Int("step", step),
		zap.Float64("error_rate", s.ErrorRate),
		zap.Float64("latency_p95_ms", s.LatencyP95Ms))

	if s.CacheHitRate != nil {
		log = log.With(zap.Float64("cache_hit_rate", *s.CacheHitRate))
		if *s.CacheHitRate < o.gates.CacheHitRateFloor {
			log.Warn("缓存命中率低于软门槛",
				zap.Float64("floor", o.gates.CacheHitRateFloor))
		}
	}

	if sample.Passed {
		log.Info("健康采样通过")
	} else {
		log.Warn("健康采样未通过",
			zap.Float64("error_rate_threshold", o.gates.ErrorRateThreshold),
			zap.Float64("latency_p95_ms_max", o.gates.LatencyP95MsMax))
	}
	return sample, nil
}
