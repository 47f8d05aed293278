package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateStepPlan(t *testing.T) {
	tests := []struct {
		name    string
		steps   []int64
		wantErr bool
	}{
		{"标准五步", []int64{0, 25, 50, 75, 100}, false},
		{"直切", []int64{0, 100}, false},
		{"细粒度", []int64{0, 10, 20, 30, 50, 80, 100}, false},
		{"空计划", nil, true},
		{"单步", []int64{100}, true},
		{"不以0开始", []int64{10, 50, 100}, true},
		{"不以100结束", []int64{0, 50, 99}, true},
		{"非严格递增", []int64{0, 50, 50, 100}, true},
		{"递减", []int64{0, 75, 50, 100}, true},
		{"越界", []int64{0, 50, 101, 100}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStepPlan(tt.steps)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
