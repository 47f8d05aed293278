package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseDurationOr(t *testing.T) {
	assert.Equal(t, 30*time.Second, ParseDurationOr("30s", time.Minute))
	assert.Equal(t, 5*time.Minute, ParseDurationOr("5m", time.Second))
	assert.Equal(t, time.Minute, ParseDurationOr("", time.Minute))
	assert.Equal(t, time.Minute, ParseDurationOr("not-a-duration", time.Minute))
	assert.Equal(t, time.Minute, ParseDurationOr("-5s", time.Minute))
	assert.Equal(t, time.Minute, ParseDurationOr("0s", time.Minute))
}
