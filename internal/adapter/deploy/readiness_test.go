package deploy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const releaseManifest = `
---
apiVersion: v1
kind: Service
metadata:
  name: web-green
spec:
  ports:
    - port: 80
---
apiVersion: apps/v1
kind: Deployment
metadata:
  name: web-green
  namespace: prod
spec:
  replicas: 3
---
apiVersion: apps/v1
kind: StatefulSet
metadata:
  name: web-green-cache
spec:
  replicas: 1
`

func TestParseWorkloadRefs(t *testing.T) {
	refs, err := parseWorkloadRefs(releaseManifest, "default")
	require.NoError(t, err)
	require.Len(t, refs, 2)

	assert.Equal(t, workloadRef{Kind: "Deployment", Namespace: "prod", Name: "web-green"}, refs[0])
	// 未声明namespace时回落到release namespace
	assert.Equal(t, workloadRef{Kind: "StatefulSet", Namespace: "default", Name: "web-green-cache"}, refs[1])
}

func TestParseWorkloadRefsEmptyManifest(t *testing.T) {
	refs, err := parseWorkloadRefs("", "default")
	require.NoError(t, err)
	assert.Empty(t, refs)

	refs, err = parseWorkloadRefs("\n---\n", "default")
	require.NoError(t, err)
	assert.Empty(t, refs)
}
