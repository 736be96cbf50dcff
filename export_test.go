package assetx

// Test hooks for the external assetx_test package.

type (
	MockMetrics = mockMetrics
	MockTracer  = mockTracer
)

var (
	NewMockMetrics = newMockMetrics
	NewMockTracer  = newMockTracer
)
