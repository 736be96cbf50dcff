package testutil

import (
	"github.com/gostratum/assetx"
	"go.uber.org/fx"
)

// TestModule provides a test configuration plus a MockBackend and a
// MockRegistry, both also exposed under their assetx interfaces so tests
// can inject failures into the instances the service uses.
//
// Example usage:
//
//	import "github.com/gostratum/assetx/internal/testutil"
//
//	func TestMyApp(t *testing.T) {
//	    var backend *testutil.MockBackend
//	    app := fxtest.New(t,
//	        testutil.TestModule,
//	        assetx.ServiceModule(),
//	        fx.Populate(&backend),
//	    )
//	    // ...
//	}
var TestModule = fx.Module("assetx-test",
	fx.Provide(
		NewTestConfig,
		func() *MockBackend { return NewMockBackend(assetx.BackendLocal) },
		func() *MockRegistry { return NewMockRegistry() },
		func(b *MockBackend) assetx.Backend { return b },
		func(r *MockRegistry) assetx.Registry { return r },
	),
)

// NewTestConfig creates a configuration suitable for unit tests: png, jpg
// and svg uploads under "assets" with URLs below "/files".
func NewTestConfig() *assetx.Config {
	cfg := assetx.DefaultConfig()
	cfg.BasePath = "assets"
	cfg.AllowedExtensions = []string{"png", "jpg", "svg"}
	cfg.URLPrefix = "/files"
	cfg.EnableLogging = true
	return cfg
}
