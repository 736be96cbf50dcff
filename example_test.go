package assetx_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gostratum/assetx"
	"github.com/gostratum/assetx/adapters/local"
	"github.com/gostratum/assetx/registry"
)

// ExampleService uploads, replaces and downloads an asset on the local
// filesystem. In an application the service comes from assetx.Module()
// together with adapters.Module() and registry.Module().
func ExampleService() {
	root, err := os.MkdirTemp("", "assetx-example")
	if err != nil {
		fmt.Println(err)
		return
	}
	defer os.RemoveAll(root)

	backend, err := local.New(root, nil)
	if err != nil {
		fmt.Println(err)
		return
	}

	cfg := assetx.DefaultConfig()
	cfg.AllowedExtensions = []string{"png", "svg"}
	cfg.URLPrefix = "/files"

	svc, err := assetx.NewService(cfg, backend, registry.NewMemory(),
		assetx.WithIDGenerator(func() string { return "logo" }),
	)
	if err != nil {
		fmt.Println(err)
		return
	}

	ctx := context.Background()
	a, err := svc.Upload(ctx, "logo.svg", 6, assetx.FromReader(strings.NewReader("<svg/>")))
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(a.StoredName, a.URL)

	if _, err := svc.Replace(ctx, a.ID, "", 13, assetx.FromReader(strings.NewReader("<svg></svg>\n\n"))); err != nil {
		fmt.Println(err)
		return
	}

	var buf bytes.Buffer
	got, err := svc.Download(ctx, a.ID, assetx.ToWriter(&buf))
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(strings.TrimSpace(buf.String()), got.Size, got.DownloadCount)

	_, err = svc.Upload(ctx, "payload.exe", 2, assetx.FromReader(strings.NewReader("MZ")))
	fmt.Println(assetx.KindOf(err))

	// Output:
	// logo.svg /files/logo.svg
	// <svg></svg> 13 1
	// unsupported_extension
}
