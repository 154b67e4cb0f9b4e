package internalcheck

import (
	"testing"

	"golang.org/x/tools/go/packages"
)

var checkedPackages = []string{
	"github.com/pqwasm/dilithium-go/pkg/dilithium",
	"github.com/pqwasm/dilithium-go/pkg/dilithium/logging",
	"github.com/pqwasm/dilithium-go/pkg/dilithium/softmod",
	"github.com/pqwasm/dilithium-go/pkg/dilithium/wasmmod",
}

func loadPackages(t *testing.T) []*packages.Package {
	t.Helper()
	cfg := &packages.Config{
		Mode: packages.NeedSyntax | packages.NeedTypes | packages.NeedTypesInfo | packages.NeedFiles | packages.NeedName,
	}
	pkgs, err := packages.Load(cfg, checkedPackages...)
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	if packages.PrintErrors(pkgs) > 0 {
		t.Fatal("packages contain errors")
	}
	return pkgs
}
