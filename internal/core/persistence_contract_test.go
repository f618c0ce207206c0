package core

import (
	"go/types"
	"slices"
	"testing"

	"golang.org/x/tools/go/packages"
)

// TestFactStoreImplementationsAreSanctioned fails when a concrete FactStore
// appears outside the driver packages selectable through OpenStore. Adding a
// backend means extending OpenStore and this list together.
func TestFactStoreImplementationsAreSanctioned(t *testing.T) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedTypes}
	pkgs, err := packages.Load(cfg, "statefacts/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}

	var factStore *types.Interface
	for _, p := range pkgs {
		if p.PkgPath != "statefacts/pkg/domain" || p.Types == nil {
			continue
		}
		obj := p.Types.Scope().Lookup("FactStore")
		if obj == nil {
			t.Fatalf("domain.FactStore not found")
		}
		iface, ok := obj.Type().Underlying().(*types.Interface)
		if !ok {
			t.Fatalf("domain.FactStore is not an interface")
		}
		factStore = iface
	}
	if factStore == nil {
		t.Fatalf("failed to resolve domain.FactStore")
	}

	allowed := map[string]struct{}{
		"statefacts/internal/infra/persistence/memory":   {},
		"statefacts/internal/infra/persistence/sqldoc":   {},
		"statefacts/internal/infra/persistence/sqlite":   {},
		"statefacts/internal/infra/persistence/postgres": {},
		"statefacts/internal/infra/persistence/mongo":    {},
		"statefacts/internal/infra/persistence/badger":   {},
	}
	var found, unexpected []string
	for _, p := range pkgs {
		if p.Types == nil {
			continue
		}
		scope := p.Types.Scope()
		for _, name := range scope.Names() {
			tn, ok := scope.Lookup(name).(*types.TypeName)
			if !ok {
				continue
			}
			named, ok := tn.Type().(*types.Named)
			if !ok {
				continue
			}
			if _, isStruct := named.Underlying().(*types.Struct); !isStruct {
				continue
			}
			if !types.Implements(types.NewPointer(named), factStore) {
				continue
			}
			found = append(found, p.PkgPath)
			if _, ok := allowed[p.PkgPath]; !ok {
				unexpected = append(unexpected, p.PkgPath+"."+name)
			}
		}
	}
	if len(unexpected) > 0 {
		t.Fatalf("unexpected FactStore implementations:\n%v", unexpected)
	}
	for _, want := range []string{"memory", "sqlite", "postgres", "mongo", "badger"} {
		if !slices.Contains(found, "statefacts/internal/infra/persistence/"+want) {
			t.Fatalf("driver %s no longer implements domain.FactStore", want)
		}
	}
}
