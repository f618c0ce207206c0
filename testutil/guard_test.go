package testutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type fakeTB struct {
	testing.TB
	failed string
}

func (f *fakeTB) Helper() {}

func (f *fakeTB) Fatalf(format string, args ...any) { f.failed = format }

func TestPredicates(t *testing.T) {
	cases := []struct {
		path   string
		nonStd bool
		infra  bool
	}{
		{"fmt", false, false},
		{"net/http", false, false},
		{"github.com/gin-gonic/gin", true, false},
		{"statefacts/pkg/domain", true, false},
		{"statefacts/internal/infra/persistence/sqlite", true, true},
		{"statefacts/internal/infra/blob/s3", true, true},
		{"statefacts/internal/blob", true, false},
	}
	for _, c := range cases {
		if got := NonStdlibImport(c.path); got != c.nonStd {
			t.Fatalf("NonStdlibImport(%q)=%v want %v", c.path, got, c.nonStd)
		}
		if got := InfraImport(c.path); got != c.infra {
			t.Fatalf("InfraImport(%q)=%v want %v", c.path, got, c.infra)
		}
	}
}

func writePackage(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, src := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestAssertNoDirectImports(t *testing.T) {
	dir := writePackage(t, map[string]string{
		"a.go":      "package tmp\nimport (\n\t\"fmt\"\n\tx \"context\"\n)\nvar _ = fmt.Sprint\nvar _ x.Context\n",
		"a_test.go": "package tmp\nimport \"github.com/stretchr/testify/assert\"\nvar _ = assert.True\n",
		"notes.txt": "import \"github.com/x/y\"",
	})
	AssertNoDirectImports(t, dir, NonStdlibImport, "stdlib only")

	bad := writePackage(t, map[string]string{
		"b.go": "package tmp\nimport \"statefacts/internal/infra/blob/fs\"\nvar _ = fs.New\n",
	})
	fake := &fakeTB{}
	AssertNoDirectImports(fake, bad, InfraImport, "no drivers")
	if fake.failed == "" {
		t.Fatalf("expected violation to be reported")
	}
}

func TestAssertNoTransitiveDependencyParsesOutput(t *testing.T) {
	orig := goListDeps
	t.Cleanup(func() { goListDeps = orig })

	goListDeps = func(string) ([]byte, error) {
		return []byte("fmt\nstatefacts/pkg/domain\n\nstatefacts/internal/infra/blob/fs\n"), nil
	}
	fake := &fakeTB{}
	AssertNoTransitiveDependency(fake, "./...", InfraImport, "no drivers")
	if fake.failed == "" {
		t.Fatalf("expected violation to be reported")
	}

	clean := &fakeTB{}
	AssertNoTransitiveDependency(clean, "./...", func(string) bool { return false }, "none")
	if clean.failed != "" {
		t.Fatalf("unexpected failure %q", clean.failed)
	}

	goListDeps = func(string) ([]byte, error) { return []byte("boom"), errors.New("exit 1") }
	broken := &fakeTB{}
	AssertNoTransitiveDependency(broken, "./...", InfraImport, "none")
	if broken.failed == "" {
		t.Fatalf("expected go list failure to be reported")
	}
}
