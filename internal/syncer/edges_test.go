package syncer

import (
	"sort"
	"testing"

	"github.com/controlVector/cv-git/pkg/types"
)

func TestResolveName(t *testing.T) {
	byName := map[string][]symbolRef{
		"Save": {
			{qualified: "internal/ledger/ledger.go:Save", file: "internal/ledger/ledger.go"},
			{qualified: "internal/config/config.go:Save", file: "internal/config/config.go"},
		},
		"Load": {
			{qualified: "internal/ledger/ledger.go:Load", file: "internal/ledger/ledger.go"},
		},
	}

	// Same-file definition wins even when the name is ambiguous.
	if got := resolveName(byName, "Save", "internal/config/config.go"); got != "internal/config/config.go:Save" {
		t.Errorf("same-file resolve = %q", got)
	}
	// Ambiguous cross-file names stay unresolved.
	if got := resolveName(byName, "Save", "cmd/main.go"); got != "" {
		t.Errorf("ambiguous resolve = %q, want unresolved", got)
	}
	// Unique repo-wide names resolve from anywhere.
	if got := resolveName(byName, "Load", "cmd/main.go"); got != "internal/ledger/ledger.go:Load" {
		t.Errorf("unique resolve = %q", got)
	}
	if got := resolveName(byName, "Missing", "cmd/main.go"); got != "" {
		t.Errorf("unknown name = %q, want unresolved", got)
	}
}

func TestLastSegment(t *testing.T) {
	if lastSegment("pkg.Sub.Func") != "Func" || lastSegment("Func") != "Func" {
		t.Error("lastSegment")
	}
}

func TestResolveJSImport(t *testing.T) {
	fileSet := map[string]bool{
		"web/src/math.ts":        true,
		"web/src/util/index.js":  true,
		"web/src/components.tsx": true,
	}

	if got := resolveJSImport("web/src/app.ts", "./math", fileSet); len(got) != 1 || got[0] != "web/src/math.ts" {
		t.Errorf("extension probe = %v", got)
	}
	if got := resolveJSImport("web/src/app.ts", "./util", fileSet); len(got) != 1 || got[0] != "web/src/util/index.js" {
		t.Errorf("index probe = %v", got)
	}
	if got := resolveJSImport("web/src/app.ts", "react", fileSet); got != nil {
		t.Errorf("external import = %v, want nil", got)
	}
	if got := resolveJSImport("web/src/app.ts", "./missing", fileSet); got != nil {
		t.Errorf("unresolvable import = %v, want nil", got)
	}
}

func TestResolvePyImport(t *testing.T) {
	fileSet := map[string]bool{
		"pkg/utils.py":        true,
		"pkg/sub/__init__.py": true,
		"top.py":              true,
	}

	if got := resolvePyImport("main.py", "pkg.utils", fileSet); len(got) != 1 || got[0] != "pkg/utils.py" {
		t.Errorf("absolute module = %v", got)
	}
	if got := resolvePyImport("main.py", "pkg.sub", fileSet); len(got) != 1 || got[0] != "pkg/sub/__init__.py" {
		t.Errorf("package __init__ = %v", got)
	}
	if got := resolvePyImport("pkg/app.py", ".utils", fileSet); len(got) != 1 || got[0] != "pkg/utils.py" {
		t.Errorf("relative import = %v", got)
	}
	if got := resolvePyImport("pkg/sub/mod.py", "..utils", fileSet); len(got) != 1 || got[0] != "pkg/utils.py" {
		t.Errorf("parent-relative import = %v", got)
	}
	if got := resolvePyImport("main.py", "os", fileSet); got != nil {
		t.Errorf("stdlib import = %v, want nil", got)
	}
}

func TestResolveGoImport(t *testing.T) {
	fileSet := map[string]bool{
		"internal/ledger/ledger.go":      true,
		"internal/ledger/ledger_test.go": true,
		"internal/graph/falkordb.go":     true,
		"main.go":                        true,
		"README.md":                      true,
	}

	got := resolveGoImport("github.com/controlVector/cv-git/internal/ledger", fileSet)
	sort.Strings(got)
	if len(got) != 2 || got[0] != "internal/ledger/ledger.go" {
		t.Errorf("package files = %v", got)
	}
	if got := resolveGoImport("github.com/redis/go-redis/v9", fileSet); got != nil {
		t.Errorf("external import = %v, want nil", got)
	}
}

func TestResolveImportDispatch(t *testing.T) {
	fileSet := map[string]bool{"web/a.js": true}
	imp := &types.Import{Source: "./a"}
	if got := resolveImport("web/b.js", imp, "javascript", fileSet); len(got) != 1 {
		t.Errorf("js dispatch = %v", got)
	}
	if got := resolveImport("b.rb", &types.Import{Source: "a"}, "ruby", fileSet); got != nil {
		t.Errorf("unsupported language = %v, want nil", got)
	}
}
