package architecture_test

import (
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const modulePath = "streamddl"

type layerRule struct {
	sourcePrefix string
	forbidden    []string
	hint         string
}

func internalPkgs(names ...string) []string {
	out := make([]string, 0, len(names)+2)
	for _, n := range names {
		out = append(out, modulePath+"/internal/"+n)
	}
	return append(out, modulePath+"/cmd", modulePath+"/pkg/cli")
}

var architectureRules = []layerRule{
	{
		sourcePrefix: modulePath + "/internal/domain",
		forbidden: internalPkgs("agent", "bootstrap", "catalog", "cluster", "compute", "config", "db", "ddl",
			"handler", "pgwire", "plan", "planner", "rpc", "sqlfront", "stream", "streammeta"),
		hint: "domain may only import domain",
	},
	{
		sourcePrefix: modulePath + "/internal/plan",
		forbidden: internalPkgs("agent", "catalog", "cluster", "compute", "db", "handler", "pgwire",
			"planner", "stream", "streammeta"),
		hint: "plan should depend on domain only; fragments and streaming plans are pure values",
	},
	{
		sourcePrefix: modulePath + "/internal/db",
		forbidden:    internalPkgs("catalog", "cluster", "compute", "handler", "pgwire", "planner", "stream"),
		hint:         "db should depend on domain and db-local packages",
	},
	{
		sourcePrefix: modulePath + "/internal/catalog",
		forbidden:    internalPkgs("compute", "handler", "pgwire", "planner", "stream"),
		hint:         "catalog should depend on domain and the db repositories",
	},
	{
		sourcePrefix: modulePath + "/internal/pgwire",
		forbidden:    internalPkgs("catalog", "compute", "db", "handler", "planner", "stream"),
		hint:         "pgwire serves any executor and must not reach into coordinator internals",
	},
	{
		sourcePrefix: modulePath + "/internal/handler",
		forbidden:    internalPkgs("agent", "pgwire", "streammeta"),
		hint:         "handler should depend on catalog, plan, planner and the broadcast/stream interfaces",
	},
	{
		sourcePrefix: modulePath + "/internal/compute",
		forbidden:    internalPkgs("agent", "catalog", "db", "handler", "pgwire", "stream"),
		hint:         "compute is the coordinator side of the node task wire",
	},
	{
		sourcePrefix: modulePath + "/internal/stream",
		forbidden:    internalPkgs("catalog", "compute", "db", "handler", "pgwire", "streammeta"),
		hint:         "stream is the coordinator side of the stream manager wire",
	},
	{
		sourcePrefix: modulePath + "/internal/agent",
		forbidden:    internalPkgs("catalog", "cluster", "db", "handler", "pgwire", "stream"),
		hint:         "agent runs on compute nodes and only shares the task wire with the coordinator",
	},
}

func collectGoFiles(root string) ([]string, error) {
	files := make([]string, 0)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".go") {
			files = append(files, filepath.ToSlash(path))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func repoRootDir() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "."
	}
	return filepath.Clean(filepath.Join(filepath.Dir(file), "..", ".."))
}

func internalRootDir() string {
	return filepath.Join(repoRootDir(), "internal")
}

func findRule(sourcePkg string) (layerRule, bool) {
	for _, rule := range architectureRules {
		if hasPathPrefix(sourcePkg, rule.sourcePrefix) {
			return rule, true
		}
	}
	return layerRule{}, false
}

func matchingForbiddenPrefix(importPath string, forbidden []string) string {
	for _, prefix := range forbidden {
		if hasPathPrefix(importPath, prefix) {
			return prefix
		}
	}
	return ""
}

func hasPathPrefix(value string, prefix string) bool {
	return value == prefix || strings.HasPrefix(value, prefix+"/")
}

func packageImportPath(file string) string {
	path := filepath.ToSlash(file)
	if idx := strings.Index(path, "/internal/"); idx >= 0 {
		return modulePath + filepath.ToSlash(filepath.Dir(path[idx:]))
	}
	return modulePath + "/" + filepath.ToSlash(filepath.Dir(path))
}

func shouldSkipGeneratedFile(path string) bool {
	base := filepath.Base(path)
	return strings.HasSuffix(base, ".pb.go") || strings.HasSuffix(base, ".gen.go")
}

func isTestFile(path string) bool {
	return strings.HasSuffix(filepath.Base(path), "_test.go")
}

func parseImports(t *testing.T, file string) []string {
	t.Helper()

	fset := token.NewFileSet()
	parsed, err := parser.ParseFile(fset, file, nil, parser.ImportsOnly)
	require.NoErrorf(t, err, "parse imports for %s", file)

	imports := make([]string, 0, len(parsed.Imports))
	for _, imp := range parsed.Imports {
		imports = append(imports, strings.Trim(imp.Path.Value, "\""))
	}
	return imports
}

func relToRepoRoot(path string) string {
	rel, err := filepath.Rel(repoRootDir(), path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
