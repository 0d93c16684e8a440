package validation

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/tools/go/packages"
)

// LayerRule forbids packages under Package from importing any path under
// one of the Forbidden prefixes.
type LayerRule struct {
	Package   string
	Forbidden []string
	Reason    string
}

// DefaultLayerRules returns the dependency direction for module: domain at the
// bottom, the dispenser core above it, adapters and commands on top.
func DefaultLayerRules(module string) []LayerRule {
	p := func(rel string) string { return module + "/" + rel }
	return []LayerRule{
		{
			Package:   p("pkg/domain"),
			Forbidden: []string{p("internal"), p("cmd"), "github.com/aws", "github.com/jackc", "modernc.org", "github.com/prometheus", "go.opentelemetry.io"},
			Reason:    "domain types stay free of storage and transport concerns",
		},
		{
			Package:   p("internal/core"),
			Forbidden: []string{p("internal/adapters"), p("internal/config"), p("internal/blob"), p("cmd")},
			Reason:    "the dispenser core depends on collaborator interfaces, not adapters",
		},
		{
			Package:   p("internal/infra"),
			Forbidden: []string{p("internal/core"), p("internal/adapters"), p("cmd")},
			Reason:    "infrastructure backends sit below the dispenser core",
		},
		{
			Package:   p("internal/blob"),
			Forbidden: []string{p("internal/core"), p("internal/adapters")},
			Reason:    "blob storage is a leaf service",
		},
		{
			Package:   p("internal/adapters"),
			Forbidden: []string{p("cmd"), p("internal/config")},
			Reason:    "adapters are wired by commands, never the reverse",
		},
	}
}

func (r LayerRule) applies(pkgPath string) bool {
	return pkgPath == r.Package || strings.HasPrefix(pkgPath, r.Package+"/")
}

func (r LayerRule) forbids(importPath string) bool {
	for _, prefix := range r.Forbidden {
		if importPath == prefix || strings.HasPrefix(importPath, prefix+"/") {
			return true
		}
	}
	return false
}

var loadPackages = func(dir string, patterns ...string) ([]*packages.Package, error) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedImports,
		Dir:  dir,
	}
	return packages.Load(cfg, patterns...)
}

// CheckLayering loads patterns relative to dir and reports every direct import
// that breaks one of rules. Test files are not loaded.
func CheckLayering(dir string, patterns []string, rules []LayerRule) ([]Error, error) {
	if len(patterns) == 0 {
		patterns = []string{"./..."}
	}
	pkgs, err := loadPackages(dir, patterns...)
	if err != nil {
		return nil, fmt.Errorf("load packages: %w", err)
	}
	var loadErrs []string
	packages.Visit(pkgs, nil, func(pkg *packages.Package) {
		for _, e := range pkg.Errors {
			loadErrs = append(loadErrs, e.Error())
		}
	})
	if len(loadErrs) > 0 {
		return nil, fmt.Errorf("load packages: %s", strings.Join(loadErrs, "; "))
	}
	return layeringViolations(pkgs, rules), nil
}

func layeringViolations(pkgs []*packages.Package, rules []LayerRule) []Error {
	var violations []Error
	for _, pkg := range pkgs {
		file := pkg.PkgPath
		if len(pkg.GoFiles) > 0 {
			file = pkg.GoFiles[0]
		}
		imports := make([]string, 0, len(pkg.Imports))
		for path := range pkg.Imports {
			imports = append(imports, path)
		}
		sort.Strings(imports)
		for _, rule := range rules {
			if !rule.applies(pkg.PkgPath) {
				continue
			}
			for _, imp := range imports {
				if rule.forbids(imp) {
					violations = append(violations, Error{
						File:    file,
						Message: fmt.Sprintf("%s must not import %s: %s", pkg.PkgPath, imp, rule.Reason),
						Code:    fmt.Sprintf("import %q", imp),
					})
				}
			}
		}
	}
	sort.SliceStable(violations, func(i, j int) bool { return violations[i].File < violations[j].File })
	return violations
}
