// Package validation enforces structural rules on the chemcore source tree:
// import layering between packages and fixed-point volume arithmetic.
package validation

import (
	"bufio"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Error represents a rule violation found in code
type Error struct {
	File    string
	Line    int
	Message string
	Code    string
}

func (e Error) String() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
	}
	return e.File + ": " + e.Message
}

// floatPatterns flag text that converts volumes through floating point.
var floatPatterns = map[*regexp.Regexp]string{
	regexp.MustCompile(`strconv\.ParseFloat\(`):    "Parse volumes with domain.ParseQuantity instead of ParseFloat",
	regexp.MustCompile(`\.InexactFloat64\(\)`):     "Keep decimal values exact; convert through Quantity",
	regexp.MustCompile(`math\.(Round|Floor|Ceil)`): "Round volumes with Quantity helpers, not float math",
}

// ValidateFixedPointDirectory reports floating point usage in the non-test Go
// files under dir. Files whose base name matches one of skip (filepath.Match
// globs) are ignored.
func ValidateFixedPointDirectory(dir string, skip ...string) []Error {
	var errs []Error
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		if skipped(filepath.Base(path), skip) {
			return nil
		}
		errs = append(errs, validateFixedPointText(path)...)
		errs = append(errs, validateFixedPointAST(path)...)
		return nil
	})
	if err != nil {
		errs = append(errs, Error{File: dir, Message: "Failed to walk directory: " + err.Error()})
	}
	return errs
}

func skipped(name string, globs []string) bool {
	for _, glob := range globs {
		if ok, _ := filepath.Match(glob, name); ok {
			return true
		}
	}
	return false
}

func validateFixedPointText(path string) []Error {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return []Error{{File: path, Message: "Failed to open file: " + err.Error()}}
	}
	defer func() { _ = file.Close() }()

	var errs []Error
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" || isCommentLine(line) {
			continue
		}
		for pattern, message := range floatPatterns {
			if pattern.MatchString(line) {
				errs = append(errs, Error{File: path, Line: lineNum, Message: message, Code: strings.TrimSpace(line)})
			}
		}
	}
	return errs
}

// validateFixedPointAST flags float32/float64 identifiers, which covers
// declarations, conversions and composite types alike.
func validateFixedPointAST(path string) []Error {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, 0)
	if err != nil {
		return nil
	}
	var errs []Error
	ast.Inspect(file, func(n ast.Node) bool {
		ident, ok := n.(*ast.Ident)
		if !ok || (ident.Name != "float32" && ident.Name != "float64") {
			return true
		}
		pos := fset.Position(ident.Pos())
		errs = append(errs, Error{
			File:    pos.Filename,
			Line:    pos.Line,
			Message: "Volumes are fixed point; use domain.Quantity instead of " + ident.Name,
			Code:    ident.Name,
		})
		return true
	})
	return errs
}

func isCommentLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "/*")
}
