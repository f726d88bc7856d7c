// Command sqllint checks that every inline query constant starts with a
// unique "--sql <uuid>" line, so log lines and database statistics can be
// traced back to the constant that issued them.
package main

import (
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	looksLikeSQL = regexp.MustCompile(`(?i)\b(select|insert|update|delete|with)\b`)
	markerLine   = regexp.MustCompile(`^--sql [0-9a-f]{8}(-[0-9a-f]{4}){3}-[0-9a-f]{12}$`)
)

type finding struct {
	file, constant string
	line           int
	problem        string
}

func (f finding) String() string {
	return fmt.Sprintf("%s:%d %s: %s", f.file, f.line, f.constant, f.problem)
}

// auditor remembers which constant claimed each marker across files.
type auditor struct {
	owners   map[string]string
	findings []finding
}

func newAuditor() *auditor {
	return &auditor{owners: map[string]string{}}
}

func main() {
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "usage: sqllint [dir|file.go ...] (default internal/sqlinline)")
	}
	flag.Parse()
	roots := flag.Args()
	if len(roots) == 0 {
		roots = []string{"internal/sqlinline"}
	}

	files, err := sourceFiles(roots)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sqllint:", err)
		os.Exit(2)
	}
	a := newAuditor()
	for _, path := range files {
		if err := a.check(path); err != nil {
			fmt.Fprintln(os.Stderr, "sqllint:", err)
			os.Exit(2)
		}
	}
	if len(a.findings) == 0 {
		return
	}
	for _, f := range a.findings {
		fmt.Fprintln(os.Stderr, f)
	}
	fmt.Fprintf(os.Stderr, "sqllint: %d unmarked or reused query markers\n", len(a.findings))
	os.Exit(1)
}

// sourceFiles expands roots into non-test Go files, skipping hidden and
// vendored directories.
func sourceFiles(roots []string) ([]string, error) {
	var out []string
	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			switch {
			case err != nil:
				return err
			case d.IsDir() && path != root && (strings.HasPrefix(d.Name(), ".") || d.Name() == "vendor"):
				return filepath.SkipDir
			case !d.IsDir() && strings.HasSuffix(path, ".go") && !strings.HasSuffix(path, "_test.go"):
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (a *auditor) check(path string) error {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, 0)
	if err != nil {
		return err
	}
	for _, decl := range file.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || (gen.Tok != token.CONST && gen.Tok != token.VAR) {
			continue
		}
		for _, spec := range gen.Specs {
			vs := spec.(*ast.ValueSpec)
			for i, value := range vs.Values {
				text, ok := stringLiteral(value)
				if !ok || !looksLikeSQL.MatchString(text) {
					continue
				}
				name := "_"
				if i < len(vs.Names) {
					name = vs.Names[i].Name
				}
				a.record(path, fset.Position(value.Pos()).Line, name, text)
			}
		}
	}
	return nil
}

func (a *auditor) record(path string, line int, name, text string) {
	report := func(problem string) {
		a.findings = append(a.findings, finding{file: path, line: line, constant: name, problem: problem})
	}
	head, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	head = strings.TrimSpace(head)
	if !markerLine.MatchString(head) {
		report("query does not start with a --sql <uuid> line")
		return
	}
	if owner, taken := a.owners[head]; taken {
		report("marker reused, first claimed by " + owner)
		return
	}
	a.owners[head] = name
}

func stringLiteral(e ast.Expr) (string, bool) {
	lit, ok := e.(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		return "", false
	}
	s, err := strconv.Unquote(lit.Value)
	if err != nil {
		return "", false
	}
	return s, true
}
