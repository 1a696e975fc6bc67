// Package scanner discovers annotated function entry points in Go source trees.
//
// A function is an entry point when its doc comment carries a
// //azfunc:function directive. Source files are parsed with go/parser
// only; packages are neither type-checked nor built.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
	"golang.org/x/mod/modfile"

	"github.com/flavioaiello/azure-functions-gen/pkg/annotation"
	"github.com/flavioaiello/azure-functions-gen/pkg/loader"
)

// Errors.
var (
	ErrScan                = errors.New("failed to scan source root")
	ErrInvalidExclude      = errors.New("invalid exclude pattern")
	ErrUnexportedFunction  = errors.New("annotated function is not exported")
	ErrUnexportedReceiver  = errors.New("annotated method has an unexported receiver")
	ErrMisplacedAnnotation = errors.New("directives found on a declaration without a function directive")
)

// skipDirs are never descended into.
var skipDirs = map[string]bool{
	"vendor":   true,
	"testdata": true,
}

// Options configures a Scanner.
type Options struct {
	// Exclude holds doublestar patterns matched against slash-separated paths
	// relative to each root, e.g. "internal/legacy/**".
	Exclude []string
}

// Scanner walks source roots and extracts annotated functions.
// A Scanner is not safe for concurrent use.
type Scanner struct {
	logger  *zap.Logger
	exclude []string
	fset    *token.FileSet
	modules map[string]module
}

// module is the Go module owning a directory.
type module struct {
	path string
	dir  string
}

// New creates a scanner. Exclude patterns are validated up front.
func New(logger *zap.Logger, opts Options) (*Scanner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, pattern := range opts.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidExclude, pattern)
		}
	}
	return &Scanner{
		logger:  logger,
		exclude: opts.Exclude,
		fset:    token.NewFileSet(),
		modules: make(map[string]module),
	}, nil
}

// Scan returns every annotated function below the given roots. The result
// holds each entry point once; its order is unspecified.
func (s *Scanner) Scan(ctx context.Context, roots ...string) ([]*annotation.Method, error) {
	var methods []*annotation.Method
	seen := make(map[string]bool)

	for _, root := range roots {
		found, err := s.scanRoot(ctx, root)
		if err != nil {
			return nil, err
		}
		for _, m := range found {
			ep := m.EntryPoint()
			if seen[ep] {
				continue
			}
			seen[ep] = true
			methods = append(methods, m)
		}
	}

	s.logger.Debug("Scan complete",
		zap.Strings("roots", roots),
		zap.Int("functions", len(methods)),
	)
	return methods, nil
}

func (s *Scanner) scanRoot(ctx context.Context, root string) ([]*annotation.Method, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrScan, root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrScan, root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrScan, root)
	}

	var methods []*annotation.Method
	err = filepath.WalkDir(abs, s.visitor(ctx, abs, &methods))
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			return nil, fmt.Errorf("%w: %s: %v", ErrScan, root, err)
		}
		return nil, err
	}

	return methods, nil
}

// visitor returns the walk function for one root. Paths below the root that
// cannot be read are skipped; a failure on the root itself ends the walk.
func (s *Scanner) visitor(ctx context.Context, abs string, methods *[]*annotation.Method) fs.WalkDirFunc {
	return func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if p == abs {
				return walkErr
			}
			s.logger.Debug("Skipping unreadable path", zap.String("path", p), zap.Error(walkErr))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		// Check context cancellation.
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rel, err := filepath.Rel(abs, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if p != abs && (skipDirs[d.Name()] || isIgnoredName(d.Name()) || s.excluded(rel)) {
				return filepath.SkipDir
			}
			return nil
		}

		if !isSourceFile(d.Name()) || s.excluded(rel) {
			return nil
		}

		found, err := s.scanFile(p)
		if err != nil {
			return err
		}
		*methods = append(*methods, found...)
		return nil
	}
}

func (s *Scanner) excluded(rel string) bool {
	for _, pattern := range s.exclude {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

func isIgnoredName(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}

func isSourceFile(name string) bool {
	return strings.HasSuffix(name, ".go") &&
		!strings.HasSuffix(name, "_test.go") &&
		!isIgnoredName(name)
}

// scanFile extracts the annotated functions of one source file. Files that
// cannot be read or parsed are skipped.
func (s *Scanner) scanFile(filename string) ([]*annotation.Method, error) {
	src, err := loader.ReadFile(filename, loader.MaxSourceFileSizeBytes)
	if err != nil {
		s.logger.Debug("Skipping unreadable file", zap.String("file", filename), zap.Error(err))
		return nil, nil
	}

	file, err := parser.ParseFile(s.fset, filename, src, parser.ParseComments|parser.SkipObjectResolution)
	if err != nil {
		s.logger.Debug("Skipping unparsable file", zap.String("file", filename), zap.Error(err))
		return nil, nil
	}

	pkgPath := s.importPath(filepath.Dir(filename), file.Name.Name)

	var methods []*annotation.Method
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Doc == nil {
			continue
		}

		m, err := s.buildMethod(fn, pkgPath, filename)
		if err != nil {
			pos := s.fset.Position(fn.Pos())
			return nil, fmt.Errorf("%s:%d: %s: %w", filename, pos.Line, fn.Name.Name, err)
		}
		if m != nil {
			methods = append(methods, m)
		}
	}
	return methods, nil
}

// buildMethod returns nil when the declaration carries no directives.
func (s *Scanner) buildMethod(fn *ast.FuncDecl, pkgPath, filename string) (*annotation.Method, error) {
	m := &annotation.Method{
		Package:     pkgPath,
		Name:        fn.Name.Name,
		Receiver:    receiverName(fn),
		ReturnsVoid: returnsVoid(fn.Type),
		File:        filename,
	}

	for _, field := range fn.Type.Params.List {
		typ := types.ExprString(field.Type)
		if len(field.Names) == 0 {
			m.Parameters = append(m.Parameters, annotation.Parameter{Type: typ})
			continue
		}
		for _, n := range field.Names {
			m.Parameters = append(m.Parameters, annotation.Parameter{Name: n.Name, Type: typ})
		}
	}

	directives := 0
	for _, c := range fn.Doc.List {
		if annotation.IsMangledDirective(c.Text) {
			return nil, fmt.Errorf("%w: %q", annotation.ErrMangledDirective, c.Text)
		}
		if !annotation.IsDirective(c.Text) {
			continue
		}
		directives++

		d, err := annotation.ParseDirective(c.Text)
		if err != nil {
			return nil, err
		}
		if d.Param != "" {
			if err := attach(m, d.Param, d.Annotation); err != nil {
				return nil, err
			}
			continue
		}
		m.Annotations = append(m.Annotations, d.Annotation)
	}

	if directives == 0 {
		return nil, nil
	}
	if _, ok := m.FunctionName(); !ok {
		return nil, ErrMisplacedAnnotation
	}
	if !ast.IsExported(m.Name) {
		return nil, ErrUnexportedFunction
	}
	if m.Receiver != "" && !ast.IsExported(m.Receiver) {
		return nil, fmt.Errorf("%w: %s", ErrUnexportedReceiver, m.Receiver)
	}
	return m, nil
}

func attach(m *annotation.Method, param string, a annotation.Annotation) error {
	for i := range m.Parameters {
		if m.Parameters[i].Name == param {
			m.Parameters[i].Annotations = append(m.Parameters[i].Annotations, a)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", annotation.ErrUnknownParameter, param)
}

func receiverName(fn *ast.FuncDecl) string {
	if fn.Recv == nil || len(fn.Recv.List) == 0 {
		return ""
	}
	expr := fn.Recv.List[0].Type
	for {
		switch t := expr.(type) {
		case *ast.StarExpr:
			expr = t.X
		case *ast.ParenExpr:
			expr = t.X
		case *ast.IndexExpr:
			expr = t.X
		case *ast.IndexListExpr:
			expr = t.X
		case *ast.Ident:
			return t.Name
		default:
			return types.ExprString(expr)
		}
	}
}

// returnsVoid reports whether the function declares no results or a single error.
func returnsVoid(ft *ast.FuncType) bool {
	if ft.Results == nil || len(ft.Results.List) == 0 {
		return true
	}
	if len(ft.Results.List) != 1 || len(ft.Results.List[0].Names) > 1 {
		return false
	}
	ident, ok := ft.Results.List[0].Type.(*ast.Ident)
	return ok && ident.Name == "error"
}

// importPath resolves the import path of the package in dir from the nearest
// go.mod. Without a module the package name is used.
func (s *Scanner) importPath(dir, pkgName string) string {
	mod, ok := s.findModule(dir)
	if !ok {
		return pkgName
	}
	rel, err := filepath.Rel(mod.dir, dir)
	if err != nil || rel == "." {
		return mod.path
	}
	return path.Join(mod.path, filepath.ToSlash(rel))
}

func (s *Scanner) findModule(dir string) (module, bool) {
	if mod, ok := s.modules[dir]; ok {
		return mod, mod.path != ""
	}

	var mod module
	data, err := loader.ReadFile(filepath.Join(dir, "go.mod"), loader.MaxProjectFileSizeBytes)
	switch {
	case err == nil:
		if p := modfile.ModulePath(data); p != "" {
			mod = module{path: p, dir: dir}
		}
	case errors.Is(err, loader.ErrFileNotFound):
		if parent := filepath.Dir(dir); parent != dir {
			mod, _ = s.findModule(parent)
		}
	default:
		s.logger.Debug("Ignoring unreadable go.mod", zap.String("dir", dir), zap.Error(err))
	}

	s.modules[dir] = mod
	return mod, mod.path != ""
}
