package scanner

import (
	"context"
	"go/format"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/flavioaiello/azure-functions-gen/pkg/annotation"
)

const testModule = "example.com/app"

const handlersSource = `package handlers

import "net/http"

// Hello greets the caller.
//
//azfunc:function HttpTriggerFunction
//azfunc:param req HttpTrigger {authLevel: anonymous, methods: [GET]}
func Hello(req *http.Request) (string, error) {
	return "hello", nil
}

type Jobs struct{}

//azfunc:function Nightly
//azfunc:storage connStr
//azfunc:param timer TimerTrigger {schedule: "0 0 2 * * *"}
//azfunc:param report BlobOutput {path: 'reports/{rand-guid}'}
func (j *Jobs) Run(timer string, report *[]byte) error {
	return nil
}

// helper is not annotated.
func helper() {}
`

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return root
}

func newScanner(t *testing.T, exclude ...string) *Scanner {
	t.Helper()
	s, err := New(zap.NewNop(), Options{Exclude: exclude})
	require.NoError(t, err)
	return s
}

func entryPoints(methods []*annotation.Method) []string {
	var eps []string
	for _, m := range methods {
		eps = append(eps, m.EntryPoint())
	}
	sort.Strings(eps)
	return eps
}

func TestScan(t *testing.T) {
	root := writeTree(t, map[string]string{
		"go.mod":               "module " + testModule + "\n\ngo 1.24\n",
		"handlers/handlers.go": handlersSource,
	})

	methods, err := newScanner(t).Scan(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, methods, 2)

	sort.Slice(methods, func(i, j int) bool { return methods[i].Name < methods[j].Name })

	hello := methods[0]
	assert.Equal(t, testModule+"/handlers.Hello", hello.EntryPoint())
	assert.False(t, hello.ReturnsVoid)
	name, ok := hello.FunctionName()
	require.True(t, ok)
	assert.Equal(t, "HttpTriggerFunction", name)
	require.Len(t, hello.Parameters, 1)
	assert.Equal(t, "req", hello.Parameters[0].Name)
	assert.Equal(t, "*http.Request", hello.Parameters[0].Type)
	require.Len(t, hello.Parameters[0].Annotations, 1)
	assert.Equal(t, "HttpTrigger", hello.Parameters[0].Annotations[0].Name)
	assert.Equal(t, "anonymous", hello.Parameters[0].Annotations[0].Attribute("authLevel"))

	run := methods[1]
	assert.Equal(t, testModule+"/handlers.Jobs.Run", run.EntryPoint())
	assert.Equal(t, "Jobs", run.Receiver)
	assert.True(t, run.ReturnsVoid)
	assert.Equal(t, "connStr", run.StorageConnection())
	require.Len(t, run.Parameters, 2)
	assert.Equal(t, "reports/{rand-guid}", run.Parameters[1].Annotations[0].Attribute("path"))
}

func TestScanFormattedSource(t *testing.T) {
	source := handlersSource + `
//azfunc:function Bare
//azfunc:binding QueueOutput {queueName: out}
func Bare() string {
	return ""
}
`
	formatted, err := format.Source([]byte(source))
	require.NoError(t, err)
	assert.NotContains(t, string(formatted), "// azfunc:")

	root := writeTree(t, map[string]string{
		"go.mod":               "module " + testModule + "\n",
		"handlers/handlers.go": string(formatted),
	})

	methods, err := newScanner(t).Scan(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{
		testModule + "/handlers.Bare",
		testModule + "/handlers.Hello",
		testModule + "/handlers.Jobs.Run",
	}, entryPoints(methods))

	for _, m := range methods {
		if m.Name != "Bare" {
			continue
		}
		queue, ok := m.Find("QueueOutput")
		require.True(t, ok)
		assert.Equal(t, "out", queue.Attribute("queueName"))
	}
}

func TestScanRejectsMangledDirectives(t *testing.T) {
	source := `package app

//azfunc:FunctionName Bare
//azfunc:TimerTrigger {schedule: "0 0 * * * *"}
func Bare() string { return "" }
`
	formatted, err := format.Source([]byte(source))
	require.NoError(t, err)
	require.Contains(t, string(formatted), "// azfunc:FunctionName Bare")

	root := writeTree(t, map[string]string{"app.go": string(formatted)})

	_, err = newScanner(t).Scan(context.Background(), root)
	require.Error(t, err)
	assert.ErrorIs(t, err, annotation.ErrMangledDirective)
}

func TestScanSkipsUnreadableDirectories(t *testing.T) {
	root := writeTree(t, map[string]string{"sub/handlers.go": handlersSource})
	sub := filepath.Join(root, "sub")
	info, err := os.Stat(sub)
	require.NoError(t, err)

	var methods []*annotation.Method
	visit := newScanner(t).visitor(context.Background(), root, &methods)
	readErr := &fs.PathError{Op: "readdirent", Path: sub, Err: fs.ErrPermission}

	assert.Equal(t, filepath.SkipDir, visit(sub, fs.FileInfoToDirEntry(info), readErr))
	assert.NoError(t, visit(filepath.Join(sub, "handlers.go"), nil, readErr))
	assert.ErrorIs(t, visit(root, nil, readErr), fs.ErrPermission)
	assert.Empty(t, methods)
}

func TestScanWithoutModule(t *testing.T) {
	root := writeTree(t, map[string]string{
		"handlers.go": handlersSource,
	})

	methods, err := newScanner(t).Scan(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"handlers.Hello", "handlers.Jobs.Run"}, entryPoints(methods))
}

func TestScanSkipsIgnoredPaths(t *testing.T) {
	root := writeTree(t, map[string]string{
		"go.mod":                    "module " + testModule + "\n",
		"handlers/handlers.go":      handlersSource,
		"vendor/x/handlers.go":      handlersSource,
		"testdata/handlers.go":      handlersSource,
		".hidden/handlers.go":       handlersSource,
		"_old/handlers.go":          handlersSource,
		"legacy/handlers.go":        handlersSource,
		"handlers/handlers_test.go": handlersSource,
	})

	methods, err := newScanner(t, "legacy/**").Scan(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{
		testModule + "/handlers.Hello",
		testModule + "/handlers.Jobs.Run",
	}, entryPoints(methods))
}

func TestScanSkipsUnparsableFiles(t *testing.T) {
	root := writeTree(t, map[string]string{
		"go.mod":      "module " + testModule + "\n",
		"broken.go":   "package app\n\nfunc {",
		"handlers.go": handlersSource,
	})

	methods, err := newScanner(t).Scan(context.Background(), root)
	require.NoError(t, err)
	assert.Len(t, methods, 2)
}

func TestScanDeduplicatesRoots(t *testing.T) {
	root := writeTree(t, map[string]string{
		"go.mod":               "module " + testModule + "\n",
		"handlers/handlers.go": handlersSource,
	})

	methods, err := newScanner(t).Scan(context.Background(), root, filepath.Join(root, "handlers"))
	require.NoError(t, err)
	assert.Len(t, methods, 2)
}

func TestScanMissingRoot(t *testing.T) {
	_, err := newScanner(t).Scan(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrScan)
}

func TestScanCancelled(t *testing.T) {
	root := writeTree(t, map[string]string{"handlers.go": handlersSource})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newScanner(t).Scan(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScanRejectsBadDeclarations(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		wantErr error
	}{
		{
			name: "unknown parameter",
			source: `package app
//azfunc:function Fn
//azfunc:param missing HttpTrigger
func Fn(req string) {}
`,
			wantErr: annotation.ErrUnknownParameter,
		},
		{
			name: "malformed attributes",
			source: `package app
//azfunc:function Fn
//azfunc:param req HttpTrigger {authLevel: [
func Fn(req string) {}
`,
			wantErr: annotation.ErrMalformedAnnotation,
		},
		{
			name: "unexported function",
			source: `package app
//azfunc:function Fn
func fn() {}
`,
			wantErr: ErrUnexportedFunction,
		},
		{
			name: "unexported receiver",
			source: `package app
type jobs struct{}
//azfunc:function Fn
func (jobs) Run() {}
`,
			wantErr: ErrUnexportedReceiver,
		},
		{
			name: "unknown directive",
			source: `package app
//azfunc:function Fn
//azfunc:HttpOutput
func Fn() string { return "" }
`,
			wantErr: annotation.ErrUnknownDirective,
		},
		{
			name: "directive with a space",
			source: `package app
// azfunc:function Fn
func Fn() {}
`,
			wantErr: annotation.ErrMangledDirective,
		},
		{
			name: "directives without function marker",
			source: `package app
//azfunc:param req HttpTrigger
func Fn(req string) {}
`,
			wantErr: ErrMisplacedAnnotation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := writeTree(t, map[string]string{"app.go": tt.source})

			_, err := newScanner(t).Scan(context.Background(), root)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestInvalidExcludePattern(t *testing.T) {
	_, err := New(nil, Options{Exclude: []string{"[unclosed"}})
	assert.ErrorIs(t, err, ErrInvalidExclude)
}

func TestReturnsVoid(t *testing.T) {
	tests := []struct {
		signature string
		want      bool
	}{
		{"func F()", true},
		{"func F() error", true},
		{"func F() (err error)", true},
		{"func F() string", false},
		{"func F() (string, error)", false},
		{"func F() (a, b error)", false},
	}

	for _, tt := range tests {
		t.Run(tt.signature, func(t *testing.T) {
			root := writeTree(t, map[string]string{
				"app.go": "package app\n//azfunc:function Fn\n" + tt.signature + " { panic(0) }\n",
			})

			methods, err := newScanner(t).Scan(context.Background(), root)
			require.NoError(t, err)
			require.Len(t, methods, 1)
			assert.Equal(t, tt.want, methods[0].ReturnsVoid)
		})
	}
}
