// Package annotation provides the metadata model read from function declarations.
//
// Go has no runtime annotations, so functions are described with comment
// directives in their doc comment:
//
//	//azfunc:function HttpTriggerFunction
//	//azfunc:storage connStr
//	//azfunc:disabled
//	//azfunc:param req HttpTrigger {authLevel: anonymous, methods: [GET, POST]}
//	//azfunc:binding QueueOutput {queueName: out}
//
// Directive keywords are lowercase so gofmt keeps the lines as directives.
// A binding names an annotation, an optional positional value and an
// optional YAML flow mapping of attributes.
package annotation

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DirectivePrefix starts every directive comment line.
const DirectivePrefix = "//azfunc:"

// Directive keywords.
const (
	FunctionDirective = "function"
	StorageDirective  = "storage"
	DisabledDirective = "disabled"
	BindingDirective  = "binding"
	ParamDirective    = "param"
)

// Marker annotations understood outside the binding vocabulary.
const (
	FunctionName   = "FunctionName"
	StorageAccount = "StorageAccount"
	Disabled       = "Disabled"
)

// markers maps marker directive keywords to their annotations.
var markers = map[string]string{
	FunctionDirective: FunctionName,
	StorageDirective:  StorageAccount,
	DisabledDirective: Disabled,
}

// mangledPrefix matches a directive that gained a space after "//", which
// gofmt does to directives whose keyword does not start lowercase.
var mangledPrefix = regexp.MustCompile(`^//\s+azfunc:`)

// Errors.
var (
	ErrMalformedAnnotation = errors.New("malformed annotation")
	ErrUnknownParameter    = errors.New("annotation targets unknown parameter")
	ErrUnknownDirective    = errors.New("unknown directive")
	ErrMangledDirective    = errors.New("directive must start with //azfunc: and no space")
)

// Directive is one parsed directive line.
type Directive struct {
	// Param is the target parameter of a param directive, empty otherwise.
	Param string
	// Annotation is the marker or binding the directive declares.
	Annotation Annotation
}

// IsDirective reports whether a comment line is a well-formed directive.
func IsDirective(comment string) bool {
	return strings.HasPrefix(comment, DirectivePrefix)
}

// IsMangledDirective reports whether a comment line looks like a directive
// with whitespace after "//". Such lines are not read as directives.
func IsMangledDirective(comment string) bool {
	return mangledPrefix.MatchString(comment)
}

// ParseDirective parses a comment line starting with DirectivePrefix.
func ParseDirective(comment string) (Directive, error) {
	text, ok := strings.CutPrefix(comment, DirectivePrefix)
	if !ok {
		return Directive{}, fmt.Errorf("%w: %q", ErrMalformedAnnotation, comment)
	}
	keyword, rest := splitToken(strings.TrimSpace(text))

	if name, ok := markers[keyword]; ok {
		a, err := Parse(strings.TrimSpace(name + " " + rest))
		if err != nil {
			return Directive{}, err
		}
		return Directive{Annotation: a}, nil
	}

	switch keyword {
	case BindingDirective:
		if rest == "" {
			return Directive{}, fmt.Errorf("%w: binding directive needs an annotation", ErrMalformedAnnotation)
		}
		a, err := Parse(rest)
		if err != nil {
			return Directive{}, err
		}
		return Directive{Annotation: a}, nil
	case ParamDirective:
		param, a, err := ParseParam(rest)
		if err != nil {
			return Directive{}, err
		}
		return Directive{Param: param, Annotation: a}, nil
	default:
		return Directive{}, fmt.Errorf("%w: %q", ErrUnknownDirective, keyword)
	}
}

// Annotation is one parsed directive.
type Annotation struct {
	// Name is the annotation type, e.g. "HttpTrigger".
	Name string
	// Value is the optional positional value ("HttpTriggerFunction" in
	// //azfunc:function HttpTriggerFunction).
	Value string
	// Attributes are the named attributes, copied verbatim from the directive.
	Attributes map[string]any
}

// Attribute returns a string attribute, or "" when absent or not a string.
func (a Annotation) Attribute(key string) string {
	v, ok := a.Attributes[key].(string)
	if !ok {
		return ""
	}
	return v
}

// HasAttribute reports whether the attribute was declared.
func (a Annotation) HasAttribute(key string) bool {
	_, ok := a.Attributes[key]
	return ok
}

// Parameter is one declared parameter of a function.
type Parameter struct {
	Name        string
	Type        string
	Annotations []Annotation
}

// Method is a function declaration with its directive metadata.
type Method struct {
	// Package is the import path of the declaring package.
	Package string
	// Receiver is the receiver type name for methods, empty for plain functions.
	Receiver string
	// Name is the declared function name.
	Name string
	// Parameters in declaration order.
	Parameters []Parameter
	// Annotations declared at method level, in source order.
	Annotations []Annotation
	// ReturnsVoid is true when the function declares no results or only an error.
	ReturnsVoid bool
	// File is the source file, for diagnostics.
	File string
}

// DeclaringType returns the qualified name of the declaring unit.
func (m *Method) DeclaringType() string {
	if m.Receiver == "" {
		return m.Package
	}
	return m.Package + "." + m.Receiver
}

// EntryPoint returns "<declaring type>.<method>".
func (m *Method) EntryPoint() string {
	return m.DeclaringType() + "." + m.Name
}

// Find returns the first method-level annotation with the given name.
func (m *Method) Find(name string) (Annotation, bool) {
	for _, a := range m.Annotations {
		if a.Name == name {
			return a, true
		}
	}
	return Annotation{}, false
}

// FunctionName returns the function marker value, and whether the marker is present.
func (m *Method) FunctionName() (string, bool) {
	a, ok := m.Find(FunctionName)
	if !ok {
		return "", false
	}
	if a.Value != "" {
		return a.Value, true
	}
	return a.Attribute("value"), true
}

// StorageConnection returns the StorageAccount marker value, or "".
func (m *Method) StorageConnection() string {
	a, ok := m.Find(StorageAccount)
	if !ok {
		return ""
	}
	if a.Value != "" {
		return a.Value
	}
	return a.Attribute("value")
}

// IsDisabled reports whether the method carries the Disabled marker.
func (m *Method) IsDisabled() bool {
	_, ok := m.Find(Disabled)
	return ok
}

// Parse parses the text following the directive prefix:
// "<Annotation> [value] [{attributes}]".
func Parse(text string) (Annotation, error) {
	text = strings.TrimSpace(text)
	name, rest := splitToken(text)
	if name == "" {
		return Annotation{}, fmt.Errorf("%w: empty directive", ErrMalformedAnnotation)
	}

	a := Annotation{Name: name}

	if rest != "" && rest[0] != '{' {
		value, remaining, err := parseValue(rest)
		if err != nil {
			return Annotation{}, fmt.Errorf("%w: %s: %v", ErrMalformedAnnotation, name, err)
		}
		a.Value = value
		rest = remaining
	}

	if rest != "" {
		attrs, err := parseAttributes(rest)
		if err != nil {
			return Annotation{}, fmt.Errorf("%w: %s: %v", ErrMalformedAnnotation, name, err)
		}
		a.Attributes = attrs
	}

	return a, nil
}

// ParseParam parses the text of a param directive: "<parameter> <Annotation> ...".
func ParseParam(text string) (string, Annotation, error) {
	param, rest := splitToken(strings.TrimSpace(text))
	if param == "" || rest == "" {
		return "", Annotation{}, fmt.Errorf("%w: param directive needs a parameter and an annotation", ErrMalformedAnnotation)
	}
	a, err := Parse(rest)
	if err != nil {
		return "", Annotation{}, err
	}
	return param, a, nil
}

// MustParse is like Parse but panics on error. Intended for tests and tables.
func MustParse(text string) Annotation {
	a, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return a
}

func splitToken(s string) (string, string) {
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i+1:])
}

func parseValue(s string) (string, string, error) {
	if s[0] == '"' || s[0] == '`' {
		quoted, err := strconv.QuotedPrefix(s)
		if err != nil {
			return "", "", err
		}
		value, err := strconv.Unquote(quoted)
		if err != nil {
			return "", "", err
		}
		return value, strings.TrimSpace(s[len(quoted):]), nil
	}
	value, rest := splitToken(s)
	return value, rest, nil
}

func parseAttributes(s string) (map[string]any, error) {
	if s[0] != '{' {
		return nil, fmt.Errorf("attributes must be a {key: value} mapping, got %q", s)
	}

	var attrs map[string]any
	if err := yaml.Unmarshal([]byte(s), &attrs); err != nil {
		return nil, err
	}
	if attrs == nil {
		attrs = map[string]any{}
	}
	return attrs, nil
}
