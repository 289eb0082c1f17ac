// Package transpile rewrites Earth Engine JavaScript into Python.
//
// The translation is a fixed, ordered list of text-to-text stages. There is
// no parser: every stage assumes the output shape that the stages before it
// guarantee, so the order of Stages is part of the contract. Stages that
// need helper code in the output return header fragments, which are
// collected in activation order and emitted in reverse order after the
// import block.
package transpile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/eejs2py/eejs2py/scanner"
)

// Options controls a translation run.
type Options struct {
	// RunFormatter pipes the result through Formatter.
	RunFormatter bool
	// Formatter formats the generated Python. Nil means Black.
	Formatter Formatter
	// Logger receives per-stage debug output. Nil discards it.
	Logger *slog.Logger
}

// Fragment is a named piece of header code. Fragments with the same name
// are emitted once.
type Fragment struct {
	Name string
	Text string
}

// Stage is one step of the translation pipeline.
type Stage struct {
	Name     string
	Requires string // shape the input must have
	Ensures  string // shape the output is guaranteed to have
	Run      func(r *Run, text string) (string, []Fragment, error)
}

// Run is the state of a single translation. Nothing in it outlives the run.
type Run struct {
	ctx     context.Context
	opts    Options
	log     *slog.Logger
	names   *Namer
	catalog *Catalog
	headers []Fragment
	seen    map[string]bool
}

func newRun(ctx context.Context, opts Options) *Run {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Run{
		ctx:     ctx,
		opts:    opts,
		log:     log,
		names:   &Namer{},
		catalog: NewCatalog(),
		seen:    make(map[string]bool),
	}
}

func (r *Run) addHeaders(frags []Fragment) {
	for _, f := range frags {
		if r.seen[f.Name] {
			continue
		}
		r.seen[f.Name] = true
		r.headers = append(r.headers, f)
	}
}

// Translate converts source into Python.
func Translate(src string, opts Options) (string, error) {
	return TranslateContext(context.Background(), src, opts)
}

// TranslateContext is Translate with a context, used to bound the optional
// external formatter.
func TranslateContext(ctx context.Context, src string, opts Options) (string, error) {
	r := newRun(ctx, opts)
	text := strings.ReplaceAll(src, "\r\n", "\n")
	for _, st := range Stages(opts) {
		out, frags, err := st.Run(r, text)
		if err != nil {
			return "", stageError(st.Name, err)
		}
		r.addHeaders(frags)
		r.log.Debug("stage done", "stage", st.Name, "lines", strings.Count(out, "\n")+1, "fragments", len(frags))
		text = out
	}
	return text, nil
}

// checkBraces rejects sources whose block structure cannot be recovered.
func checkBraces(s string) (string, error) {
	if _, err := scanner.SpanTree(s); err != nil {
		return "", asError(err, 1)
	}
	return s, nil
}

func stageError(name string, err error) error {
	var te *Error
	if !errors.As(err, &te) {
		te, _ = asError(err, 1).(*Error)
	}
	if te.Stage == "" {
		te.Stage = name
	}
	return te
}

// pure adapts a stage that needs neither run state nor headers.
func pure(fn func(string) (string, error)) func(*Run, string) (string, []Fragment, error) {
	return func(_ *Run, text string) (string, []Fragment, error) {
		out, err := fn(text)
		return out, nil, err
	}
}

// lines adapts an infallible line-slice rewrite.
func lines(fn func([]string) []string) func(*Run, string) (string, []Fragment, error) {
	return func(_ *Run, text string) (string, []Fragment, error) {
		return strings.Join(fn(strings.Split(text, "\n")), "\n"), nil, nil
	}
}

// Stages returns the pipeline in execution order.
func Stages(opts Options) []Stage {
	stages := []Stage{
		{
			Name:     "strip-documentation",
			Requires: "raw source",
			Ensures:  "no /** */ blocks and no trailing // comments",
			Run:      pure(func(s string) (string, error) { return stripDocumentation(s), nil }),
		},
		{
			Name:     "check-braces",
			Requires: "source without documentation blocks",
			Ensures:  "every { has a matching } outside strings and comments",
			Run:      pure(checkBraces),
		},
		{
			Name:     "strip-bare-declarations",
			Requires: "raw source",
			Ensures:  "no `var x;` statements",
			Run:      pure(func(s string) (string, error) { return stripBareDeclarations(s), nil }),
		},
		{
			Name:     "reflow",
			Requires: "source with only whole-line comments",
			Ensures:  "one statement per line, block braces end their header line, closing braces start a line, 4-space indentation per block",
			Run:      pure(func(s string) (string, error) { return reflow(s), nil }),
		},
		{
			Name:     "typeof",
			Requires: "reflowed source",
			Ensures:  "typeof operands are parenthesised",
			Run:      wrapTypeof,
		},
		{
			Name:     "builtins",
			Requires: "reflowed source, callbacks still inline",
			Ensures:  "catalog built-ins call __ee_extra_ polyfills",
			Run:      func(r *Run, s string) (string, []Fragment, error) { return r.catalog.Rewrite(s) },
		},
		{
			Name:     "normalize-functions",
			Requires: "declaration keywords present",
			Ensures:  "`var f = function (` is `function f(`",
			Run:      lines(normalizeFunctionDeclarations),
		},
		{
			Name:     "strip-declarations",
			Requires: "function declarations normalised",
			Ensures:  "no var/let/const at statement start, one binding per line",
			Run:      pure(stripDeclarations),
		},
		{
			Name:     "operators",
			Requires: "declarations stripped",
			Ensures:  "Python operators and literals",
			Run:      pure(func(s string) (string, error) { return renameOperators(s), nil }),
		},
		{
			Name:     "comments",
			Requires: "comments on their own lines",
			Ensures:  "every comment line starts with #",
			Run:      pure(func(s string) (string, error) { return convertComments(s), nil }),
		},
		{
			Name:     "join-statements",
			Requires: "Python comments",
			Ensures:  "no line ends in + or = and no line starts with .",
			Run:      lines(joinStatements),
		},
		{
			Name:     "functions",
			Requires: "joined statements, block braces end header lines",
			Ensures:  "no function keyword in code; def blocks indented",
			Run:      func(r *Run, s string) (string, []Fragment, error) { return convertFunctions(r, s) },
		},
		{
			Name:     "loops",
			Requires: "functions converted",
			Ensures:  "for/while/do headers are Python loop headers",
			Run:      pure(convertLoops),
		},
		{
			Name:     "conditionals",
			Requires: "loops converted",
			Ensures:  "if/else/try headers are Python headers; no switch statements",
			Run:      pure(convertConditionals),
		},
		{
			Name:     "inline-increments",
			Requires: "loop steps consumed",
			Ensures:  "no ++, --, += statements",
			Run:      lines(rewriteIncrements),
		},
		{
			Name:     "dictionary-keys",
			Requires: "all block braces removed from headers",
			Ensures:  "object literal keys are quoted",
			Run:      pure(func(s string) (string, error) { return quoteDictKeys(s), nil }),
		},
		{
			Name:     "member-access",
			Requires: "object literal keys quoted",
			Ensures:  "plain mappings use subscripts, Math maps onto math",
			Run:      pure(func(s string) (string, error) { return rewriteMemberAccess(s), nil }),
		},
		{
			Name:     "keyword-arguments",
			Requires: "object literal keys quoted",
			Ensures:  "sole object arguments are expanded with **",
			Run:      pure(rewriteKeywordArguments),
		},
		{
			Name:     "ternary",
			Requires: "dictionary colons inside braces",
			Ensures:  "no ?: expressions",
			Run:      pure(rewriteTernaries),
		},
		{
			Name:     "delete-braces",
			Requires: "all constructs converted",
			Ensures:  "no block braces, no statement semicolons, no empty suites",
			Run:      pure(func(s string) (string, error) { return deleteBraces(s), nil }),
		},
		{
			Name:     "exports-namespace",
			Requires: "Python body",
			Ensures:  "export namespaces are AttrDict instances",
			Run:      exportsNamespace,
		},
		{
			Name:     "header",
			Requires: "Python body and collected fragments",
			Ensures:  "imports and helpers precede the body",
			Run:      assembleHeader,
		},
	}
	if opts.RunFormatter {
		stages = append(stages, Stage{
			Name:     "format",
			Requires: "complete Python module",
			Ensures:  "formatter output",
			Run:      runFormatter,
		})
	}
	return stages
}
