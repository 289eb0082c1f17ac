package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"

	"github.com/eejs2py/eejs2py/exports"
	"github.com/eejs2py/eejs2py/remote"
)

// printer writes status lines as a right-aligned label followed by a message.
type printer struct {
	w    io.Writer
	okC  *color.Color
	infC *color.Color
	wrnC *color.Color
	errC *color.Color
}

func newPrinter(w io.Writer, enabled bool) *printer {
	p := &printer{
		w:    w,
		okC:  color.New(color.FgGreen, color.Bold),
		infC: color.New(color.FgCyan, color.Bold),
		wrnC: color.New(color.FgYellow, color.Bold),
		errC: color.New(color.FgRed, color.Bold),
	}
	for _, c := range []*color.Color{p.okC, p.infC, p.wrnC, p.errC} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// colorEnabled reports whether w is a terminal and color was not disabled
// by flag or NO_COLOR.
func colorEnabled(w io.Writer, noColor bool) bool {
	if noColor || os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (p *printer) line(c *color.Color, label, msg string) {
	c.Fprintf(p.w, "%12s", label)
	fmt.Fprintf(p.w, " %s\n", msg)
}

func (p *printer) ok(label, msg string)   { p.line(p.okC, label, msg) }
func (p *printer) info(label, msg string) { p.line(p.infC, label, msg) }
func (p *printer) warn(label, msg string) { p.line(p.wrnC, label, msg) }
func (p *printer) fail(label, msg string) { p.line(p.errC, label, msg) }

func renderExports(w io.Writer, ex *exports.Exports) {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"Name", "Kind", "Value", "Line"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	for _, name := range ex.Names() {
		b, _ := ex.Get(name)
		table.Append([]string{name, b.Kind.String(), summarize(b), fmt.Sprintf("%d", b.Line)})
	}
	table.SetFooter([]string{ex.Module, "", fmt.Sprintf("%d exports", ex.Len()), ""})
	table.Render()
	io.Copy(w, &buf)
}

// summarize shortens a binding's value to one table cell.
func summarize(b exports.Binding) string {
	var s string
	switch b.Kind {
	case exports.Literal:
		s = fmt.Sprintf("%v", b.Value)
		if str, ok := b.Value.(string); ok {
			s = fmt.Sprintf("%q", str)
		}
	case exports.Function:
		s = fmt.Sprintf("%v()", b.Value)
	default:
		s = b.Source
	}
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 48 {
		s = s[:45] + "..."
	}
	return s
}

func renderModules(w io.Writer, metas []remote.Meta) {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"Module", "Size", "SHA256", "Fetched", "Requires"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	for _, m := range metas {
		sum := m.SHA256
		if len(sum) > 12 {
			sum = sum[:12]
		}
		table.Append([]string{
			m.ID,
			fmt.Sprintf("%d", m.Size),
			sum,
			m.Fetched.Local().Format("2006-01-02 15:04"),
			fmt.Sprintf("%d", len(m.Requires)),
		})
	}
	table.Render()
	io.Copy(w, &buf)
}
