package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
)

// Output formats.
const (
	OutputText = "text"
	OutputYAML = "yaml"
)

var (
	okMark   = color.New(color.FgGreen).SprintFunc()
	warnMark = color.New(color.FgYellow).SprintFunc()
	dim      = color.New(color.Faint).SprintFunc()
)

type printer struct {
	w      io.Writer
	format string
}

func newPrinter(w io.Writer, format string) (*printer, error) {
	switch format {
	case OutputText, OutputYAML:
		return &printer{w: w, format: format}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want %s or %s)", format, OutputText, OutputYAML)
	}
}

// done reports a completed action.
func (p *printer) done(connection, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if p.format == OutputYAML {
		return p.yaml(map[string]string{"connection": connection, "status": "ok", "message": msg})
	}
	_, err := fmt.Fprintf(p.w, "%s %s %s\n", okMark("✓"), msg, dim("["+connection+"]"))
	return err
}

// list prints names one per line, or as a YAML document keyed by key.
func (p *printer) list(connection, key string, items []string) error {
	if items == nil {
		items = []string{}
	}
	if p.format == OutputYAML {
		return p.yaml(map[string]any{"connection": connection, key: items})
	}
	if len(items) == 0 {
		_, err := fmt.Fprintf(p.w, "%s no %s %s\n", warnMark("-"), key, dim("["+connection+"]"))
		return err
	}
	for _, item := range items {
		if _, err := fmt.Fprintln(p.w, item); err != nil {
			return err
		}
	}
	return nil
}

func (p *printer) yaml(v any) error {
	enc := yaml.NewEncoder(p.w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
