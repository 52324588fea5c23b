package exist

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Diagnostic is one schema violation.
type Diagnostic struct {
	Line    int
	Message string
}

func (d Diagnostic) String() string {
	if d.Line > 0 {
		return fmt.Sprintf("Line %d: %s", d.Line, d.Message)
	}
	return d.Message
}

// Validator checks an XML file against a schema. ok is false with
// diagnostics when the file is invalid; err means validation could not run.
type Validator interface {
	Validate(ctx context.Context, path, schema string) (ok bool, diags []Diagnostic, err error)
}

// XMLLint validates against a RelaxNG schema with the xmllint binary.
type XMLLint struct {
	Binary string
	Runner Runner
}

// NewXMLLint returns a validator that shells out to xmllint.
func NewXMLLint() *XMLLint {
	return &XMLLint{Binary: "xmllint", Runner: execRunner{}}
}

// xmllint reports "<file>:<line>: <message>".
var diagLine = regexp.MustCompile(`^.*?:(\d+):\s*(.+)$`)

func (x *XMLLint) Validate(ctx context.Context, path, schema string) (bool, []Diagnostic, error) {
	if schema == "" {
		return false, nil, errors.New("validate: no RelaxNG schema configured")
	}
	runner := x.Runner
	if runner == nil {
		runner = execRunner{}
	}
	bin := x.Binary
	if bin == "" {
		bin = "xmllint"
	}

	_, stderr, err := runner.Run(ctx, bin, "--noout", "--relaxng", schema, path)
	if err == nil {
		return true, nil, nil
	}
	diags := parseDiagnostics(string(stderr))
	if len(diags) == 0 && !strings.Contains(string(stderr), "fails to validate") {
		return false, nil, fmt.Errorf("validate %s: %w: %s", path, err, strings.TrimSpace(string(stderr)))
	}
	if len(diags) == 0 {
		diags = []Diagnostic{{Message: "document fails to validate"}}
	}
	return false, diags, nil
}

func parseDiagnostics(out string) []Diagnostic {
	var diags []Diagnostic
	for _, line := range strings.Split(out, "\n") {
		m := diagLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		diags = append(diags, Diagnostic{Line: n, Message: m[2]})
	}
	return diags
}

// TaskList renders diagnostics as a markdown task list.
func TaskList(diags []Diagnostic) string {
	lines := make([]string, 0, len(diags))
	for _, d := range diags {
		lines = append(lines, "- [ ] "+d.String())
	}
	return strings.Join(lines, "\n")
}
