package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"prism-board/board"
)

// Form field names, shared with the command line flags that answer them.
const (
	fieldTitle       = "title"
	fieldDescription = "description"
	fieldDeadline    = "deadline"
	fieldReason      = "reason"
)

// formPreset holds answers given on the command line, keyed by field name.
// A present key is used as is, even when its value is blank.
type formPreset map[string]string

// terminalDialog asks questions on a terminal. Preset fields are not asked.
// Prompts go to out, which should not be the stream command results are
// written to.
type terminalDialog struct {
	in     *bufio.Reader
	out    io.Writer
	preset formPreset
	yes    bool
}

func newTerminalDialog(in io.Reader, out io.Writer, preset formPreset, yes bool) *terminalDialog {
	return &terminalDialog{in: bufio.NewReader(in), out: out, preset: preset, yes: yes}
}

func (d *terminalDialog) Confirm(prompt string) bool {
	if d.yes {
		return true
	}
	fmt.Fprintf(d.out, "%s [y/N]: ", prompt)
	line, err := d.readLine()
	if err != nil {
		fmt.Fprintln(d.out)
		return false
	}
	switch strings.ToLower(line) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// PromptForm asks for every field without a preset. An empty answer keeps
// the current value. At end of input the remaining fields keep their values,
// and the form is cancelled if a required field is left empty.
func (d *terminalDialog) PromptForm(kind board.FormKind, current board.FormValues) (board.FormValues, bool) {
	values := current
	var fields []formField
	switch kind {
	case board.FormReturn:
		fields = []formField{{fieldReason, "Reason", &values.Reason, false}}
	default:
		fields = []formField{
			{fieldTitle, "Title", &values.Title, false},
			{fieldDescription, "Description", &values.Description, true},
			{fieldDeadline, "Deadline (YYYY-MM-DD)", &values.Deadline, false},
		}
	}
	for _, f := range fields {
		if v, ok := d.preset[f.name]; ok {
			*f.value = v
			continue
		}
		if *f.value != "" {
			fmt.Fprintf(d.out, "%s [%s]: ", f.label, *f.value)
		} else {
			fmt.Fprintf(d.out, "%s: ", f.label)
		}
		line, err := d.readLine()
		if err != nil {
			fmt.Fprintln(d.out)
			if f.optional || *f.value != "" {
				continue
			}
			return board.FormValues{}, false
		}
		if line != "" {
			*f.value = line
		}
	}
	return values, true
}

type formField struct {
	name     string
	label    string
	value    *string
	optional bool
}

// readLine returns the next line without its line ending. A final line
// without a newline is returned as is; io.EOF is only reported when nothing
// was read.
func (d *terminalDialog) readLine() (string, error) {
	line, err := d.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
