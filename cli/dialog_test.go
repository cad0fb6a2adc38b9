package cli

import (
	"bytes"
	"strings"
	"testing"

	"prism-board/board"
)

func TestPromptFormReadsAnswers(t *testing.T) {
	var out bytes.Buffer
	d := newTerminalDialog(strings.NewReader("Write report\n\n2024-06-01"), &out, nil, false)

	got, ok := d.PromptForm(board.FormCreate, board.FormValues{})
	if !ok {
		t.Fatalf("form was cancelled")
	}
	want := board.FormValues{Title: "Write report", Deadline: "2024-06-01"}
	if got != want {
		t.Fatalf("unexpected values: %#v", got)
	}
	if !strings.Contains(out.String(), "Deadline (YYYY-MM-DD): ") {
		t.Fatalf("unexpected prompts: %q", out.String())
	}
}

func TestPromptFormKeepsCurrentValues(t *testing.T) {
	var out bytes.Buffer
	d := newTerminalDialog(strings.NewReader("\nnew notes\n\n"), &out, nil, false)

	current := board.FormValues{Title: "old", Description: "old notes", Deadline: "2024-06-01"}
	got, ok := d.PromptForm(board.FormEdit, current)
	if !ok {
		t.Fatalf("form was cancelled")
	}
	want := board.FormValues{Title: "old", Description: "new notes", Deadline: "2024-06-01"}
	if got != want {
		t.Fatalf("unexpected values: %#v", got)
	}
	if !strings.Contains(out.String(), "Title [old]: ") {
		t.Fatalf("current value not shown: %q", out.String())
	}
}

func TestPromptFormUsesPresets(t *testing.T) {
	var out bytes.Buffer
	preset := formPreset{fieldTitle: "from flag", fieldDeadline: "2024-07-01"}
	d := newTerminalDialog(strings.NewReader("typed\n"), &out, preset, false)

	got, ok := d.PromptForm(board.FormCreate, board.FormValues{})
	if !ok {
		t.Fatalf("form was cancelled")
	}
	want := board.FormValues{Title: "from flag", Description: "typed", Deadline: "2024-07-01"}
	if got != want {
		t.Fatalf("unexpected values: %#v", got)
	}
	if strings.Contains(out.String(), "Title") {
		t.Fatalf("preset field was prompted: %q", out.String())
	}
}

func TestPromptFormCancelledOnEOF(t *testing.T) {
	d := newTerminalDialog(strings.NewReader("only title\n"), &bytes.Buffer{}, nil, false)
	if _, ok := d.PromptForm(board.FormCreate, board.FormValues{}); ok {
		t.Fatalf("expected cancel at end of input")
	}
}

func TestPromptFormEOFLeavesOptionalDescriptionEmpty(t *testing.T) {
	var out bytes.Buffer
	preset := formPreset{fieldTitle: "Ship it", fieldDeadline: "2030-01-01"}
	d := newTerminalDialog(strings.NewReader(""), &out, preset, false)

	got, ok := d.PromptForm(board.FormCreate, board.FormValues{})
	if !ok {
		t.Fatalf("form was cancelled with all required fields preset")
	}
	want := board.FormValues{Title: "Ship it", Deadline: "2030-01-01"}
	if got != want {
		t.Fatalf("unexpected values: %#v", got)
	}
	if out.String() != "Description: \n" {
		t.Fatalf("unexpected prompts: %q", out.String())
	}
}

func TestPromptFormEOFKeepsCurrentValues(t *testing.T) {
	d := newTerminalDialog(strings.NewReader(""), &bytes.Buffer{}, formPreset{fieldTitle: "renamed"}, false)
	current := board.FormValues{Title: "old", Description: "notes", Deadline: "2024-06-01"}

	got, ok := d.PromptForm(board.FormEdit, current)
	if !ok {
		t.Fatalf("form was cancelled although every field has a value")
	}
	want := board.FormValues{Title: "renamed", Description: "notes", Deadline: "2024-06-01"}
	if got != want {
		t.Fatalf("unexpected values: %#v", got)
	}
}

func TestPromptFormUsesBlankPreset(t *testing.T) {
	var out bytes.Buffer
	preset := formPreset{fieldTitle: " ", fieldDescription: "", fieldDeadline: "2030-01-01"}
	d := newTerminalDialog(strings.NewReader(""), &out, preset, false)

	got, ok := d.PromptForm(board.FormCreate, board.FormValues{})
	if !ok || got.Title != " " {
		t.Fatalf("blank preset not passed through: %#v %v", got, ok)
	}
	if out.Len() != 0 {
		t.Fatalf("preset fields were prompted: %q", out.String())
	}
}

func TestPromptFormReturnAsksForReason(t *testing.T) {
	var out bytes.Buffer
	d := newTerminalDialog(strings.NewReader("tests fail\r\n"), &out, nil, false)
	got, ok := d.PromptForm(board.FormReturn, board.FormValues{})
	if !ok || got.Reason != "tests fail" {
		t.Fatalf("unexpected result: %#v %v", got, ok)
	}
	if out.String() != "Reason: " {
		t.Fatalf("unexpected prompts: %q", out.String())
	}
}

func TestConfirm(t *testing.T) {
	cases := []struct {
		input string
		yes   bool
		want  bool
	}{
		{"y\n", false, true},
		{"YES\n", false, true},
		{"n\n", false, false},
		{"\n", false, false},
		{"", false, false},
		{"", true, true},
	}
	for _, tc := range cases {
		d := newTerminalDialog(strings.NewReader(tc.input), &bytes.Buffer{}, nil, tc.yes)
		if got := d.Confirm(board.DeletePrompt); got != tc.want {
			t.Fatalf("Confirm(%q, yes=%v) = %v, want %v", tc.input, tc.yes, got, tc.want)
		}
	}
}
