package stt

import (
	"fmt"
	"sort"
	"strings"
)

// FsgTransition is one arc of a finite state grammar.
// An empty Word is a null transition.
type FsgTransition struct {
	From, To int
	Prob     float64
	Word     string
}

// FsgModel is a finite state grammar built in code
type FsgModel struct {
	Name        string
	States      int
	Start       int
	Final       int
	Transitions []FsgTransition
}

// NewFsgModel creates a grammar with nStates states, start 0 and final nStates-1
func NewFsgModel(name string, nStates int) *FsgModel {
	return &FsgModel{Name: name, States: nStates, Final: nStates - 1}
}

func (f *FsgModel) SetStartState(state int) { f.Start = state }
func (f *FsgModel) SetFinalState(state int) { f.Final = state }

// TransAdd adds a word arc between two states
func (f *FsgModel) TransAdd(from, to int, prob float64, word string) {
	f.Transitions = append(f.Transitions, FsgTransition{From: from, To: to, Prob: prob, Word: word})
}

// NullTransAdd adds an epsilon arc between two states
func (f *FsgModel) NullTransAdd(from, to int, prob float64) {
	f.TransAdd(from, to, prob, "")
}

// Validate checks state indices
func (f *FsgModel) Validate() error {
	if f.States <= 0 {
		return fmt.Errorf("fsg %q: no states", f.Name)
	}
	inRange := func(s int) bool { return s >= 0 && s < f.States }
	if !inRange(f.Start) || !inRange(f.Final) {
		return fmt.Errorf("fsg %q: start/final state out of range", f.Name)
	}
	for _, t := range f.Transitions {
		if !inRange(t.From) || !inRange(t.To) {
			return fmt.Errorf("fsg %q: transition %d->%d out of range", f.Name, t.From, t.To)
		}
	}
	return nil
}

// Words returns the distinct vocabulary in sorted order
func (f *FsgModel) Words() []string {
	seen := make(map[string]bool)
	var words []string
	for _, t := range f.Transitions {
		if t.Word == "" || seen[t.Word] {
			continue
		}
		seen[t.Word] = true
		words = append(words, t.Word)
	}
	sort.Strings(words)
	return words
}

// JSGF renders the grammar as a right-linear JSGF grammar: one rule per
// state, the start state's rule public. Probabilities become weights.
func (f *FsgModel) JSGF() (string, error) {
	if err := f.Validate(); err != nil {
		return "", err
	}

	out := make(map[int][]string)
	for _, t := range f.Transitions {
		var alt string
		if t.Word == "" {
			alt = fmt.Sprintf("<s%d>", t.To)
		} else {
			alt = fmt.Sprintf("%s <s%d>", t.Word, t.To)
		}
		if t.Prob > 0 && t.Prob != 1 {
			alt = fmt.Sprintf("/%g/ %s", t.Prob, alt)
		}
		out[t.From] = append(out[t.From], alt)
	}
	out[f.Final] = append(out[f.Final], "<NULL>")

	name := f.Name
	if name == "" {
		name = "fsg"
	}

	var b strings.Builder
	b.WriteString("#JSGF V1.0;\n")
	fmt.Fprintf(&b, "grammar %s;\n", name)
	for s := 0; s < f.States; s++ {
		alts, ok := out[s]
		if !ok {
			alts = []string{"<VOID>"}
		}
		prefix := ""
		if s == f.Start {
			prefix = "public "
		}
		fmt.Fprintf(&b, "%s<s%d> = %s;\n", prefix, s, strings.Join(alts, " | "))
	}
	return b.String(), nil
}
