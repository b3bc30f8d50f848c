// Package terminal provides an interactive reviewer for validation
// sessions. One keystroke command per line; unknown input reprints the help
// instead of consuming an action.
package terminal

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/voilenlp/voile/core/session"
	"github.com/voilenlp/voile/model"
)

// Reviewer reads validation commands from a terminal
type Reviewer struct {
	in  *bufio.Reader
	out io.Writer
}

// NewReviewer creates a reviewer reading commands from in and printing
// prompts to out
func NewReviewer(in io.Reader, out io.Writer) *Reviewer {
	return &Reviewer{in: bufio.NewReader(in), out: out}
}

// NextAction shows the current review and reads the next command. It loops
// until the input maps to a valid action; a quit asks for confirmation.
func (r *Reviewer) NextAction(s *session.Session) (session.Action, error) {
	r.printCurrent(s)

	for {
		fmt.Fprint(r.out, color.WhiteString("[c]onfirm [r]eject [m]odify [p]seudonym [a]dd [u]ndo [C]onfirm-type [R]eject-type [n]ext [b]ack [o]ccurrence [q]uit > "))
		line, err := r.in.ReadString('\n')
		if err != nil && line == "" {
			return session.Action{}, err
		}

		switch strings.TrimSpace(line) {
		case "c":
			return session.Action{Type: session.ActionConfirm}, nil
		case "r":
			return session.Action{Type: session.ActionReject}, nil
		case "m":
			text, err := r.prompt("Corrected text: ")
			if err != nil {
				return session.Action{}, err
			}
			return session.Action{Type: session.ActionModify, Text: text}, nil
		case "p":
			if current := s.Current(); current != nil &&
				current.State != model.ReviewConfirmed && current.State != model.ReviewModified {
				fmt.Fprintln(r.out, color.RedString("Confirm or modify the entity first, then change its pseudonym"))
				continue
			}
			pseudonym, err := r.prompt("Pseudonym: ")
			if err != nil {
				return session.Action{}, err
			}
			return session.Action{Type: session.ActionChangePseudonym, Pseudonym: pseudonym}, nil
		case "a":
			text, err := r.prompt("Entity text: ")
			if err != nil {
				return session.Action{}, err
			}
			entityType, err := r.promptType()
			if err != nil {
				return session.Action{}, err
			}
			return session.Action{Type: session.ActionAdd, Text: text, EntityType: entityType}, nil
		case "u":
			return session.Action{Type: session.ActionUndo}, nil
		case "C":
			return session.Action{Type: session.ActionAcceptAllType}, nil
		case "R":
			return session.Action{Type: session.ActionRejectAllType}, nil
		case "n":
			return session.Action{Type: session.ActionNext}, nil
		case "b":
			return session.Action{Type: session.ActionPrev}, nil
		case "o":
			return session.Action{Type: session.ActionNextOccurrence}, nil
		case "q":
			confirm, err := r.prompt(color.YellowString("Quit and discard all decisions? [y/N]: "))
			if err != nil {
				return session.Action{}, err
			}
			if strings.EqualFold(confirm, "y") {
				return session.Action{Type: session.ActionQuit}, nil
			}
		default:
			fmt.Fprintln(r.out, color.RedString("Unknown command"))
		}
	}
}

func (r *Reviewer) prompt(label string) (string, error) {
	fmt.Fprint(r.out, label)
	line, err := r.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (r *Reviewer) promptType() (model.EntityType, error) {
	for {
		raw, err := r.prompt("Type [person/org/location]: ")
		if err != nil {
			return "", err
		}
		switch strings.ToLower(raw) {
		case "person", "p":
			return model.EntityTypePerson, nil
		case "org", "o":
			return model.EntityTypeOrg, nil
		case "location", "l":
			return model.EntityTypeLocation, nil
		}
		fmt.Fprintln(r.out, color.RedString("Unknown entity type"))
	}
}

func (r *Reviewer) printCurrent(s *session.Session) {
	review := s.Current()
	if review == nil {
		return
	}
	decided, total := s.Progress()

	fmt.Fprintln(r.out)
	fmt.Fprintf(r.out, "%s %s\n",
		color.CyanString("[%d/%d]", decided+1, total),
		typeColor(review.Group.Type).Sprintf("%s", review.Group.Type),
	)
	fmt.Fprintf(r.out, "  Entity:    %s\n", color.New(color.Bold).Sprint(review.Group.Canonical))
	if variants := review.Group.VariantTexts(); len(variants) > 1 {
		fmt.Fprintf(r.out, "  Variants:  %s\n", strings.Join(variants, ", "))
	}
	if occurrence := s.CurrentOccurrence(); occurrence != nil {
		fmt.Fprintf(r.out, "  Occurrence: %q at %d (%d total)\n",
			occurrence.Text, occurrence.StartPos, len(review.Group.Occurrences))
	}
	if review.SuggestedPseudonym != "" {
		fmt.Fprintf(r.out, "  Suggested: %s\n", color.GreenString(review.SuggestedPseudonym))
	}
	if review.Ambiguous {
		fmt.Fprintf(r.out, "  %s\n", color.YellowString("Ambiguous: may denote more than one entity"))
	}
}

func typeColor(t model.EntityType) *color.Color {
	switch t {
	case model.EntityTypePerson:
		return color.New(color.FgMagenta)
	case model.EntityTypeLocation:
		return color.New(color.FgBlue)
	case model.EntityTypeOrg:
		return color.New(color.FgYellow)
	}
	return color.New(color.FgWhite)
}
