// Package session drives the interactive validation of detected entities.
// Reviews are ordered by entity type (persons, then organizations, then
// locations) and every entity starts pending. The session only tracks
// decisions; nothing is persisted until the caller applies the accepted
// reviews, so quitting discards everything.
package session

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/voilenlp/voile/model"
)

// ActionType enumerates the operations a reviewer can perform
type ActionType string

const (
	ActionConfirm         ActionType = "confirm"
	ActionReject          ActionType = "reject"
	ActionModify          ActionType = "modify"
	ActionAdd             ActionType = "add"
	ActionChangePseudonym ActionType = "change_pseudonym"
	ActionUndo            ActionType = "undo"
	ActionAcceptAllType   ActionType = "accept_all_type"
	ActionRejectAllType   ActionType = "reject_all_type"
	ActionNext            ActionType = "next"
	ActionPrev            ActionType = "prev"
	ActionNextOccurrence  ActionType = "next_occurrence"
	ActionQuit            ActionType = "quit"
)

// Action is one reviewer decision. Text carries the corrected entity text
// for modify and add, EntityType the type for add, and Pseudonym the chosen
// replacement for change_pseudonym.
type Action struct {
	Type       ActionType
	Text       string
	EntityType model.EntityType
	Pseudonym  string
}

// ActionProvider supplies reviewer decisions, one per call. The terminal
// reviewer implements it; tests and auto-confirm runs use stubs.
type ActionProvider interface {
	NextAction(s *Session) (Action, error)
}

var (
	// ErrSessionAborted is returned once the reviewer quit the session
	ErrSessionAborted = errors.New("session aborted")
	// ErrNothingToUndo is returned when the undo stack is empty
	ErrNothingToUndo = errors.New("nothing to undo")
	// ErrNoCurrentReview is returned for entity actions on an empty session
	ErrNoCurrentReview = errors.New("no current review")
	// ErrInvalidTransition is returned for a decision the current review's
	// state does not allow. Decided reviews re-enter only through undo.
	ErrInvalidTransition = errors.New("action not allowed in the review's current state")
)

type undoChange struct {
	review       *model.EntityReview
	prevState    model.ReviewState
	prevModified string
	prevOverride string
	added        bool
}

// Session holds the review list and cursor for one validation run
type Session struct {
	reviews    []*model.EntityReview
	cursor     int
	occCursor  map[uuid.UUID]int
	undoStack  [][]undoChange
	transcript []Action
	aborted    bool
}

// New creates a session over the given reviews, ordered by entity type and
// first occurrence position
func New(reviews []*model.EntityReview) *Session {
	ordered := make([]*model.EntityReview, len(reviews))
	copy(ordered, reviews)

	rank := make(map[model.EntityType]int, len(model.ReviewOrder))
	for i, t := range model.ReviewOrder {
		rank[t] = i
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		ti, tj := rank[ordered[i].Group.Type], rank[ordered[j].Group.Type]
		if ti != tj {
			return ti < tj
		}
		return ordered[i].Group.FirstPos() < ordered[j].Group.FirstPos()
	})

	return &Session{
		reviews:   ordered,
		occCursor: make(map[uuid.UUID]int),
	}
}

// Current returns the review under the cursor, nil when the session is empty
func (s *Session) Current() *model.EntityReview {
	if len(s.reviews) == 0 {
		return nil
	}
	return s.reviews[s.cursor]
}

// CurrentOccurrence returns the occurrence of the current review selected
// for display
func (s *Session) CurrentOccurrence() *model.DetectedEntity {
	r := s.Current()
	if r == nil || len(r.Group.Occurrences) == 0 {
		return nil
	}
	return &r.Group.Occurrences[s.occCursor[r.ID]%len(r.Group.Occurrences)]
}

// Reviews returns all reviews in session order
func (s *Session) Reviews() []*model.EntityReview {
	return s.reviews
}

// Accepted returns the reviews the reviewer accepted, in session order
func (s *Session) Accepted() []*model.EntityReview {
	var accepted []*model.EntityReview
	for _, r := range s.reviews {
		if r.Accepted() {
			accepted = append(accepted, r)
		}
	}
	return accepted
}

// Progress returns how many reviews are decided out of the total
func (s *Session) Progress() (decided, total int) {
	for _, r := range s.reviews {
		if r.State.Terminal() {
			decided++
		}
	}
	return decided, len(s.reviews)
}

// Done reports whether every review reached a terminal state
func (s *Session) Done() bool {
	decided, total := s.Progress()
	return decided == total
}

// Aborted reports whether the reviewer quit the session
func (s *Session) Aborted() bool {
	return s.aborted
}

// Transcript returns the decisions applied so far, in order. Navigation is
// not recorded; an undone decision stays in the transcript followed by its
// undo.
func (s *Session) Transcript() []Action {
	return s.transcript
}

// Apply performs one reviewer action and returns the number of reviews it
// changed. Navigation actions change none. An aborted session accepts no
// further actions.
func (s *Session) Apply(a Action) (int, error) {
	wasAborted := s.aborted
	n, err := s.apply(a)
	if (err == nil && n > 0) || (a.Type == ActionQuit && !wasAborted) {
		s.transcript = append(s.transcript, a)
	}
	return n, err
}

func (s *Session) apply(a Action) (int, error) {
	if s.aborted {
		return 0, ErrSessionAborted
	}

	switch a.Type {
	case ActionConfirm:
		return s.transition(model.ReviewConfirmed, "")
	case ActionReject:
		return s.transition(model.ReviewRejected, "")
	case ActionModify:
		if a.Text == "" {
			return 0, fmt.Errorf("modify requires a replacement text")
		}
		return s.transition(model.ReviewModified, a.Text)
	case ActionChangePseudonym:
		if a.Pseudonym == "" {
			return 0, fmt.Errorf("change_pseudonym requires a pseudonym")
		}
		return s.changePseudonym(a.Pseudonym)
	case ActionAdd:
		return s.add(a)
	case ActionUndo:
		return s.undo()
	case ActionAcceptAllType:
		return s.decideAllType(model.ReviewConfirmed)
	case ActionRejectAllType:
		return s.decideAllType(model.ReviewRejected)
	case ActionNext:
		s.move(1)
		return 0, nil
	case ActionPrev:
		s.move(-1)
		return 0, nil
	case ActionNextOccurrence:
		if r := s.Current(); r != nil {
			s.occCursor[r.ID]++
		}
		return 0, nil
	case ActionQuit:
		s.aborted = true
		return 0, ErrSessionAborted
	default:
		return 0, fmt.Errorf("unknown action %q", a.Type)
	}
}

// transition decides the current pending review and advances to the next
// pending one. Decided reviews only change through undo.
func (s *Session) transition(state model.ReviewState, modifiedText string) (int, error) {
	r := s.Current()
	if r == nil {
		return 0, ErrNoCurrentReview
	}
	if r.State != model.ReviewPending {
		return 0, ErrInvalidTransition
	}

	s.push([]undoChange{{
		review:       r,
		prevState:    r.State,
		prevModified: r.ModifiedText,
		prevOverride: r.PseudonymOverride,
	}})

	r.State = state
	r.ModifiedText = modifiedText
	s.advance()
	return 1, nil
}

// changePseudonym overrides the pseudonym of the current review. Only
// confirmed and modified reviews take an override; the entity decision comes
// first, then its replacement can be changed.
func (s *Session) changePseudonym(pseudonym string) (int, error) {
	r := s.Current()
	if r == nil {
		return 0, ErrNoCurrentReview
	}
	if r.State != model.ReviewConfirmed && r.State != model.ReviewModified {
		return 0, ErrInvalidTransition
	}

	s.push([]undoChange{{
		review:       r,
		prevState:    r.State,
		prevModified: r.ModifiedText,
		prevOverride: r.PseudonymOverride,
	}})

	r.PseudonymOverride = pseudonym
	s.advance()
	return 1, nil
}

// add appends a reviewer-supplied entity. It is accepted immediately; undo
// removes it again.
func (s *Session) add(a Action) (int, error) {
	if a.Text == "" {
		return 0, fmt.Errorf("add requires an entity text")
	}
	if !a.EntityType.Valid() {
		return 0, fmt.Errorf("add requires a valid entity type")
	}

	group := &model.EntityGroup{Canonical: a.Text, Type: a.EntityType}
	review := &model.EntityReview{
		ID:    uuid.New(),
		Group: group,
		State: model.ReviewAdded,
	}
	s.reviews = append(s.reviews, review)
	s.push([]undoChange{{review: review, added: true}})
	return 1, nil
}

// decideAllType decides every pending review of the current entity type in
// one step. The whole batch forms a single undo frame.
func (s *Session) decideAllType(state model.ReviewState) (int, error) {
	current := s.Current()
	if current == nil {
		return 0, ErrNoCurrentReview
	}

	var frame []undoChange
	for _, r := range s.reviews {
		if r.Group.Type != current.Group.Type || r.State != model.ReviewPending {
			continue
		}
		frame = append(frame, undoChange{
			review:       r,
			prevState:    r.State,
			prevModified: r.ModifiedText,
			prevOverride: r.PseudonymOverride,
		})
		r.State = state
	}
	if len(frame) == 0 {
		return 0, nil
	}
	s.push(frame)
	s.advance()
	return len(frame), nil
}

// undo reverts the most recent decision or batch of decisions
func (s *Session) undo() (int, error) {
	if len(s.undoStack) == 0 {
		return 0, ErrNothingToUndo
	}
	frame := s.undoStack[len(s.undoStack)-1]
	s.undoStack = s.undoStack[:len(s.undoStack)-1]

	for _, c := range frame {
		if c.added {
			s.remove(c.review)
			continue
		}
		c.review.State = c.prevState
		c.review.ModifiedText = c.prevModified
		c.review.PseudonymOverride = c.prevOverride
	}

	// Put the cursor back on the first review the undo reopened.
	for i, r := range s.reviews {
		if len(frame) > 0 && r == frame[0].review {
			s.cursor = i
			break
		}
	}
	return len(frame), nil
}

func (s *Session) push(frame []undoChange) {
	s.undoStack = append(s.undoStack, frame)
}

func (s *Session) remove(review *model.EntityReview) {
	for i, r := range s.reviews {
		if r == review {
			s.reviews = append(s.reviews[:i], s.reviews[i+1:]...)
			break
		}
	}
	if s.cursor >= len(s.reviews) && s.cursor > 0 {
		s.cursor = len(s.reviews) - 1
	}
}

// advance moves the cursor to the next pending review, wrapping around.
// With nothing pending left the cursor stays put.
func (s *Session) advance() {
	n := len(s.reviews)
	for i := 1; i <= n; i++ {
		idx := (s.cursor + i) % n
		if s.reviews[idx].State == model.ReviewPending {
			s.cursor = idx
			return
		}
	}
}

// move shifts the cursor without deciding anything
func (s *Session) move(delta int) {
	n := len(s.reviews)
	if n == 0 {
		return
	}
	s.cursor = ((s.cursor+delta)%n + n) % n
}

// Run applies actions from the provider until every review is decided or
// the reviewer quits. A quit discards all decisions.
func (s *Session) Run(provider ActionProvider) error {
	for !s.Done() {
		action, err := provider.NextAction(s)
		if err != nil {
			return err
		}
		if _, err := s.Apply(action); err != nil {
			if errors.Is(err, ErrSessionAborted) {
				return ErrSessionAborted
			}
			if errors.Is(err, ErrNothingToUndo) || errors.Is(err, ErrNoCurrentReview) || errors.Is(err, ErrInvalidTransition) {
				continue
			}
			return err
		}
	}
	return nil
}
