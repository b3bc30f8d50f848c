// Package process runs the full pseudonymization pass over a document:
// detection, grouping, suggestion, human validation and substitution. Only
// accepted entities are replaced; a quit during validation leaves the
// document and the mapping store untouched.
package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/voilenlp/voile/core/assign"
	"github.com/voilenlp/voile/core/detect"
	"github.com/voilenlp/voile/core/grouping"
	"github.com/voilenlp/voile/core/normalize"
	"github.com/voilenlp/voile/core/session"
	"github.com/voilenlp/voile/helper"
	"github.com/voilenlp/voile/model"
)

// EntityError reports an entity that could not be assigned a pseudonym.
// Assignment failures are collected per entity and never abort the run.
type EntityError struct {
	Text string
	Type model.EntityType
	Err  error
}

func (e EntityError) Error() string {
	return fmt.Sprintf("entity %q (%s): %v", e.Text, e.Type, e.Err)
}

// Result is the outcome of processing one document
type Result struct {
	Document *model.Document
	// Output is the pseudonymized content. Equal to the input content when
	// the session was aborted or nothing was accepted.
	Output      string
	Reviews     []*model.EntityReview
	Assignments []*model.Assignment
	// Created counts assignments persisted during this run, Reused counts
	// hits on mappings from earlier runs or documents.
	Created int
	Reused  int
	// Rejected holds detections dropped at validation, Errors the entities
	// that failed assignment.
	Rejected []grouping.Rejection
	Errors   []EntityError
	Aborted  bool
}

// Processor wires a detector and an assignment engine into a document
// pseudonymization pass
type Processor struct {
	detector detect.DetectFunc
	engine   *assign.Engine
	logger   *slog.Logger
}

// NewProcessor creates a processor from a detector and an engine
func NewProcessor(detector detect.DetectFunc, engine *assign.Engine, logger *slog.Logger) *Processor {
	return &Processor{detector: detector, engine: engine, logger: logger}
}

// autoConfirmer accepts every pending review without human input
type autoConfirmer struct{}

func (autoConfirmer) NextAction(*session.Session) (session.Action, error) {
	return session.Action{Type: session.ActionConfirm}, nil
}

// Process runs one document through detection, validation and substitution.
// The provider supplies reviewer decisions; with AutoConfirm set (or a nil
// provider) every detection is confirmed.
func (p *Processor) Process(ctx context.Context, doc *model.Document, config model.ProcessConfig, provider session.ActionProvider) (*Result, error) {
	result := &Result{Document: doc, Output: doc.Content}

	detected, err := p.detector(doc.Content)
	if err != nil {
		return nil, helper.NewError("detect entities", err)
	}

	var enabled []model.DetectedEntity
	for _, e := range detected {
		if config.TypeEnabled(e.Type) {
			enabled = append(enabled, e)
		}
	}

	grouped := grouping.Group(enabled)
	result.Rejected = grouped.Rejected

	reviews := p.buildReviews(ctx, grouped.Groups, result)
	result.Reviews = reviews

	sess := session.New(reviews)
	if config.AutoConfirm || provider == nil {
		provider = autoConfirmer{}
	}
	if err := sess.Run(provider); err != nil {
		if errors.Is(err, session.ErrSessionAborted) {
			p.engine.ReleaseReservations()
			result.Aborted = true
			p.logger.Info("Session aborted, document unchanged", slog.String("title", doc.Title))
			return result, nil
		}
		return nil, helper.NewError("validation session", err)
	}

	replacements := p.assignAccepted(ctx, sess, result)
	// Suggestions for rejected entities are still reserved, give them back.
	p.engine.ReleaseReservations()
	result.Output = substitute(doc.Content, replacements)

	p.logger.Info("Processed document",
		slog.String("title", doc.Title),
		slog.Int("entities", len(result.Reviews)),
		slog.Int("created", result.Created),
		slog.Int("reused", result.Reused),
	)
	return result, nil
}

// ProcessAll runs several documents against the same store so recurring
// entities share pseudonyms across the batch. Per-document failures are
// collected and do not stop the batch.
func (p *Processor) ProcessAll(ctx context.Context, docs []*model.Document, config model.ProcessConfig, provider session.ActionProvider) ([]*Result, error) {
	results := make([]*Result, 0, len(docs))
	var errs []error
	for _, doc := range docs {
		result, err := p.Process(ctx, doc, config, provider)
		if err != nil {
			errs = append(errs, fmt.Errorf("document %q: %w", doc.Title, err))
			continue
		}
		results = append(results, result)
	}
	return results, errors.Join(errs...)
}

// buildReviews wraps groups in pending reviews with suggested pseudonyms
func (p *Processor) buildReviews(ctx context.Context, groups []*model.EntityGroup, result *Result) []*model.EntityReview {
	reviews := make([]*model.EntityReview, 0, len(groups))
	for _, g := range groups {
		review := &model.EntityReview{
			ID:        uuid.New(),
			Group:     g,
			State:     model.ReviewPending,
			Ambiguous: g.Ambiguous,
		}

		suggested, err := p.engine.Suggest(ctx, assign.RequestFromGroup(g))
		if err != nil {
			result.Errors = append(result.Errors, EntityError{Text: g.Canonical, Type: g.Type, Err: err})
		} else {
			review.SuggestedPseudonym = suggested.PseudonymFull
		}

		reviews = append(reviews, review)
	}
	return reviews
}

// replacement is one span substitution in the output document
type replacement struct {
	start, end int
	text       string
}

// assignAccepted persists assignments for every accepted review and
// collects the span replacements
func (p *Processor) assignAccepted(ctx context.Context, sess *session.Session, result *Result) []replacement {
	var replacements []replacement

	for _, review := range sess.Accepted() {
		req := assign.Request{
			Text:     review.EffectiveText(),
			Type:     review.Group.Type,
			Gender:   review.Group.Gender,
			Variants: review.Group.VariantTexts(),
			Override: review.PseudonymOverride,
		}
		for _, o := range review.Group.Occurrences {
			if o.Confidence != nil && (req.Confidence == nil || *o.Confidence > *req.Confidence) {
				c := *o.Confidence
				req.Confidence = &c
			}
		}

		assignment, created, err := p.engine.Assign(ctx, req)
		if err != nil {
			result.Errors = append(result.Errors, EntityError{Text: req.Text, Type: req.Type, Err: err})
			continue
		}
		result.Assignments = append(result.Assignments, assignment)
		if created {
			result.Created++
		} else {
			result.Reused++
		}

		if review.State == model.ReviewAdded {
			// Reviewer-added entities carry no detector spans, substitute
			// every exact occurrence of the text instead.
			replacements = append(replacements, findOccurrences(result.Document.Content, review.EffectiveText(), assignment.PseudonymFull)...)
			continue
		}
		for _, o := range review.Group.Occurrences {
			replacements = append(replacements, replacement{
				start: o.StartPos,
				end:   o.EndPos,
				text:  replacementFor(o.Text, assignment),
			})
		}
	}
	return replacements
}

// replacementFor picks the substitution text for one occurrence. Honorific
// titles stay in place, and a bare component mention is replaced by the
// matching pseudonym component rather than the full pseudonym.
func replacementFor(text string, a *model.Assignment) string {
	if a.Type != model.EntityTypePerson {
		return a.PseudonymFull
	}

	stripped := normalize.StripTitle(text)
	prefix := ""
	if stripped != text && strings.HasSuffix(text, stripped) {
		prefix = text[:len(text)-len(stripped)]
	}

	comps := normalize.Normalize(text, model.EntityTypePerson)
	if comps.Last == "" {
		key := normalize.Key(comps.First)
		if key == a.LastKey && a.PseudonymLast != "" {
			return prefix + a.PseudonymLast
		}
		if key == a.FirstKey && a.PseudonymFirst != "" {
			return prefix + a.PseudonymFirst
		}
	}
	return prefix + a.PseudonymFull
}

// findOccurrences locates every non-overlapping exact match of text
func findOccurrences(content, text, pseudonym string) []replacement {
	var found []replacement
	if text == "" {
		return nil
	}
	for offset := 0; ; {
		i := strings.Index(content[offset:], text)
		if i < 0 {
			break
		}
		start := offset + i
		found = append(found, replacement{start: start, end: start + len(text), text: pseudonym})
		offset = start + len(text)
	}
	return found
}

// substitute splices the replacements into the content back to front so
// earlier offsets stay valid. Out-of-range and overlapping spans are skipped.
func substitute(content string, replacements []replacement) string {
	sort.SliceStable(replacements, func(i, j int) bool {
		return replacements[i].start > replacements[j].start
	})

	out := content
	lastStart := len(content) + 1
	for _, r := range replacements {
		if r.start < 0 || r.end > len(content) || r.end > lastStart || r.start > r.end {
			continue
		}
		out = out[:r.start] + r.text + out[r.end:]
		lastStart = r.start
	}
	return out
}
