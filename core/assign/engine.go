// Package assign turns entity groups into durable pseudonym assignments.
// The engine composes pseudonyms from themed pools, reusing components so
// that shared real-world name parts stay shared in the output: two people
// with the same surname keep a common pseudonym surname, and a recurring
// first name keeps its pseudonym first name. Draws stay reserved until the
// assignment persisted, so an aborted session leaves the pools untouched.
package assign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/voilenlp/voile/core/library"
	"github.com/voilenlp/voile/core/normalize"
	"github.com/voilenlp/voile/database"
	"github.com/voilenlp/voile/helper"
	"github.com/voilenlp/voile/model"
)

// ErrPseudonymCollision is returned when a caller-chosen pseudonym is
// already assigned to a different entity. Two entities never share a full
// pseudonym within one store.
var ErrPseudonymCollision = errors.New("pseudonym already assigned to another entity")

// Request describes one entity to assign a pseudonym to
type Request struct {
	Text       string
	Type       model.EntityType
	Gender     model.Gender
	Confidence *float64
	Variants   []string
	// Override forces this exact pseudonym instead of drawing one. Applies
	// only when the entity has no existing assignment.
	Override string
}

// RequestFromGroup builds a request from a grouped entity, carrying the
// highest occurrence confidence and the observed variant texts.
func RequestFromGroup(g *model.EntityGroup) Request {
	req := Request{
		Text:     g.Canonical,
		Type:     g.Type,
		Gender:   g.Gender,
		Variants: g.VariantTexts(),
	}
	for _, o := range g.Occurrences {
		if o.Confidence != nil && (req.Confidence == nil || *o.Confidence > *req.Confidence) {
			c := *o.Confidence
			req.Confidence = &c
		}
	}
	return req
}

// suggestion holds components drawn for a preview, reserved in the library
// until the assignment persists or the session ends. The normalized keys let
// later compositions in the same run reuse a pending component.
type suggestion struct {
	first, last, full string
	firstKey, lastKey string
	drawn             []string
}

// Engine assigns pseudonyms against one mapping store and one theme library
type Engine struct {
	store       database.MappingStore
	library     *library.Library
	logger      *slog.Logger
	suggestions map[string]*suggestion
}

// NewEngine creates an assignment engine for the given store and library
func NewEngine(store database.MappingStore, lib *library.Library, logger *slog.Logger) *Engine {
	return &Engine{
		store:       store,
		library:     lib,
		logger:      logger,
		suggestions: make(map[string]*suggestion),
	}
}

// Suggest previews the pseudonym an entity would receive without persisting
// anything. Drawn components stay reserved and are consumed by a later
// Assign for the same entity, or returned by ReleaseReservations.
func (e *Engine) Suggest(ctx context.Context, req Request) (*model.Assignment, error) {
	fullKey := normalize.FullKey(req.Text, req.Type)

	existing, err := e.store.FindByFullKey(ctx, fullKey)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, helper.NewError("lookup existing assignment", err)
	}

	sug, ok := e.suggestions[fullKey]
	if !ok {
		sug, err = e.compose(ctx, req)
		if err != nil {
			return nil, err
		}
		e.suggestions[fullKey] = sug
	}

	return e.assignment(req, fullKey, sug), nil
}

// Assign resolves an entity to its durable pseudonym. An existing mapping
// for the normalized name always wins; otherwise a suggested or fresh
// composition is persisted atomically. The returned bool reports whether a
// new mapping was created.
func (e *Engine) Assign(ctx context.Context, req Request) (*model.Assignment, bool, error) {
	fullKey := normalize.FullKey(req.Text, req.Type)

	existing, err := e.store.FindByFullKey(ctx, fullKey)
	if err == nil {
		e.releaseSuggestion(fullKey)
		return existing, false, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, false, helper.NewError("lookup existing assignment", err)
	}

	var sug *suggestion
	if req.Override != "" {
		if err := e.checkOverride(ctx, req.Override); err != nil {
			return nil, false, err
		}
		e.releaseSuggestion(fullKey)
		sug = overrideSuggestion(req)
	} else if cached, ok := e.suggestions[fullKey]; ok {
		sug = cached
	} else {
		sug, err = e.compose(ctx, req)
		if err != nil {
			return nil, false, err
		}
	}

	saved, created, err := e.store.FindOrCreate(ctx, e.assignment(req, fullKey, sug))
	if err != nil {
		e.release(sug)
		delete(e.suggestions, fullKey)
		return nil, false, helper.NewError("persist assignment", err)
	}

	if created {
		for _, v := range sug.drawn {
			e.library.Commit(v)
		}
		e.logger.Debug("Assigned pseudonym",
			slog.String("type", string(req.Type)),
			slog.String("pseudonym", saved.PseudonymFull),
		)
	} else {
		// Another writer got there first, keep theirs.
		e.release(sug)
	}
	delete(e.suggestions, fullKey)

	return saved, created, nil
}

// ReleaseReservations returns every outstanding suggested component to its
// pool. Called when a review session ends without accepting the entities.
func (e *Engine) ReleaseReservations() {
	for key, sug := range e.suggestions {
		e.release(sug)
		delete(e.suggestions, key)
	}
}

// releaseSuggestion returns one cached suggestion's drawn components to the
// pools and forgets the cache entry
func (e *Engine) releaseSuggestion(fullKey string) {
	if sug, ok := e.suggestions[fullKey]; ok {
		e.release(sug)
		delete(e.suggestions, fullKey)
	}
}

// compose draws the pseudonym components for a new entity. PERSON names are
// built per component so shared real components map to shared pseudonym
// components; LOCATION and ORG draw whole values from their pools.
func (e *Engine) compose(ctx context.Context, req Request) (*suggestion, error) {
	used, err := e.store.PseudonymComponents(ctx)
	if err != nil {
		return nil, helper.NewError("list used pseudonyms", err)
	}

	switch req.Type {
	case model.EntityTypePerson:
		return e.composePerson(ctx, req, used)
	case model.EntityTypeLocation:
		return e.composeWhole(library.PoolLocation, used)
	case model.EntityTypeOrg:
		return e.composeWhole(library.PoolOrg, used)
	default:
		return nil, fmt.Errorf("cannot assign pseudonym for entity type %q", req.Type)
	}
}

func (e *Engine) composeWhole(pool library.PoolKey, used map[string]bool) (*suggestion, error) {
	v, err := e.library.Draw(pool, used)
	if err != nil {
		return nil, err
	}
	return &suggestion{full: v, drawn: []string{v}}, nil
}

func (e *Engine) composePerson(ctx context.Context, req Request, used map[string]bool) (*suggestion, error) {
	comps := normalize.Normalize(req.Text, req.Type)
	firstKey := normalize.Key(comps.First)
	lastKey := normalize.Key(comps.Last)

	sug := &suggestion{firstKey: firstKey, lastKey: lastKey}

	// Reuse components already mapped for the same real name part.
	if lastKey != "" {
		matches, err := e.store.FindByComponent(ctx, lastKey, database.ComponentLast)
		if err != nil {
			return nil, helper.NewError("lookup last name component", err)
		}
		if len(matches) > 0 && matches[0].PseudonymLast != "" {
			sug.last = matches[0].PseudonymLast
		}
	}
	if firstKey != "" {
		matches, err := e.store.FindByComponent(ctx, firstKey, database.ComponentFirst)
		if err != nil {
			return nil, helper.NewError("lookup first name component", err)
		}
		if len(matches) > 0 && matches[0].PseudonymFirst != "" {
			sug.first = matches[0].PseudonymFirst
		}
	}

	// Pending suggestions in the same run count too: two entities sharing a
	// surname must share its pseudonym before either one is persisted. A
	// borrowed component stays reserved by the suggestion that drew it.
	if sug.last == "" && lastKey != "" {
		sug.last = e.pendingComponent(lastKey, database.ComponentLast)
	}
	if sug.first == "" && firstKey != "" {
		sug.first = e.pendingComponent(firstKey, database.ComponentFirst)
	}

	if sug.first == "" {
		v, err := e.library.DrawFirst(req.Gender, used)
		if err != nil {
			return nil, err
		}
		sug.first = v
		sug.drawn = append(sug.drawn, v)
	}
	if sug.last == "" && comps.Last != "" {
		v, err := e.library.Draw(library.PoolLast, used)
		if err != nil {
			e.release(sug)
			return nil, err
		}
		sug.last = v
		sug.drawn = append(sug.drawn, v)
	}

	sug.full = sug.first
	if sug.last != "" {
		sug.full = sug.first + " " + sug.last
	}

	// The composed full name can still collide with an earlier whole-value
	// assignment. Redraw the last drawn component until it clears.
	for used[sug.full] {
		if len(sug.drawn) == 0 {
			return nil, fmt.Errorf("%w: composed name %q already in use", ErrPseudonymCollision, sug.full)
		}
		redraw := sug.drawn[len(sug.drawn)-1]
		e.library.Release(redraw)
		sug.drawn = sug.drawn[:len(sug.drawn)-1]

		exclude := map[string]bool{redraw: true}
		for k := range used {
			exclude[k] = true
		}

		var v string
		var err error
		if redraw == sug.last {
			v, err = e.library.Draw(library.PoolLast, exclude)
			sug.last = v
		} else {
			v, err = e.library.DrawFirst(req.Gender, exclude)
			sug.first = v
		}
		if err != nil {
			e.release(sug)
			return nil, err
		}
		sug.drawn = append(sug.drawn, v)

		sug.full = sug.first
		if sug.last != "" {
			sug.full = sug.first + " " + sug.last
		}
	}

	return sug, nil
}

// pendingComponent returns a component another pending suggestion already
// drew for the same real name part, or the empty string
func (e *Engine) pendingComponent(key string, componentType database.ComponentType) string {
	for _, p := range e.suggestions {
		if componentType == database.ComponentLast && p.lastKey == key && p.last != "" {
			return p.last
		}
		if componentType == database.ComponentFirst && p.firstKey == key && p.first != "" {
			return p.first
		}
	}
	return ""
}

// overrideSuggestion wraps a caller-chosen pseudonym. PERSON overrides are
// split into components so the parts join the exclusion set like drawn ones.
func overrideSuggestion(req Request) *suggestion {
	sug := &suggestion{full: req.Override}
	if req.Type == model.EntityTypePerson {
		comps := normalize.Normalize(req.Override, model.EntityTypePerson)
		sug.first = comps.First
		sug.last = comps.Last
	}
	return sug
}

// checkOverride rejects a caller-chosen pseudonym already in use
func (e *Engine) checkOverride(ctx context.Context, override string) error {
	used, err := e.store.PseudonymComponents(ctx)
	if err != nil {
		return helper.NewError("list used pseudonyms", err)
	}
	if used[override] {
		return fmt.Errorf("%w: %q", ErrPseudonymCollision, override)
	}
	return nil
}

func (e *Engine) assignment(req Request, fullKey string, sug *suggestion) *model.Assignment {
	var firstKey, lastKey string
	if req.Type == model.EntityTypePerson {
		comps := normalize.Normalize(req.Text, req.Type)
		firstKey = normalize.Key(comps.First)
		lastKey = normalize.Key(comps.Last)
	}

	meta := model.Metadata{}
	if len(req.Variants) > 1 {
		variants := make([]interface{}, 0, len(req.Variants))
		for _, v := range req.Variants {
			variants = append(variants, v)
		}
		meta["variants"] = variants
	}

	return &model.Assignment{
		Type:           req.Type,
		FullName:       req.Text,
		FullKey:        fullKey,
		FirstKey:       firstKey,
		LastKey:        lastKey,
		PseudonymFull:  sug.full,
		PseudonymFirst: sug.first,
		PseudonymLast:  sug.last,
		Theme:          e.library.Theme,
		Gender:         req.Gender,
		Confidence:     req.Confidence,
		Metadata:       meta,
	}
}

func (e *Engine) release(sug *suggestion) {
	for _, v := range sug.drawn {
		e.library.Release(v)
	}
	sug.drawn = nil
}
