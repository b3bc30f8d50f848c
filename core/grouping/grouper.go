// Package grouping clusters detected entity occurrences into per-entity
// validation units. Grouping is a pure function: input order never changes
// the resulting clusters, and output order is first-occurrence order.
package grouping

import (
	"sort"

	"github.com/voilenlp/voile/core/normalize"
	"github.com/voilenlp/voile/model"
)

// Rejection reports an entity that failed validation at the grouping
// boundary. Rejections never abort the batch.
type Rejection struct {
	Entity model.DetectedEntity
	Err    error
}

// Result holds the grouped entities and the per-entity rejections
type Result struct {
	Groups   []*model.EntityGroup
	Rejected []Rejection
}

type personGroup struct {
	group    *model.EntityGroup
	firstKey string
	lastKey  string
}

// Group clusters occurrences referring to the same real-world entity.
//
// PERSON mentions group when their last names match and their first names
// match or one mention carries a single token (a bare surname or first name
// joins the full name sharing it). Two full names with the same surname but
// different first names stay separate and are flagged ambiguous. LOCATION
// and ORG mentions group on their normalized key.
func Group(entities []model.DetectedEntity) *Result {
	result := &Result{}

	var persons, flat []model.DetectedEntity
	for _, e := range entities {
		if err := e.Validate(); err != nil {
			result.Rejected = append(result.Rejected, Rejection{Entity: e, Err: err})
			continue
		}
		if e.Type == model.EntityTypePerson {
			persons = append(persons, e)
		} else {
			flat = append(flat, e)
		}
	}

	groups := groupPersons(persons)
	groups = append(groups, groupFlat(flat)...)

	for _, g := range groups {
		sort.SliceStable(g.Occurrences, func(i, j int) bool {
			return g.Occurrences[i].StartPos < g.Occurrences[j].StartPos
		})
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].FirstPos() < groups[j].FirstPos()
	})

	result.Groups = groups
	return result
}

func groupPersons(entities []model.DetectedEntity) []*model.EntityGroup {
	// Sorting up front makes canonical selection and group creation order
	// independent of input order.
	sorted := make([]model.DetectedEntity, len(entities))
	copy(sorted, entities)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartPos < sorted[j].StartPos
	})

	var full []*personGroup
	fullByKey := make(map[string]*personGroup)
	var singles []model.DetectedEntity

	for _, e := range sorted {
		comps := normalize.Normalize(e.Text, model.EntityTypePerson)
		if comps.SingleToken() {
			singles = append(singles, e)
			continue
		}
		key := normalize.Key(comps.First) + "\x00" + normalize.Key(comps.Last)
		pg, ok := fullByKey[key]
		if !ok {
			pg = &personGroup{
				group:    &model.EntityGroup{Type: model.EntityTypePerson},
				firstKey: normalize.Key(comps.First),
				lastKey:  normalize.Key(comps.Last),
			}
			fullByKey[key] = pg
			full = append(full, pg)
		}
		pg.group.Add(e)
	}

	// Same surname under different first names is ambiguous: the groups
	// stay separate and all of them are surfaced for human adjudication.
	byLast := make(map[string][]*personGroup)
	for _, pg := range full {
		byLast[pg.lastKey] = append(byLast[pg.lastKey], pg)
	}
	for _, pgs := range byLast {
		if len(pgs) > 1 {
			for _, pg := range pgs {
				pg.group.Ambiguous = true
			}
		}
	}

	// A single-token mention joins a full-name group when exactly one group
	// carries that token as first or last name. Multiple candidates mean
	// the mention itself is ambiguous and stays its own group.
	singleByKey := make(map[string]*personGroup)
	var singleGroups []*personGroup
	for _, e := range singles {
		token := normalize.Key(normalize.Normalize(e.Text, model.EntityTypePerson).First)

		var candidates []*personGroup
		for _, pg := range full {
			if pg.lastKey == token || pg.firstKey == token {
				candidates = append(candidates, pg)
			}
		}

		switch len(candidates) {
		case 1:
			candidates[0].group.Add(e)
		case 0:
			sg, ok := singleByKey[token]
			if !ok {
				sg = &personGroup{
					group:    &model.EntityGroup{Type: model.EntityTypePerson},
					firstKey: token,
				}
				singleByKey[token] = sg
				singleGroups = append(singleGroups, sg)
			}
			sg.group.Add(e)
		default:
			own := &model.EntityGroup{Type: model.EntityTypePerson, Ambiguous: true}
			own.Add(e)
			for _, pg := range candidates {
				pg.group.Ambiguous = true
			}
			singleGroups = append(singleGroups, &personGroup{group: own})
		}
	}

	groups := make([]*model.EntityGroup, 0, len(full)+len(singleGroups))
	for _, pg := range full {
		groups = append(groups, pg.group)
	}
	for _, sg := range singleGroups {
		groups = append(groups, sg.group)
	}
	return groups
}

func groupFlat(entities []model.DetectedEntity) []*model.EntityGroup {
	sorted := make([]model.DetectedEntity, len(entities))
	copy(sorted, entities)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartPos < sorted[j].StartPos
	})

	byKey := make(map[string]*model.EntityGroup)
	var groups []*model.EntityGroup
	for _, e := range sorted {
		key := string(e.Type) + "\x00" + normalize.FullKey(e.Text, e.Type)
		g, ok := byKey[key]
		if !ok {
			g = &model.EntityGroup{Type: e.Type}
			byKey[key] = g
			groups = append(groups, g)
		}
		g.Add(e)
	}
	return groups
}
