// Package detect produces raw entity detections from document text. The
// default detector runs a French NER model through hugot; the regex detector
// catches title-prefixed names the model tends to miss. Detections carry
// byte offsets into the original text so substitution can splice exactly.
package detect

import (
	"fmt"
	"strings"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"github.com/voilenlp/voile/helper"
	"github.com/voilenlp/voile/model"
)

// DetectFunc extracts entities with byte offsets from text
type DetectFunc func(text string) ([]model.DetectedEntity, error)

// DefaultDetector creates a detector using a French NER model.
// Detects PERSON, LOCATION and ORG entities; other labels are dropped.
func DefaultDetector() (DetectFunc, error) {
	modelName := "cmarkea/distilcamembert-base-ner"
	modelPath, err := helper.PrepareModel(modelName, "model.onnx")
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.TokenClassificationConfig{
		ModelPath: modelPath,
		Name:      "ner-pipeline",
		Options: []hugot.TokenClassificationOption{
			pipelines.WithSimpleAggregation(),
			pipelines.WithIgnoreLabels([]string{"O"}),
		},
	}
	nerPipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create NER pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create NER pipeline: %w", err)
	}

	return func(text string) ([]model.DetectedEntity, error) {
		result, err := nerPipeline.RunPipeline([]string{text})
		if err != nil {
			return nil, fmt.Errorf("failed to run NER: %w", err)
		}

		if len(result.Entities) == 0 {
			return nil, nil
		}

		var entities []model.DetectedEntity
		for _, entity := range result.Entities[0] {
			entityType, ok := normalizeLabel(entity.Entity)
			if !ok {
				continue
			}
			confidence := float64(entity.Score)
			entities = append(entities, model.DetectedEntity{
				Text:       strings.TrimSpace(entity.Word),
				Type:       entityType,
				StartPos:   int(entity.Start),
				EndPos:     int(entity.End),
				Confidence: &confidence,
				Source:     "ner",
			})
		}
		return entities, nil
	}, nil
}

// normalizeLabel maps a NER label (with BIO prefixes removed) onto an
// entity type. Unmapped labels such as MISC report false.
func normalizeLabel(label string) (model.EntityType, bool) {
	label = strings.TrimPrefix(strings.TrimPrefix(label, "B-"), "I-")
	switch strings.ToUpper(label) {
	case "PER", "PERSON":
		return model.EntityTypePerson, true
	case "LOC", "LOCATION", "GPE":
		return model.EntityTypeLocation, true
	case "ORG", "ORGANIZATION":
		return model.EntityTypeOrg, true
	}
	return "", false
}
