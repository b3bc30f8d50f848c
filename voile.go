// Package voile pseudonymizes French documents. Detected persons,
// organizations and locations are validated interactively, assigned
// pseudonyms from themed libraries, and substituted in the text. Mappings
// persist in an encrypted local store or a shared Postgres store so the
// same entity keeps the same pseudonym across documents and runs.
package voile

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/voilenlp/voile/core/assign"
	"github.com/voilenlp/voile/core/detect"
	"github.com/voilenlp/voile/core/library"
	"github.com/voilenlp/voile/core/process"
	"github.com/voilenlp/voile/core/session"
	"github.com/voilenlp/voile/database"
	"github.com/voilenlp/voile/helper"
	"github.com/voilenlp/voile/model"
)

// Voile provides a unified interface to the pseudonymization components
type Voile struct {
	Store    database.MappingStore
	Library  *library.Library
	Engine   *assign.Engine
	Detector detect.DetectFunc
	// Logging
	log *slog.Logger
}

// New creates a Voile instance over an existing mapping store and theme.
// The detector defaults to the regex detector; use UseDefaultDetector for
// model-based detection.
func New(store database.MappingStore, theme string) (*Voile, error) {
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	lib, err := library.LoadTheme(theme)
	if err != nil {
		return nil, helper.NewError("load theme library", err)
	}

	return &Voile{
		Store:    store,
		Library:  lib,
		Engine:   assign.NewEngine(store, lib, logger),
		Detector: detect.RegexDetector(),
		log:      logger,
	}, nil
}

// NewLocal creates a Voile instance backed by an encrypted SQLite store at
// path. The passphrase protects the stored entity names.
func NewLocal(path string, passphrase []byte, theme string) (*Voile, error) {
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	store, err := database.OpenSQLite(path, passphrase, logger)
	if err != nil {
		return nil, helper.NewError("open local store", err)
	}
	return New(store, theme)
}

// NewShared creates a Voile instance backed by a shared Postgres store, for
// batch runs where several workers write against one database. The master
// key must be identical across all workers, it derives both the field
// encryption and the lookup hash keys.
func NewShared(config *helper.DatabaseConfiguration, masterKey []byte, theme string) (*Voile, error) {
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	cipher, err := database.NewCipher(masterKey)
	if err != nil {
		return nil, helper.NewError("initialize cipher", err)
	}

	db := helper.NewDatabase("voile", config, logger)
	store, err := database.NewPostgresStore(db, cipher, false)
	if err != nil {
		return nil, helper.NewError("create shared store", err)
	}
	return New(store, theme)
}

// SetDetector replaces the entity detector
func (v *Voile) SetDetector(detector detect.DetectFunc) {
	v.Detector = detector
}

// UseDefaultDetector sets up model-based NER detection combined with the
// regex detector for title-prefixed names. Downloads the NER model on first
// use.
func (v *Voile) UseDefaultDetector() error {
	ner, err := detect.DefaultDetector()
	if err != nil {
		return helper.NewError("create default detector", err)
	}
	v.Detector = detect.Merge(ner, detect.RegexDetector())
	return nil
}

// ProcessDocument runs one document through detection, validation and
// substitution. The provider supplies reviewer decisions; pass nil (or set
// AutoConfirm) for non-interactive runs.
func (v *Voile) ProcessDocument(ctx context.Context, doc *model.Document, config model.ProcessConfig, provider session.ActionProvider) (*process.Result, error) {
	if doc.Content == "" {
		return nil, helper.NewError("process document", fmt.Errorf("document content is empty"))
	}
	processor := process.NewProcessor(v.Detector, v.Engine, v.log)
	return processor.Process(ctx, doc, config, provider)
}

// ProcessDocuments runs a batch of documents against the same store so
// recurring entities share pseudonyms across the batch
func (v *Voile) ProcessDocuments(ctx context.Context, docs []*model.Document, config model.ProcessConfig, provider session.ActionProvider) ([]*process.Result, error) {
	processor := process.NewProcessor(v.Detector, v.Engine, v.log)
	return processor.ProcessAll(ctx, docs, config, provider)
}

// ProcessFile reads a file and processes it as a document
func (v *Voile) ProcessFile(ctx context.Context, path string, config model.ProcessConfig, provider session.ActionProvider) (*process.Result, error) {
	doc, err := model.NewDocumentFromFile(path, nil)
	if err != nil {
		return nil, helper.NewError("read document file", err)
	}
	return v.ProcessDocument(ctx, doc, config, provider)
}

// Usage reports the used fraction of every pseudonym pool, a diagnostic
// for spotting themes running out of candidates
func (v *Voile) Usage() map[library.PoolKey]float64 {
	keys := []library.PoolKey{
		library.PoolFirstMale, library.PoolFirstFemale, library.PoolFirstNeutral,
		library.PoolLast, library.PoolLocation, library.PoolOrg,
	}
	usage := make(map[library.PoolKey]float64, len(keys))
	for _, k := range keys {
		usage[k] = v.Library.Usage(k)
	}
	return usage
}

// Themes lists the embedded pseudonym themes
func Themes() []string {
	return library.Themes()
}

// Close releases outstanding reservations and closes the mapping store
func (v *Voile) Close() error {
	v.Engine.ReleaseReservations()
	if v.Store != nil {
		return v.Store.Close()
	}
	return nil
}
