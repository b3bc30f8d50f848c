package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/voilenlp/voile"
	"github.com/voilenlp/voile/model"
	"github.com/voilenlp/voile/terminal"
)

const sampleContent = `Rapport d'expertise.

Le docteur Marie Dubois exerce à Paris pour le compte d'Acme SA.
M. Jean Martin, domicilié à Lyon, a été entendu le 12 mars.
Mme Dubois confirme les déclarations de M. Martin.`

func main() {
	storePath := "voile-example/mappings.db"
	if len(os.Args) > 1 {
		storePath = os.Args[1]
	}

	v, err := voile.NewLocal(storePath, []byte("example passphrase"), "neutral")
	if err != nil {
		log.Fatalf("Failed to create voile: %v", err)
	}
	defer v.Close()

	// Model-based NER combined with the regex detector. Downloads the NER
	// model on first use; comment out to stay with the regex detector only.
	if err := v.UseDefaultDetector(); err != nil {
		log.Printf("NER detector unavailable, staying with regex detection: %v", err)
	}

	doc := &model.Document{
		Title:   "Rapport d'expertise",
		Source:  "interactive_example",
		Content: sampleContent,
	}

	// Each detected entity is reviewed on the terminal: confirm, reject,
	// modify the text, pick another pseudonym, or quit to discard the run.
	reviewer := terminal.NewReviewer(os.Stdin, os.Stdout)
	result, err := v.ProcessDocument(context.Background(), doc, model.DefaultProcessConfig(), reviewer)
	if err != nil {
		log.Fatalf("Failed to process document: %v", err)
	}

	if result.Aborted {
		fmt.Println("\nSession aborted, no changes were made.")
		return
	}

	fmt.Printf("\n--- Pseudonymized output ---\n%s\n", result.Output)
	for _, e := range result.Errors {
		fmt.Printf("warning: %v\n", e)
	}

	fmt.Println("\nPool usage:")
	for pool, usage := range v.Usage() {
		fmt.Printf("  %-14s %.0f%%\n", pool, usage*100)
	}
}
