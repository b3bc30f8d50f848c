package main

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/voilenlp/voile"
	"github.com/voilenlp/voile/model"
)

const sampleContent = `Compte rendu de réunion.

Mme Marie Dubois a présenté le rapport annuel. M. Jean Martin a confirmé
les chiffres du trimestre. Mme Dubois a ensuite proposé une rencontre avec
Dr Bernard la semaine prochaine.

M. Jean-Pierre Leroy représentera la direction lors de cette rencontre.`

func main() {
	// Encrypted local mapping store in a temporary directory
	storePath := filepath.Join("voile-example", "mappings.db")
	v, err := voile.NewLocal(storePath, []byte("example passphrase"), "neutral")
	if err != nil {
		log.Fatalf("Failed to create voile: %v", err)
	}
	defer v.Close()

	doc := &model.Document{
		Title:   "Compte rendu",
		Source:  "basic_example",
		Content: sampleContent,
		Metadata: model.Metadata{
			"author": "Example Author",
		},
	}

	// Non-interactive run: every detection is confirmed automatically
	config := model.DefaultProcessConfig()
	config.AutoConfirm = true

	fmt.Println("Processing document...")
	result, err := v.ProcessDocument(context.Background(), doc, config, nil)
	if err != nil {
		log.Fatalf("Failed to process document: %v", err)
	}

	fmt.Printf("\nEntities reviewed: %d (created %d, reused %d)\n",
		len(result.Reviews), result.Created, result.Reused)
	for _, a := range result.Assignments {
		fmt.Printf("  %-10s %q -> %q\n", a.Type, a.FullName, a.PseudonymFull)
	}

	fmt.Printf("\n--- Pseudonymized output ---\n%s\n", result.Output)

	// Running the same document again reuses every mapping
	again, err := v.ProcessDocument(context.Background(), doc, config, nil)
	if err != nil {
		log.Fatalf("Failed to process document: %v", err)
	}
	fmt.Printf("\nSecond run: created %d, reused %d\n", again.Created, again.Reused)

	fmt.Println("\nBasic example completed successfully!")
}
