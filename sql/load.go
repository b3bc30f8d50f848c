package sql

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log"
)

//go:embed mappings.sql
var mappingsSQL string

// MappingsFunctions lists the stored functions the mappings SQL must provide
var MappingsFunctions = []string{
	"init_mappings",
	"insert_mapping",
	"find_or_create_mapping",
	"select_mapping_by_full_key",
	"select_mappings_by_component",
	"list_pseudonym_components",
	"delete_mapping",
}

// LoadMappingsSql loads the mapping-store SQL functions. If force is false
// and all functions already exist, nothing is executed.
func LoadMappingsSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, MappingsFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing mappings functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(mappingsSQL)
	if err != nil {
		return fmt.Errorf("error executing mappings SQL: %w", err)
	}

	exist, err := checkFunctions(db, MappingsFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL mappings functions loaded successfully")
	return nil
}

// checkFunctions verifies that all required functions exist in the database
func checkFunctions(db *sql.DB, sqlFunctions []string) (bool, error) {
	var allExist bool
	for _, f := range sqlFunctions {
		err := db.QueryRow(
			`SELECT EXISTS(SELECT 1 FROM pg_proc WHERE proname = $1);`,
			f,
		).Scan(&allExist)
		if err != nil {
			return false, fmt.Errorf("error checking existence of function %s: %w", f, err)
		}
		if !allExist {
			log.Printf("Function %s does not exist", f)
			break
		}
	}
	return allExist, nil
}
