package helper

import (
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// DatabaseConfiguration holds the connection settings for the shared
// Postgres mapping store
type DatabaseConfiguration struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
	Schema   string
	SSLMode  string
}

// NewDatabaseConfiguration reads the configuration from VOILE_DB_*
// environment variables
func NewDatabaseConfiguration() (*DatabaseConfiguration, error) {
	config := &DatabaseConfiguration{
		Host:     os.Getenv("VOILE_DB_HOST"),
		Port:     os.Getenv("VOILE_DB_PORT"),
		Database: os.Getenv("VOILE_DB_DATABASE"),
		Username: os.Getenv("VOILE_DB_USERNAME"),
		Password: os.Getenv("VOILE_DB_PASSWORD"),
		Schema:   os.Getenv("VOILE_DB_SCHEMA"),
		SSLMode:  os.Getenv("VOILE_DB_SSLMODE"),
	}

	if config.Host == "" || config.Port == "" || config.Database == "" || config.Username == "" {
		return nil, fmt.Errorf("missing required database configuration (VOILE_DB_HOST, VOILE_DB_PORT, VOILE_DB_DATABASE, VOILE_DB_USERNAME)")
	}
	if config.Schema == "" {
		config.Schema = "public"
	}
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}

	return config, nil
}

// NewDatabaseConfigurationFromEnvFile loads an env file before reading the
// VOILE_DB_* variables. A missing file is not an error, the variables may
// already be set in the environment.
func NewDatabaseConfigurationFromEnvFile(path string) (*DatabaseConfiguration, error) {
	if err := godotenv.Load(path); err != nil {
		log.Printf("Warning: Error loading env file %s: %v", path, err)
	}
	return NewDatabaseConfiguration()
}

// Database wraps a sql.DB connection with its name and logger
type Database struct {
	Name     string
	Instance *sql.DB
	Logger   *slog.Logger
}

// NewDatabase opens a connection to the configured Postgres instance.
// It panics when the database is unreachable after retries.
func NewDatabase(name string, config *DatabaseConfiguration, logger *slog.Logger) *Database {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s search_path=%s sslmode=%s",
		config.Host, config.Port, config.Username, config.Password, config.Database, config.Schema, config.SSLMode,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Panicf("error opening database: %#v", err)
	}

	// The container in tests can take a moment to accept connections
	for attempt := 0; attempt < 5; attempt++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(time.Duration(attempt+1) * 200 * time.Millisecond)
	}
	if err != nil {
		log.Panicf("error connecting to database: %#v", err)
	}

	logger.Info("Connected to database", slog.String("name", name), slog.String("host", config.Host))

	return &Database{
		Name:     name,
		Instance: db,
		Logger:   logger,
	}
}

// Close closes the underlying connection
func (d *Database) Close() error {
	if d.Instance != nil {
		return d.Instance.Close()
	}
	return nil
}
