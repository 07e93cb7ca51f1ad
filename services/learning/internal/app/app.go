package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/AniketChoudhary834/LMS/pkg/ai"
	"github.com/AniketChoudhary834/LMS/pkg/storage"
	"github.com/AniketChoudhary834/LMS/pkg/store"
)

// Config holds runtime configuration for the learning service. Store,
// Objects and Generator are built from the connection settings when nil.
type Config struct {
	DatabaseURL string
	Minio       storage.MinioConfig
	Generation  ai.GeneratorConfig

	Store     store.Store
	Objects   storage.ObjectStore
	Generator ai.TextGenerator
}

// App implements the catalog, enrollment, progress, quiz and media operations.
type App struct {
	store     store.Store
	objects   storage.ObjectStore
	generator ai.TextGenerator
	now       func() time.Time
}

// errUnchanged aborts a store update whose document needs no write.
var errUnchanged = errors.New("unchanged")

// New constructs the application with database, object storage and generator.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		gormStore, err := store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		dataStore = gormStore
	}

	objects := cfg.Objects
	if objects == nil {
		minioStore, err := storage.NewMinioStore(cfg.Minio)
		if err != nil {
			return nil, fmt.Errorf("init object store: %w", err)
		}
		objects = minioStore
	}

	generator := cfg.Generator
	if generator == nil {
		genCfg := cfg.Generation
		genCfg.JSONOutput = true
		gen, err := ai.NewGenerator(genCfg)
		if err != nil {
			return nil, fmt.Errorf("init text generator: %w", err)
		}
		generator = gen
	}

	return &App{
		store:     dataStore,
		objects:   objects,
		generator: generator,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// ignoreUnchanged treats an aborted no-op update as success.
func ignoreUnchanged(err error) error {
	if errors.Is(err, errUnchanged) {
		return nil
	}
	return err
}
