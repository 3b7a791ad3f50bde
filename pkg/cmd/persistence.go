package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/flowmesh/flowmesh/pkg/persistence"
	"github.com/flowmesh/flowmesh/pkg/persistence/file"
	"github.com/flowmesh/flowmesh/pkg/persistence/redis"
	"github.com/flowmesh/flowmesh/pkg/queue"
)

// NewPersistence creates the document store from a database URL. Only the
// file provider stores full documents today; anything else falls back to it.
func NewPersistence(databaseURL string) persistence.Persistence {
	root := strings.TrimPrefix(databaseURL, "file://")

	return file.NewPersistence(root)
}

// NewQueueRepository selects the queue write-through store. A redis:// URL
// gets the Redis repository; everything else shares the document store.
func NewQueueRepository(ctx context.Context, logger *slog.Logger, queueURL string, store persistence.Persistence) queue.Repository {
	if !strings.HasPrefix(queueURL, "redis://") {
		return store
	}

	parsed, err := url.Parse(queueURL)
	if err != nil {
		panic(fmt.Errorf("invalid queue URL: %w", err))
	}

	password, _ := parsed.User.Password()

	db := 0
	if path := strings.TrimPrefix(parsed.Path, "/"); path != "" {
		db, err = strconv.Atoi(path)
		if err != nil {
			panic(fmt.Errorf("invalid Redis database in queue URL: %w", err))
		}
	}

	repository, err := redis.NewQueueRepository(ctx, parsed.Host, password, db, logger)
	if err != nil {
		panic(fmt.Errorf("failed to connect queue repository: %w", err))
	}

	return repository
}
