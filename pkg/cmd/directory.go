package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/approvio/approvio/pkg/directory"
	"github.com/redis/go-redis/v9"
)

// memberEntry is one row of the directory seed file.
type memberEntry struct {
	ID             string   `json:"id"`
	OrganizationID string   `json:"organization_id"`
	DepartmentID   *string  `json:"department_id,omitempty"`
	Roles          []string `json:"roles"`
	Active         *bool    `json:"active,omitempty"`
}

// NewDirectory loads a static membership directory from a JSON seed file and,
// when a Redis URL is given, wraps it with the role-lookup cache.
func NewDirectory(logger *slog.Logger, membersFile, redisURL string) directory.Directory {
	static := directory.NewStatic()

	if membersFile != "" {
		entries, err := loadMembers(membersFile)
		if err != nil {
			panic(fmt.Errorf("failed to load directory members: %w", err))
		}

		for _, entry := range entries {
			static.AddMember(entry.OrganizationID, entry.DepartmentID, entry.ID, entry.Roles...)

			if entry.Active != nil && !*entry.Active {
				static.Deactivate(entry.ID)
			}
		}

		logger.Info("directory loaded", "members", len(entries), "file", membersFile)
	}

	if redisURL == "" {
		return static
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		panic(fmt.Errorf("failed to parse redis URL: %w", err))
	}

	return directory.NewCached(static, redis.NewClient(opts), logger)
}

func loadMembers(path string) ([]memberEntry, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read members file: %w", err)
	}

	var entries []memberEntry

	err = json.Unmarshal(body, &entries)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal members file: %w", err)
	}

	return entries, nil
}
