// Package gitrepo implements a git source connector. It walks the
// commit history of a local repository and emits one raw item per
// commit, optionally bounded by a since cutoff.
package gitrepo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"

	"github.com/skeinhq/skein/errors"
	"github.com/skeinhq/skein/ingest"
)

// PluginType is the registry name for this connector.
const PluginType = "git"

// Source walks commits of a local repository.
type Source struct {
	path      string
	since     string
	sinceTime *time.Time
	sinceHash string
	logger    *zap.SugaredLogger
}

// Factory returns a SourceFactory for registration. Task configuration:
//
//	path:  "/srv/repos/skein"      repository working directory
//	since: "2025-01-01T00:00:00Z"  optional cutoff; RFC3339 timestamp,
//	                               YYYY-MM-DD date, or commit hash (7+ chars)
func Factory(logger *zap.SugaredLogger) ingest.SourceFactory {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return func(config map[string]any) (ingest.Source, error) {
		path, _ := config["path"].(string)
		if path == "" {
			return nil, errors.New("git source requires a path configuration")
		}
		s := &Source{path: path, logger: logger}
		if since, _ := config["since"].(string); since != "" {
			if err := s.setSince(since); err != nil {
				return nil, err
			}
		}
		return s, nil
	}
}

// setSince parses the cutoff. Hash cutoffs are resolved to a timestamp
// lazily on first execution, once the repository is open.
func (s *Source) setSince(since string) error {
	s.since = since

	if t, err := time.Parse(time.RFC3339, since); err == nil {
		s.sinceTime = &t
		return nil
	}
	if t, err := time.Parse("2006-01-02", since); err == nil {
		s.sinceTime = &t
		return nil
	}
	if len(since) >= 7 {
		s.sinceHash = since
		return nil
	}
	return errors.Newf("invalid since value %q (use RFC3339 timestamp, date, or commit hash)", since)
}

// InitClient verifies the path is an openable git repository.
func (s *Source) InitClient(ctx context.Context) error {
	if _, err := git.PlainOpen(s.path); err != nil {
		return errors.Wrapf(err, "failed to open repository %q", s.path)
	}
	return nil
}

// Execute walks the commit history and returns one item per commit
// newer than the since cutoff.
func (s *Source) Execute(ctx context.Context, payload map[string]any) (*ingest.Status, error) {
	repo, err := git.PlainOpen(s.path)
	if err != nil {
		return ingest.Failuref(500, "failed to open repository %q: %v", s.path, err), nil
	}

	if s.sinceHash != "" && s.sinceTime == nil {
		if err := s.resolveSinceHash(repo); err != nil {
			return ingest.Failuref(400, "failed to resolve since hash %q: %v", s.sinceHash, err), nil
		}
	}

	commitIter, err := repo.CommitObjects()
	if err != nil {
		return ingest.Failuref(500, "failed to enumerate commits: %v", err), nil
	}
	defer commitIter.Close()

	var items []any
	skipped := 0
	err = commitIter.ForEach(func(commit *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.sinceTime != nil && !commit.Author.When.After(*s.sinceTime) {
			skipped++
			return nil
		}
		items = append(items, commitItem(commit))
		return nil
	})
	if err != nil {
		return ingest.Failuref(500, "commit walk aborted: %v", err), nil
	}

	s.logger.Infow("Git history walk complete",
		"path", s.path,
		"commits", len(items),
		"skipped", skipped,
	)
	return ingest.OKWithData(
		fmt.Sprintf("walked %d commits", len(items)),
		map[string]any{ingest.DataKeyItems: items},
	), nil
}

// resolveSinceHash converts a commit-hash cutoff into that commit's
// author timestamp. Short hashes are resolved by prefix scan.
func (s *Source) resolveSinceHash(repo *git.Repository) error {
	commit, err := repo.CommitObject(plumbing.NewHash(s.sinceHash))
	if err == nil {
		t := commit.Author.When
		s.sinceTime = &t
		return nil
	}

	commitIter, err := repo.CommitObjects()
	if err != nil {
		return err
	}
	defer commitIter.Close()

	errFound := errors.New("found")
	walkErr := commitIter.ForEach(func(c *object.Commit) error {
		if strings.HasPrefix(c.Hash.String(), s.sinceHash) {
			t := c.Author.When
			s.sinceTime = &t
			return errFound
		}
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, errFound) {
		return walkErr
	}
	if s.sinceTime == nil {
		return errors.Newf("no commit matches prefix %q", s.sinceHash)
	}
	return nil
}

func commitItem(commit *object.Commit) map[string]any {
	hash := commit.Hash.String()
	parents := make([]any, 0, len(commit.ParentHashes))
	for _, p := range commit.ParentHashes {
		parents = append(parents, p.String())
	}
	return map[string]any{
		"hash":         hash,
		"short_hash":   hash[:7],
		"message":      commit.Message,
		"subject":      strings.TrimSpace(strings.Split(commit.Message, "\n")[0]),
		"author":       commit.Author.Name,
		"author_email": commit.Author.Email,
		"committer":    commit.Committer.Name,
		"timestamp":    commit.Author.When.Format(time.RFC3339),
		"parents":      parents,
	}
}

// Transform converts raw commit items into records keyed by full hash.
func Transform(ctx context.Context, rawItems []any, payload map[string]any) ([]ingest.Record, error) {
	records := make([]ingest.Record, 0, len(rawItems))
	for _, raw := range rawItems {
		item, ok := raw.(map[string]any)
		if !ok {
			return nil, errors.Newf("git transform expects map items, got %T", raw)
		}
		hash, _ := item["hash"].(string)
		if hash == "" {
			return nil, errors.New("git transform item missing hash")
		}

		records = append(records, ingest.Record{
			ID:      "commit-" + hash,
			Content: item["message"],
			Metadata: map[string]any{
				"shortHash":   item["short_hash"],
				"subject":     item["subject"],
				"author":      item["author"],
				"authorEmail": item["author_email"],
				"committer":   item["committer"],
				"timestamp":   item["timestamp"],
				"parents":     item["parents"],
			},
		})
	}
	return records, nil
}
