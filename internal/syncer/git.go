package syncer

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/controlVector/cv-git/pkg/types"
)

// maxImportedCommits bounds one history import pass.
const maxImportedCommits = 500

// gitCommit is one parsed `git log --numstat` entry.
type gitCommit struct {
	sha        string
	author     string
	timestamp  time.Time
	message    string
	files      []string
	insertions int
	deletions  int
}

// importGitHistory reads the git log and mirrors it into the graph:
// Commit nodes, MODIFIES edges to files still present, TOUCHES edges
// to the symbols those files define, and commit-message vectors.
// Commits already in the graph are skipped.
func (s *Syncer) importGitHistory(ctx context.Context) (int, error) {
	commits, err := s.readGitLog(ctx)
	if err != nil {
		return 0, err
	}

	imported := 0
	var points []*types.VectorPoint
	var texts []string

	for _, c := range commits {
		if _, err := s.graph.GetCommit(ctx, c.sha); err == nil {
			continue // history is immutable; first import wins
		}

		if err := s.graph.UpsertCommit(ctx, &types.CommitNode{
			SHA:          c.sha,
			Message:      c.message,
			Author:       c.author,
			Timestamp:    c.timestamp,
			FilesChanged: len(c.files),
			Insertions:   c.insertions,
			Deletions:    c.deletions,
		}); err != nil {
			return imported, err
		}

		for _, f := range c.files {
			if err := s.graph.CreateEdge(ctx, &types.Edge{
				Type:    types.EdgeModifies,
				FromKey: c.sha,
				ToKey:   f,
			}); err != nil {
				return imported, err
			}
			symbols, err := s.graph.SymbolsInFile(ctx, f)
			if err != nil {
				return imported, err
			}
			for _, sym := range symbols {
				if err := s.graph.CreateEdge(ctx, &types.Edge{
					Type:    types.EdgeTouches,
					FromKey: c.sha,
					ToKey:   sym.QualifiedName,
				}); err != nil {
					return imported, err
				}
			}
		}

		points = append(points, &types.VectorPoint{
			ID: "commit:" + c.sha,
			Payload: map[string]any{
				"sha":       c.sha,
				"author":    c.author,
				"timestamp": c.timestamp.UTC().Format(time.RFC3339),
				"content":   c.message,
			},
		})
		texts = append(texts, c.message)
		imported++
	}

	if len(points) > 0 {
		vectors, err := s.embed(ctx, texts)
		if err != nil {
			return imported, err
		}
		for i := range points {
			points[i].Vector = vectors[i]
		}
		coll := types.CollectionName(s.repoID, types.CollectionCommits)
		if err := s.vector.Upsert(ctx, coll, points); err != nil {
			return imported, err
		}
	}
	return imported, nil
}

// readGitLog shells out to git; worktrees without git history are not
// an error, just an empty import.
func (s *Syncer) readGitLog(ctx context.Context) ([]gitCommit, error) {
	cmd := exec.CommandContext(ctx, "git",
		"-C", s.paths.Root,
		"log", fmt.Sprintf("--max-count=%d", maxImportedCommits),
		"--numstat", "--no-merges",
		"--format=@@%H|%an|%aI|%s")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		if strings.Contains(err.Error(), "executable file not found") {
			return nil, nil
		}
		// Not a git repo, or no commits yet.
		return nil, nil
	}

	var commits []gitCommit
	var cur *gitCommit

	scanner := bufio.NewScanner(&out)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "@@") {
			if cur != nil {
				commits = append(commits, *cur)
			}
			parts := strings.SplitN(line[2:], "|", 4)
			if len(parts) != 4 {
				cur = nil
				continue
			}
			ts, _ := time.Parse(time.RFC3339, parts[2])
			cur = &gitCommit{
				sha:       parts[0],
				author:    parts[1],
				timestamp: ts,
				message:   parts[3],
			}
			continue
		}
		if cur == nil || strings.TrimSpace(line) == "" {
			continue
		}
		// numstat line: "<ins>\t<del>\t<path>"
		fields := strings.Split(line, "\t")
		if len(fields) != 3 {
			continue
		}
		if ins, err := strconv.Atoi(fields[0]); err == nil {
			cur.insertions += ins
		}
		if del, err := strconv.Atoi(fields[1]); err == nil {
			cur.deletions += del
		}
		cur.files = append(cur.files, fields[2])
	}
	if cur != nil {
		commits = append(commits, *cur)
	}
	return commits, scanner.Err()
}
