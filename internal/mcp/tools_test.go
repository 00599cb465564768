package mcp

import (
	"testing"

	"github.com/controlVector/cv-git/internal/repo"
)

func TestMutatingClause(t *testing.T) {
	mutating := []string{
		"CREATE (n:File {path: 'x'})",
		"MATCH (n) DETACH DELETE n",
		"match (n) set n.x = 1",
		"MERGE (a)-[:CALLS]->(b)",
		"MATCH (n) REMOVE n.flag",
		"DROP INDEX ON :File(path)",
	}
	for _, q := range mutating {
		if !mutatingClause.MatchString(q) {
			t.Errorf("mutating query not rejected: %q", q)
		}
	}

	readOnly := []string{
		"MATCH (f:File) RETURN f.path LIMIT 10",
		"MATCH (s:Symbol) WHERE s.name = 'Reset' RETURN s",
		// Clause keywords inside identifiers or strings must not trip
		// the word-boundary match.
		"MATCH (f:File) WHERE f.path CONTAINS 'assets' RETURN f.path",
		"MATCH (n:Symbol) WHERE n.name = 'createdAt' RETURN n.name",
	}
	for _, q := range readOnly {
		if mutatingClause.MatchString(q) {
			t.Errorf("read query falsely rejected: %q", q)
		}
	}
}

func TestAutoQueryFallback(t *testing.T) {
	s := &Server{paths: repo.NewPaths(t.TempDir())}
	if got := s.autoQuery(); got != "codebase overview" {
		t.Errorf("autoQuery outside git = %q, want overview fallback", got)
	}
}
