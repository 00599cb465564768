// Package traverse implements stateful codebase navigation: sessions
// with a position in the repo/module/file/symbol hierarchy, direction
// moves, and context assembly around the current position.
package traverse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/controlVector/cv-git/internal/summarize"
	"github.com/controlVector/cv-git/pkg/provider"
	"github.com/controlVector/cv-git/pkg/types"
)

// DefaultSessionLifetime expires idle sessions.
const DefaultSessionLifetime = time.Hour

// maxHistory bounds the per-session position history.
const maxHistory = 100

// Engine runs traversal sessions for one repository.
type Engine struct {
	graph      provider.GraphStore
	summarizer *summarize.Summarizer
	root       string
	sessionDir string
	lifetime   time.Duration
	logger     *slog.Logger
}

// Options bundles the engine collaborators.
type Options struct {
	Graph      provider.GraphStore
	Summarizer *summarize.Summarizer
	Root       string
	SessionDir string
	Lifetime   time.Duration
	Logger     *slog.Logger
}

// New creates a traversal engine.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lifetime := opts.Lifetime
	if lifetime <= 0 {
		lifetime = DefaultSessionLifetime
	}
	return &Engine{
		graph:      opts.Graph,
		summarizer: opts.Summarizer,
		root:       opts.Root,
		sessionDir: opts.SessionDir,
		lifetime:   lifetime,
		logger:     logger.With("component", "traverse"),
	}
}

// Move is one navigation request. A missing session id starts a new
// session at repo depth.
type Move struct {
	SessionID string          `json:"session_id,omitempty"`
	Direction types.Direction `json:"direction"`
	Target    string          `json:"target,omitempty"` // module path, file path, or qualified symbol
}

// Navigate applies a move and returns the assembled context.
func (e *Engine) Navigate(ctx context.Context, move Move) (*types.TraversalContextResult, error) {
	session, err := e.loadOrCreate(move.SessionID)
	if err != nil {
		return nil, err
	}

	next, err := e.apply(ctx, session.Position, move)
	if err != nil {
		return nil, err
	}

	if move.Direction != types.DirStay {
		session.History = append(session.History, session.Position)
		if len(session.History) > maxHistory {
			session.History = session.History[len(session.History)-maxHistory:]
		}
	}
	next.Timestamp = time.Now().UTC()
	session.Position = next
	session.LastActivity = next.Timestamp

	if err := e.save(session); err != nil {
		return nil, err
	}

	tc, hints, err := e.assemble(ctx, next)
	if err != nil {
		return nil, err
	}
	return &types.TraversalContextResult{
		SessionID: session.ID,
		Position:  next,
		Context:   *tc,
		Hints:     hints,
	}, nil
}

// apply computes the next position for a move.
func (e *Engine) apply(ctx context.Context, pos types.Position, move Move) (types.Position, error) {
	switch move.Direction {
	case types.DirStay:
		return pos, nil

	case types.DirIn:
		if move.Target == "" {
			return pos, fmt.Errorf("%w: direction %q requires a target", types.ErrValidation, move.Direction)
		}
		switch pos.Depth {
		case types.DepthRepo:
			return types.Position{Module: move.Target, Depth: types.DepthModule}, nil
		case types.DepthModule:
			return types.Position{Module: pos.Module, File: move.Target, Depth: types.DepthFile}, nil
		case types.DepthFile:
			sym, err := e.resolveSymbol(ctx, move.Target, pos.File)
			if err != nil {
				return pos, err
			}
			return types.Position{Module: pos.Module, File: pos.File, Symbol: sym, Depth: types.DepthSymbol}, nil
		default:
			return pos, fmt.Errorf("%w: already at symbol depth", types.ErrValidation)
		}

	case types.DirOut:
		switch pos.Depth {
		case types.DepthSymbol:
			return types.Position{Module: pos.Module, File: pos.File, Depth: types.DepthFile}, nil
		case types.DepthFile:
			return types.Position{Module: pos.Module, Depth: types.DepthModule}, nil
		case types.DepthModule:
			return types.Position{Depth: types.DepthRepo}, nil
		default:
			return pos, fmt.Errorf("%w: already at repo depth", types.ErrValidation)
		}

	case types.DirLateral:
		if move.Target == "" {
			return pos, fmt.Errorf("%w: direction %q requires a target", types.ErrValidation, move.Direction)
		}
		switch pos.Depth {
		case types.DepthModule:
			return types.Position{Module: move.Target, Depth: types.DepthModule}, nil
		case types.DepthFile:
			return types.Position{Module: moduleOf(move.Target), File: move.Target, Depth: types.DepthFile}, nil
		case types.DepthSymbol:
			sym, err := e.resolveSymbol(ctx, move.Target, pos.File)
			if err != nil {
				return pos, err
			}
			return types.Position{Module: pos.Module, File: fileOfSymbol(sym, pos.File), Symbol: sym, Depth: types.DepthSymbol}, nil
		default:
			return pos, fmt.Errorf("%w: no siblings at repo depth", types.ErrValidation)
		}

	case types.DirJump:
		return e.jumpTo(ctx, move.Target)

	default:
		return pos, fmt.Errorf("%w: unknown direction %q", types.ErrValidation, move.Direction)
	}
}

// jumpTo infers the depth of an absolute target: a known symbol key,
// then a known file, then a module directory, then repo root.
func (e *Engine) jumpTo(ctx context.Context, target string) (types.Position, error) {
	if target == "" {
		return types.Position{Depth: types.DepthRepo}, nil
	}
	if sym, err := e.graph.GetSymbol(ctx, target); err == nil {
		return types.Position{
			Module: moduleOf(sym.File), File: sym.File, Symbol: sym.QualifiedName,
			Depth: types.DepthSymbol,
		}, nil
	}
	if f, err := e.graph.GetFile(ctx, target); err == nil {
		return types.Position{Module: moduleOf(f.Path), File: f.Path, Depth: types.DepthFile}, nil
	}
	return types.Position{Module: target, Depth: types.DepthModule}, nil
}

// resolveSymbol maps a move target onto a qualified symbol name.
// Qualified names pass through untouched. A bare name resolves against
// the current file first, then repo-wide if the name is unique.
func (e *Engine) resolveSymbol(ctx context.Context, target, file string) (string, error) {
	if strings.Contains(target, ":") {
		return target, nil
	}

	rows, err := e.graph.Query(ctx,
		`MATCH (s:Symbol {name: $name, file: $file}) RETURN s.qualified_name LIMIT 1`,
		map[string]any{"name": target, "file": file})
	if err != nil {
		return "", err
	}
	if qn := firstQualified(rows); qn != "" {
		return qn, nil
	}

	rows, err = e.graph.Query(ctx,
		`MATCH (s:Symbol {name: $name}) RETURN s.qualified_name LIMIT 2`,
		map[string]any{"name": target})
	if err != nil {
		return "", err
	}
	if len(rows) == 1 {
		if qn := firstQualified(rows); qn != "" {
			return qn, nil
		}
	}
	if len(rows) > 1 {
		return "", fmt.Errorf("%w: symbol name %q is ambiguous, use the qualified name", types.ErrValidation, target)
	}
	return "", fmt.Errorf("%w: symbol %s", types.ErrNotFound, target)
}

func firstQualified(rows []map[string]any) string {
	if len(rows) == 0 {
		return ""
	}
	qn, _ := rows[0]["s.qualified_name"].(string)
	return qn
}

func moduleOf(file string) string {
	return filepath.ToSlash(filepath.Dir(file))
}

// fileOfSymbol extracts the file component of a qualified name, with a
// fallback to the current file for bare names.
func fileOfSymbol(qualified, fallback string) string {
	if idx := strings.Index(qualified, ":"); idx > 0 {
		return qualified[:idx]
	}
	return fallback
}

// =============================================================================
// Session persistence
// =============================================================================

func (e *Engine) sessionPath(id string) string {
	return filepath.Join(e.sessionDir, id+".json")
}

func (e *Engine) loadOrCreate(id string) (*types.TraversalSession, error) {
	if id == "" {
		return e.newSession(), nil
	}
	data, err := os.ReadFile(e.sessionPath(id))
	if os.IsNotExist(err) {
		return e.newSession(), nil
	}
	if err != nil {
		return nil, err
	}
	var session types.TraversalSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("corrupt session %s: %w", id, err)
	}
	if time.Since(session.LastActivity) > e.lifetime {
		os.Remove(e.sessionPath(id))
		return e.newSession(), nil
	}
	return &session, nil
}

func (e *Engine) newSession() *types.TraversalSession {
	now := time.Now().UTC()
	return &types.TraversalSession{
		ID:           uuid.NewString(),
		Position:     types.Position{Depth: types.DepthRepo, Timestamp: now},
		CreatedAt:    now,
		LastActivity: now,
	}
}

func (e *Engine) save(session *types.TraversalSession) error {
	if err := os.MkdirAll(e.sessionDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(e.sessionPath(session.ID), data, 0o644)
}

// Expire removes sessions idle past the lifetime. Returns how many
// were removed.
func (e *Engine) Expire() (int, error) {
	entries, err := os.ReadDir(e.sessionDir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(e.sessionDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var session types.TraversalSession
		if err := json.Unmarshal(data, &session); err != nil {
			os.Remove(path)
			removed++
			continue
		}
		if time.Since(session.LastActivity) > e.lifetime {
			os.Remove(path)
			removed++
		}
	}
	return removed, nil
}

// ActiveSessions counts unexpired sessions.
func (e *Engine) ActiveSessions() int {
	entries, err := os.ReadDir(e.sessionDir)
	if err != nil {
		return 0
	}
	count := 0
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".json") {
			count++
		}
	}
	return count
}
