package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/controlVector/cv-git/pkg/types"
)

func (s *Server) handleRecordSessionKnowledge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := req.GetString("session_id", "")
	summary := req.GetString("summary", "")
	if sessionID == "" || summary == "" {
		return mcp.NewToolResultError("session_id and summary are required"), nil
	}

	turn, err := s.nextTurn(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("turn lookup failed: %v", err)), nil
	}

	node := &types.SessionKnowledgeNode{
		SessionID:         sessionID,
		TurnNumber:        turn,
		Summary:           summary,
		Concern:           req.GetString("concern", ""),
		FilesTouched:      req.GetStringSlice("files_touched", nil),
		SymbolsReferenced: req.GetStringSlice("symbols_referenced", nil),
		Timestamp:         time.Now().UTC(),
	}
	if err := s.graph.UpsertSessionKnowledge(ctx, node); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("record failed: %v", err)), nil
	}

	// Chain to the previous turn of the same session.
	if turn > 1 {
		prev := fmt.Sprintf("%s:%d", sessionID, turn-1)
		if err := s.graph.CreateEdge(ctx, &types.Edge{
			Type: types.EdgeFollows, FromKey: node.Key(), ToKey: prev,
		}); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("chain edge failed: %v", err)), nil
		}
	}

	// ABOUT edges link knowledge to its subjects; missing targets are
	// skipped, not errors — the knowledge may predate a sync.
	linked := 0
	for _, path := range node.FilesTouched {
		if s.aboutEdge(ctx, node.Key(), path, "touched") {
			linked++
		}
	}
	for _, name := range node.SymbolsReferenced {
		if s.aboutEdge(ctx, node.Key(), name, "referenced") {
			linked++
		}
	}

	return jsonResult(map[string]any{
		"key":    node.Key(),
		"turn":   turn,
		"linked": linked,
	}), nil
}

// aboutEdge links knowledge to a subject matched by path or qualified
// name. The edge merge is a silent no-op when no node matches, so the
// subject is checked first; only real links count.
func (s *Server) aboutEdge(ctx context.Context, fromKey, target, role string) bool {
	rows, err := s.graph.Query(ctx,
		"MATCH (n) WHERE n.path = $target OR n.qualified_name = $target RETURN count(n)",
		map[string]any{"target": target})
	if err != nil {
		s.logger.Debug("about edge skipped", "target", target, "error", err)
		return false
	}
	if firstCount(rows) == 0 {
		s.logger.Debug("about edge skipped", "target", target, "reason", "no matching node")
		return false
	}

	err = s.graph.CreateEdge(ctx, &types.Edge{
		Type:       types.EdgeAbout,
		FromKey:    fromKey,
		ToKey:      target,
		Properties: map[string]any{"role": role},
	})
	if err != nil {
		s.logger.Debug("about edge skipped", "target", target, "error", err)
		return false
	}
	return true
}

func firstCount(rows []map[string]any) int {
	if len(rows) == 0 {
		return 0
	}
	for _, v := range rows[0] {
		switch t := v.(type) {
		case int64:
			return int(t)
		case int:
			return t
		case float64:
			return int(t)
		}
	}
	return 0
}

// nextTurn is 1 + the highest recorded turn for a session.
func (s *Server) nextTurn(ctx context.Context, sessionID string) (int, error) {
	rows, err := s.graph.Query(ctx,
		"MATCH (k:SessionKnowledge) WHERE k.session_id = $sid RETURN max(k.turn_number)",
		map[string]any{"sid": sessionID})
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 1, nil
	}
	for _, v := range rows[0] {
		switch t := v.(type) {
		case int64:
			return int(t) + 1, nil
		case int:
			return t + 1, nil
		case float64:
			return int(t) + 1, nil
		}
	}
	return 1, nil
}
