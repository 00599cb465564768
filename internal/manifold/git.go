package manifold

import (
	"os/exec"
	"strconv"
	"strings"
)

// WorkingTree is a snapshot of `git status --porcelain`.
type WorkingTree struct {
	Modified  []string
	Staged    []string
	Untracked []string
}

// Dirty reports whether any change is pending.
func (w *WorkingTree) Dirty() bool {
	return len(w.Modified)+len(w.Staged)+len(w.Untracked) > 0
}

// workingTree parses porcelain status. A non-git directory yields an
// empty tree, not an error.
func workingTree(root string) (*WorkingTree, error) {
	out, err := exec.Command("git", "-C", root, "status", "--porcelain").Output()
	if err != nil {
		return &WorkingTree{}, nil
	}
	tree := &WorkingTree{}
	for _, line := range strings.Split(string(out), "\n") {
		if len(line) < 4 {
			continue
		}
		index, work := line[0], line[1]
		path := strings.TrimSpace(line[3:])
		// Renames are reported as "old -> new"; keep the new path.
		if i := strings.Index(path, " -> "); i >= 0 {
			path = path[i+4:]
		}
		switch {
		case index == '?' && work == '?':
			tree.Untracked = append(tree.Untracked, path)
		case work != ' ':
			tree.Modified = append(tree.Modified, path)
		case index != ' ':
			tree.Staged = append(tree.Staged, path)
		}
	}
	return tree, nil
}

func currentBranch(root string) (string, error) {
	out, err := exec.Command("git", "-C", root, "rev-parse", "--abbrev-ref", "HEAD").Output()
	if err != nil {
		return "", nil
	}
	return strings.TrimSpace(string(out)), nil
}

// conventionalTypes are the commit-type prefixes we recognize.
var conventionalTypes = map[string]bool{
	"feat": true, "fix": true, "docs": true, "style": true, "refactor": true,
	"perf": true, "test": true, "build": true, "ci": true, "chore": true,
	"revert": true,
}

// commitType parses a conventional-commit subject ("feat(scope)!: msg")
// into its type, or "" when the subject does not follow the convention.
func commitType(subject string) string {
	head, _, ok := strings.Cut(subject, ":")
	if !ok {
		return ""
	}
	head = strings.TrimSuffix(strings.TrimSpace(head), "!")
	if i := strings.Index(head, "("); i >= 0 {
		head = head[:i]
	}
	head = strings.ToLower(head)
	if conventionalTypes[head] {
		return head
	}
	return ""
}

// recentCommitTypes tallies conventional types over the last n subjects.
func recentCommitTypes(root string, n int) map[string]int {
	out, err := exec.Command("git", "-C", root, "log", "--max-count="+strconv.Itoa(n), "--format=%s").Output()
	if err != nil {
		return nil
	}
	counts := make(map[string]int)
	for _, subject := range strings.Split(string(out), "\n") {
		if t := commitType(subject); t != "" {
			counts[t]++
		}
	}
	return counts
}

// branchIntent extracts intent terms from a branch name like
// "feature/add-cache-layer" or "fix/sync-race".
func branchIntent(branch string) []string {
	var terms []string
	for _, part := range strings.FieldsFunc(branch, func(r rune) bool {
		return r == '/' || r == '-' || r == '_' || r == '.'
	}) {
		part = strings.ToLower(part)
		if part != "" {
			terms = append(terms, part)
		}
	}
	return terms
}
