package search

import (
	"fmt"
	"testing"

	"github.com/controlVector/cv-git/pkg/types"
)

func TestFilterPayload(t *testing.T) {
	if got := (Filter{}).payload(); got != nil {
		t.Errorf("empty filter payload = %v, want nil", got)
	}

	got := Filter{Language: "go"}.payload()
	if len(got) != 1 || got["language"] != "go" {
		t.Errorf("payload = %v", got)
	}

	got = Filter{Language: "python", File: "app.py"}.payload()
	if len(got) != 2 || got["file"] != "app.py" {
		t.Errorf("payload = %v", got)
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(types.ErrNotFound) {
		t.Error("sentinel not recognized")
	}
	if !IsNotFound(fmt.Errorf("%w: symbol x", types.ErrNotFound)) {
		t.Error("wrapped sentinel not recognized")
	}
	if IsNotFound(types.ErrValidation) {
		t.Error("unrelated sentinel matched")
	}
	if IsNotFound(nil) {
		t.Error("nil matched")
	}
}
