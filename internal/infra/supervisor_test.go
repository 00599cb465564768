package infra

import (
	"net"
	"strings"
	"testing"
)

func TestFreePortSkipsBoundPort(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	bound := l.Addr().(*net.TCPAddr).Port

	got, err := freePort(bound)
	if err != nil {
		t.Fatal(err)
	}
	if got == bound {
		t.Errorf("freePort returned the bound port %d", got)
	}
	if got < bound || got >= bound+portScanRange {
		t.Errorf("freePort = %d, outside scan range from %d", got, bound)
	}
}

func TestFreePortPrefersRequested(t *testing.T) {
	// Grab any free port, release it, and ask for it back.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	got, err := freePort(port)
	if err != nil {
		t.Fatal(err)
	}
	if got != port {
		t.Errorf("freePort = %d, want preferred %d", got, port)
	}
}

func TestBackendDefinitions(t *testing.T) {
	for _, b := range []Backend{FalkorDB(), Qdrant(), Ollama()} {
		if !strings.HasPrefix(b.ContainerName, "cv-git-") {
			t.Errorf("%s container = %q, want cv-git- prefix", b.Name, b.ContainerName)
		}
		if b.DefaultPort == 0 || b.ContainerPort == 0 {
			t.Errorf("%s ports = %d/%d", b.Name, b.DefaultPort, b.ContainerPort)
		}
		if b.Image == "" || b.Health == nil || b.URL == nil {
			t.Errorf("%s backend incomplete", b.Name)
		}
	}

	if got := Qdrant().URL(6400); got != "http://localhost:6400" {
		t.Errorf("qdrant url = %q", got)
	}
	if got := FalkorDB().URL(6500); got != "redis://localhost:6500" {
		t.Errorf("falkordb url = %q", got)
	}
}
