package infra

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// Canonical container names. Stable so re-runs find their containers.
const (
	FalkorContainer = "cv-git-falkordb"
	QdrantContainer = "cv-git-qdrant"
	OllamaContainer = "cv-git-ollama"
)

// FalkorDB returns the graph store backend definition.
func FalkorDB() Backend {
	return Backend{
		Name:          "falkordb",
		Image:         "falkordb/falkordb:latest",
		ContainerName: FalkorContainer,
		DefaultPort:   6379,
		ContainerPort: 6379,
		Args:          []string{"-v", "cv-git-falkordb-data:/data"},
		URL:           func(port int) string { return fmt.Sprintf("redis://localhost:%d", port) },
		Health:        falkorHealth,
	}
}

// Qdrant returns the vector store backend definition.
func Qdrant() Backend {
	return Backend{
		Name:          "qdrant",
		Image:         "qdrant/qdrant:latest",
		ContainerName: QdrantContainer,
		DefaultPort:   6333,
		ContainerPort: 6333,
		Args:          []string{"-v", "cv-git-qdrant-data:/qdrant/storage"},
		URL:           func(port int) string { return fmt.Sprintf("http://localhost:%d", port) },
		Health:        httpHealth("/collections"),
	}
}

// Ollama returns the embedding server backend definition.
func Ollama() Backend {
	return Backend{
		Name:          "ollama",
		Image:         "ollama/ollama:latest",
		ContainerName: OllamaContainer,
		DefaultPort:   11434,
		ContainerPort: 11434,
		Args:          []string{"-v", "cv-git-ollama-data:/root/.ollama"},
		URL:           func(port int) string { return fmt.Sprintf("http://localhost:%d", port) },
		Health:        httpHealth("/api/tags"),
	}
}

// falkorHealth pings through the redis protocol and checks the graph
// module is loaded.
func falkorHealth(ctx context.Context, url string) error {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return err
	}
	client := redis.NewClient(opts)
	defer client.Close()

	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(probeCtx).Err(); err != nil {
		return err
	}
	// GRAPH.LIST errors on plain redis without the graph module.
	return client.Do(probeCtx, "GRAPH.LIST").Err()
}

// httpHealth probes a path expecting any 2xx.
func httpHealth(path string) HealthFunc {
	return func(ctx context.Context, url string) error {
		probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url+path, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
		}
		return nil
	}
}

// PullProgress reports streamed model download progress.
type PullProgress func(status string, completed, total int64)

// EnsureModel checks the embedding server has a model pulled and pulls
// it when missing, streaming progress through the callback.
func EnsureModel(ctx context.Context, baseURL, model string, progress PullProgress) error {
	if has, err := hasModel(ctx, baseURL, model); err != nil {
		return err
	} else if has {
		return nil
	}

	body, err := json.Marshal(map[string]any{"model": model, "stream": true})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pull %s: status %d", model, resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var line struct {
			Status    string `json:"status"`
			Completed int64  `json:"completed"`
			Total     int64  `json:"total"`
			Error     string `json:"error"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			continue
		}
		if line.Error != "" {
			return fmt.Errorf("pull %s: %s", model, line.Error)
		}
		if progress != nil {
			progress(line.Status, line.Completed, line.Total)
		}
	}
	return scanner.Err()
}

func hasModel(ctx context.Context, baseURL, model string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return false, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("list models: status %d", resp.StatusCode)
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false, err
	}
	for _, m := range tags.Models {
		if m.Name == model || m.Name == model+":latest" {
			return true, nil
		}
	}
	return false, nil
}
