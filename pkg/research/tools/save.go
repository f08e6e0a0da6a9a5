package tools

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
)

// SaveTool appends research notes to a text file.
type SaveTool struct {
	Path string
	now  func() time.Time
	mu   sync.Mutex
}

func NewSaveTool(path string) *SaveTool {
	if path == "" {
		path = "output.txt"
	}
	return &SaveTool{Path: path, now: time.Now}
}

func (s *SaveTool) Name() string {
	return "save_to_txt"
}

func (s *SaveTool) Description() string {
	return "saves structured research data to a text file."
}

// Call appends a timestamped block containing input.
func (s *SaveTool) Call(ctx context.Context, input string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	timestamp := s.now().Format("2006-01-02_15-04-05")
	block := fmt.Sprintf("-----\n%s\n---\n%s\n---\n", timestamp, input)

	f, err := os.OpenFile(s.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", s.Path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(block); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", s.Path, err)
	}
	return fmt.Sprintf("File saved successfully to %s!", s.Path), nil
}
