package replay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/MikeSquared-Agency/rapport/internal/service"
)

// Line is one interaction read from a JSONL log.
type Line struct {
	No      int
	Request service.Request
}

// ParseFile reads a JSONL file of interaction requests. Blank lines are
// skipped; malformed lines and lines without a user id are returned as
// errors alongside the parsed ones.
func ParseFile(path string) ([]Line, []error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	var (
		lines []Line
		bad   []error
		no    int
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024) // 10MB line buffer
	for scanner.Scan() {
		no++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var req service.Request
		if err := json.Unmarshal([]byte(raw), &req); err != nil {
			bad = append(bad, fmt.Errorf("%s:%d: %w", path, no, err))
			continue
		}
		if strings.TrimSpace(req.UserID) == "" {
			bad = append(bad, fmt.Errorf("%s:%d: missing user_id", path, no))
			continue
		}
		lines = append(lines, Line{No: no, Request: req})
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("scan: %w", err)
	}
	return lines, bad, nil
}
