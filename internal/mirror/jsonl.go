package mirror

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// JSONLSink appends records to <dir>/<collection>.jsonl.
type JSONLSink struct {
	dir string
	mu  sync.Mutex
}

func NewJSONLSink(dir string) *JSONLSink {
	return &JSONLSink{dir: dir}
}

// Path returns the file a collection is appended to.
func (s *JSONLSink) Path(collection string) string {
	return filepath.Join(s.dir, collection+".jsonl")
}

func (s *JSONLSink) InsertMany(ctx context.Context, collection string, records []interface{}) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create mirror dir: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.Path(collection), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open mirror file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal %s record: %w", collection, err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write %s record: %w", collection, err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush mirror: %w", err)
	}
	return nil
}

func (s *JSONLSink) Close(context.Context) error {
	return nil
}
