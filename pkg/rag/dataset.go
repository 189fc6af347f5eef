package rag

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Record is one knowledge base entry before indexing.
type Record struct {
	ID       string            `json:"id,omitempty" yaml:"id,omitempty"`
	Content  string            `json:"content" yaml:"content"`
	Source   string            `json:"source,omitempty" yaml:"source,omitempty"`
	Question string            `json:"question,omitempty" yaml:"question,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// contentKeys are the fields accepted as passage text, in order of preference. The WebMD
// export stores the passage under "Prompt".
var contentKeys = []string{"content", "text", "prompt", "Prompt"}

// LoadDataset reads records from a .jsonl/.ndjson file (one object per line) or a
// .yaml/.yml file (a list of objects). limit > 0 keeps only the first limit records.
func LoadDataset(path string, limit int) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open dataset %s", path)
	}
	defer func() {
		_ = f.Close()
	}()

	var records []Record
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson", ".json":
		records, err = decodeJSONLines(f, limit)
	case ".yaml", ".yml":
		records, err = decodeYAML(f)
	default:
		return nil, errors.Errorf("unsupported dataset format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decode dataset %s", path)
	}

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func decodeJSONLines(r io.Reader, limit int) ([]Record, error) {
	var records []Record
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var raw map[string]interface{}
		if err := json.Unmarshal([]byte(text), &raw); err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		if rec, ok := recordFromMap(raw); ok {
			records = append(records, rec)
		}
		if limit > 0 && len(records) >= limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func decodeYAML(r io.Reader) ([]Record, error) {
	var raws []map[string]interface{}
	if err := yaml.NewDecoder(r).Decode(&raws); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	records := make([]Record, 0, len(raws))
	for _, raw := range raws {
		if rec, ok := recordFromMap(raw); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

// recordFromMap picks the passage text and the recognized fields; every other scalar field
// ends up in Metadata. Rows without text are skipped.
func recordFromMap(raw map[string]interface{}) (Record, bool) {
	rec := Record{Metadata: map[string]string{}}
	for _, key := range contentKeys {
		if v, ok := raw[key].(string); ok && strings.TrimSpace(v) != "" {
			rec.Content = v
			break
		}
	}
	if strings.TrimSpace(rec.Content) == "" {
		return Record{}, false
	}

	for k, v := range raw {
		if v == nil || isContentKey(k) {
			continue
		}
		switch k {
		case "id":
			rec.ID = fmt.Sprint(v)
		case "source":
			rec.Source = fmt.Sprint(v)
		case "question":
			rec.Question = fmt.Sprint(v)
		case "metadata":
			if m, ok := v.(map[string]interface{}); ok {
				for mk, mv := range m {
					rec.Metadata[mk] = fmt.Sprint(mv)
				}
			}
		default:
			switch v.(type) {
			case map[string]interface{}, []interface{}:
				continue
			}
			rec.Metadata[k] = fmt.Sprint(v)
		}
	}
	return rec, true
}

func isContentKey(k string) bool {
	for _, c := range contentKeys {
		if c == k {
			return true
		}
	}
	return false
}
