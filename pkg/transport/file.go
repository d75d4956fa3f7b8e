package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/flagsync/pkg/feature"
)

// FileTransport reads configuration from a local JSON or YAML file. The file
// modification time serves as the updated-at timestamp, so editing the file
// triggers a full sync on the next probe.
type FileTransport struct {
	path string
}

func NewFileTransport(path string) (*FileTransport, error) {
	if path == "" {
		return nil, errors.Join(ErrInvalidConfig, errors.New("file path is required"))
	}
	return &FileTransport{path: path}, nil
}

func (t *FileTransport) FetchConfig(ctx context.Context, mode Mode) (*Response, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(ErrRequestFailed, err)
	}

	info, err := os.Stat(t.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, errors.Join(ErrConfigNotFound, err)
	}
	if err != nil {
		return nil, errors.Join(ErrRequestFailed, err)
	}
	header := UpdatedAtHeader(float64(info.ModTime().UnixMilli()) / 1000)

	if mode == ModeTimeOnly {
		return &Response{Header: header}, nil
	}

	raw, err := os.ReadFile(t.path)
	if err != nil {
		return nil, errors.Join(ErrRequestFailed, err)
	}
	if isYAML(t.path) {
		if raw, err = yamlToJSON(raw); err != nil {
			return nil, errors.Join(ErrDecodePayload, err)
		}
	}

	schema, err := feature.ParseSchema(raw)
	if err != nil {
		return nil, errors.Join(ErrDecodePayload, err)
	}
	return &Response{Schema: schema, Raw: raw, Header: header}, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}
