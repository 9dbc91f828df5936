package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"jurismemo-backend/models"

	"github.com/goccy/go-yaml"
)

// readStructured decodes a JSON or YAML file into v. YAML is converted to JSON
// first so the models' JSON decoding rules apply to both.
func readStructured(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.YAMLToJSON(data)
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func readIntake(path string) (models.MemoRequest, error) {
	var req models.MemoRequest
	err := readStructured(path, &req)
	return req, err
}

// readChunks accepts either a bare list of chunks or an object with a "chunks" field
func readChunks(path string) ([]models.Chunk, error) {
	var chunks []models.Chunk
	if err := readStructured(path, &chunks); err == nil {
		return chunks, nil
	}

	var wrapped struct {
		Chunks []models.Chunk `json:"chunks"`
	}
	if err := readStructured(path, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Chunks, nil
}

func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}
