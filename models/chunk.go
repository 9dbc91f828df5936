package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// UnknownECLI marks a chunk whose source decision could not be identified
const UnknownECLI = "UNKNOWN"

// ChunkID identifies a stored chunk. The store emits numeric ids while clients
// echo them back as strings, so both encodings are accepted.
type ChunkID string

// UnmarshalJSON accepts a JSON string or number
func (id *ChunkID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ChunkID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("chunk id must be a string or number: %w", err)
	}
	*id = ChunkID(n.String())
	return nil
}

// Chunk is a fragment of a court decision used as grounding evidence
type Chunk struct {
	ID            ChunkID                `json:"id,omitempty"`
	ECLI          string                 `json:"ecli"`
	Text          string                 `json:"text"`
	Similarity    float64                `json:"similarity"`
	ChunkIndex    int                    `json:"chunk_index"`
	SubChunkIndex int                    `json:"sub_chunk_index"`
	Metadata      map[string]interface{} `json:"metadata"`
}

// MetaString returns a metadata value rendered as text, or "" when absent
func (c Chunk) MetaString(key string) string {
	return metaString(c.Metadata, key)
}

// Title returns the decision title from metadata
func (c Chunk) Title() string { return c.MetaString("title") }

// Court returns the issuing court from metadata
func (c Chunk) Court() string { return c.MetaString("court") }

// Date returns the decision date from metadata
func (c Chunk) Date() string { return c.MetaString("date") }

// Section returns the section label from metadata
func (c Chunk) Section() string { return c.MetaString("section") }

// ResolveECLI picks the source identifier for a chunk: the explicit ECLI,
// then metadata.ecli, then the first word of metadata.title, then UnknownECLI.
func ResolveECLI(ecli string, metadata map[string]interface{}) string {
	if e := strings.TrimSpace(ecli); e != "" {
		return e
	}
	if e := strings.TrimSpace(metaString(metadata, "ecli")); e != "" {
		return e
	}
	if fields := strings.Fields(metaString(metadata, "title")); len(fields) > 0 {
		return fields[0]
	}
	return UnknownECLI
}

// MetaInt reads an integer metadata value, falling back to def when absent or not numeric
func MetaInt(metadata map[string]interface{}, key string, def int) int {
	switch v := metadata[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return def
}

func metaString(metadata map[string]interface{}, key string) string {
	v, ok := metadata[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
