package conflicts

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/breezy-team/gomerge/pkg/object"
)

// record is the serialized key/value form of one conflict. Identifier
// values are stored as text and decoded back to FileID on load.
type record struct {
	Type           string `yaml:"type"`
	Path           string `yaml:"path"`
	FileID         string `yaml:"file_id,omitempty"`
	ConflictPath   string `yaml:"conflict_path,omitempty"`
	ConflictFileID string `yaml:"conflict_file_id,omitempty"`
	Action         string `yaml:"action,omitempty"`
}

// AsRecord serializes the conflict to its structured record bytes.
func (c *Conflict) AsRecord() ([]byte, error) {
	rec := record{
		Type:           string(c.Kind),
		Path:           c.Path,
		FileID:         string(c.FileID),
		ConflictPath:   c.ConflictPath,
		ConflictFileID: string(c.ConflictFileID),
		Action:         c.Action,
	}
	data, err := yaml.Marshal(&rec)
	if err != nil {
		return nil, fmt.Errorf("conflict record: %w", err)
	}
	return data, nil
}

// FromRecord deserializes one conflict record. A missing type, or a type
// outside the registered taxonomy, is a fatal error: the caller treats
// the whole persisted list as corrupt.
func FromRecord(data []byte) (*Conflict, error) {
	var rec record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("conflict record: %w", err)
	}
	return fromRecord(rec)
}

func fromRecord(rec record) (*Conflict, error) {
	if rec.Type == "" {
		return nil, fmt.Errorf("conflict record: missing type")
	}
	kind := Kind(rec.Type)
	if _, ok := knownKinds[kind]; !ok {
		return nil, fmt.Errorf("conflict record: unknown type %q", rec.Type)
	}
	return &Conflict{
		Kind:           kind,
		Path:           rec.Path,
		FileID:         object.FileID(rec.FileID),
		ConflictPath:   rec.ConflictPath,
		ConflictFileID: object.FileID(rec.ConflictFileID),
		Action:         rec.Action,
	}, nil
}

// MarshalList serializes a whole conflict list as one YAML document.
func MarshalList(list ConflictList) ([]byte, error) {
	recs := make([]record, len(list))
	for i, c := range list {
		recs[i] = record{
			Type:           string(c.Kind),
			Path:           c.Path,
			FileID:         string(c.FileID),
			ConflictPath:   c.ConflictPath,
			ConflictFileID: string(c.ConflictFileID),
			Action:         c.Action,
		}
	}
	data, err := yaml.Marshal(recs)
	if err != nil {
		return nil, fmt.Errorf("conflict list: %w", err)
	}
	return data, nil
}

// UnmarshalList loads a whole conflict list. One malformed record fails
// the entire load; a partially usable conflict list is worse than an
// error.
func UnmarshalList(data []byte) (ConflictList, error) {
	var recs []record
	if err := yaml.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("conflict list: %w", err)
	}
	list := make(ConflictList, 0, len(recs))
	for i, rec := range recs {
		c, err := fromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("conflict list: record %d: %w", i, err)
		}
		list = append(list, c)
	}
	return list, nil
}
