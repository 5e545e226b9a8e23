// File: internal/screen/codec.go
package screen

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"github.com/xkilldash9x/taskpilot/api/schemas"
)

// DecodeSnapshot parses one JSON snapshot and restores the tree's parent links.
func DecodeSnapshot(data []byte) (*schemas.Snapshot, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, schemas.ErrNoSnapshot
	}
	var snap schemas.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	snap.Root.Link()
	return &snap, nil
}

// EncodeSnapshot serializes a snapshot as a single JSON line.
func EncodeSnapshot(snap *schemas.Snapshot) ([]byte, error) {
	if snap == nil {
		return nil, schemas.ErrNoSnapshot
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// Decode picks the format from the payload. Inputs starting with '<' are
// treated as uiautomator dumps stamped with takenAt, everything else as JSON.
func Decode(data []byte, takenAt time.Time) (*schemas.Snapshot, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '<' {
		return SnapshotFromHierarchy(strings.NewReader(string(trimmed)), takenAt)
	}
	return DecodeSnapshot(trimmed)
}
