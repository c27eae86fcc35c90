// Package fileio implements the JSON, STL, and STEP codecs behind the
// file.export and file.import operations. Codecs read and write
// streams; path handling and workspace resolution stay in the
// dispatcher.
package fileio

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/BaSui01/agentcad/cad/model"
)

// FormatVersion is stamped into every JSON export.
const FormatVersion = "1.0"

// Document is the JSON interchange shape: enough per entity to
// round-trip losslessly through import.
type Document struct {
	FormatVersion string          `json:"format_version"`
	EntityCount   int             `json:"entity_count"`
	Entities      []*model.Entity `json:"entities"`
}

// ExportJSON writes the entities of a workspace as a JSON document.
func ExportJSON(w io.Writer, entities []*model.Entity) error {
	doc := Document{
		FormatVersion: FormatVersion,
		EntityCount:   len(entities),
		Entities:      entities,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("encoding JSON export: %w", err)
	}
	return nil
}

// ImportJSON parses a JSON document and rebinds every entity to the
// given workspace, preserving type and identifying properties. Entity
// ids are returned as they appear in the document; the dispatcher's
// import handler replaces each with a freshly minted id under the
// target workspace prefix, so the original local part is not kept.
func ImportJSON(r io.Reader, workspaceID, agentID string) ([]*model.Entity, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("import failed: malformed JSON document: %w", err)
	}
	if doc.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("import failed: unsupported format_version %q", doc.FormatVersion)
	}
	if doc.EntityCount != len(doc.Entities) {
		return nil, fmt.Errorf("import failed: entity_count %d does not match %d entities", doc.EntityCount, len(doc.Entities))
	}

	now := time.Now().UTC()
	out := make([]*model.Entity, 0, len(doc.Entities))
	for i, e := range doc.Entities {
		if e.EntityType == "" {
			return nil, fmt.Errorf("import failed: entity %d has no entity_type", i)
		}
		clone := *e
		clone.WorkspaceID = workspaceID
		clone.ModifiedAt = now
		if clone.CreatedAt.IsZero() {
			clone.CreatedAt = now
		}
		if clone.CreatedByAgent == "" {
			clone.CreatedByAgent = agentID
		}
		out = append(out, &clone)
	}
	return out, nil
}
