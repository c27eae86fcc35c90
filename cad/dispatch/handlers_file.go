package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BaSui01/agentcad/cad/fileio"
	"github.com/BaSui01/agentcad/cad/geometry"
	"github.com/BaSui01/agentcad/cad/history"
	"github.com/BaSui01/agentcad/cad/model"
)

func (d *Dispatcher) handleFileExport(ctx context.Context, c *call) (any, error) {
	if _, err := d.resolveWorkspace(ctx, c); err != nil {
		return nil, err
	}
	format, perr := c.params.StringRequired("format")
	if perr != nil {
		return nil, perr
	}
	path, perr := c.params.StringRequired("path")
	if perr != nil {
		return nil, perr
	}

	entities, err := d.st.ListEntitiesByWorkspace(ctx, c.workspaceID)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating export file: %w", err)
	}
	defer f.Close()

	result := map[string]any{
		"format":       format,
		"path":         path,
		"workspace":    c.workspaceID,
		"entity_count": len(entities),
	}

	switch format {
	case "json":
		if err := fileio.ExportJSON(f, entities); err != nil {
			return nil, err
		}

	case "stl":
		preset := geometry.TessellationPreset(c.params.String("quality", string(geometry.PresetStandard)))
		tris, terr := d.tessellateWorkspace(ctx, entities, preset)
		if terr != nil {
			return nil, terr
		}
		if c.params.Bool("ascii", false) {
			err = fileio.ExportSTLASCII(f, c.workspaceID, tris)
		} else {
			err = fileio.ExportSTLBinary(f, c.workspaceID, tris)
		}
		if err != nil {
			return nil, err
		}
		result["triangle_count"] = len(tris)
		result["quality"] = preset

	case "step":
		schemaName := c.params.String("schema", string(fileio.DefaultStepSchema))
		if !fileio.ValidStepSchema(schemaName) {
			return nil, New(CodeUnsupportedFormat, fmt.Sprintf("unsupported format: unknown STEP schema %q", schemaName)).
				WithField("schema").WithValue(schemaName)
		}
		if err := fileio.ExportSTEP(f, c.workspaceID, fileio.StepSchema(schemaName), entities, time.Now()); err != nil {
			return nil, err
		}
		result["schema"] = schemaName
		result["units"] = "mm"
		result["data_loss"] = false

	default:
		return nil, New(CodeUnsupportedFormat, fmt.Sprintf("unsupported format %q", format)).
			WithField("format").WithValue(format).
			WithSuggestion("Supported formats: json, stl, step")
	}

	return result, nil
}

// tessellateWorkspace meshes every solid in the workspace at the given
// preset, with the kernel deciding the facet density.
func (d *Dispatcher) tessellateWorkspace(ctx context.Context, entities []*model.Entity, preset geometry.TessellationPreset) ([]fileio.Triangle, error) {
	var tris []fileio.Triangle
	for _, e := range entities {
		if e.EntityType != model.EntitySolid {
			continue
		}
		props, err := d.st.GetSolidProperties(ctx, e.EntityID)
		if err != nil {
			return nil, err
		}
		count, err := d.kernel.Tessellate(props.SurfaceArea, preset)
		if err != nil {
			return nil, err
		}
		tris = append(tris, fileio.TessellateBox(props.BoundingBox, count)...)
	}
	return tris, nil
}

func (d *Dispatcher) handleFileImport(ctx context.Context, c *call) (any, error) {
	if _, err := d.resolveWorkspace(ctx, c); err != nil {
		return nil, err
	}
	format := c.params.String("format", "json")
	path, perr := c.params.StringRequired("path")
	if perr != nil {
		return nil, perr
	}
	if format != "json" {
		return nil, New(CodeUnsupportedFormat, fmt.Sprintf("unsupported format %q for import", format)).
			WithField("format").WithValue(format).
			WithSuggestion("Only json imports are lossless")
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, New(CodeFileNotFound, fmt.Sprintf("file not found: %s", path)).WithField("path").WithValue(path)
		}
		return nil, err
	}
	defer f.Close()

	entities, err := fileio.ImportJSON(f, c.workspaceID, c.agentID)
	if err != nil {
		return nil, New(CodeImportFailed, err.Error()).WithCause(err)
	}

	imported := make([]string, 0, len(entities))
	for _, e := range entities {
		e.EntityID = mintEntityID(c.workspaceID, e.EntityType)
		if err := d.st.CreateEntity(ctx, e); err != nil {
			return nil, err
		}
		imported = append(imported, e.EntityID)
	}
	if len(imported) > 0 {
		if err := d.ws.MarkModified(ctx, c.workspaceID); err != nil {
			return nil, err
		}
	}
	c.outputEntities = imported
	c.historyEntry = &history.Entry{
		OperationType: c.method,
		WorkspaceID:   c.workspaceID,
		Params:        map[string]any(c.params),
		Result:        map[string]any{"imported": len(imported)},
	}

	return map[string]any{
		"imported":   len(imported),
		"entity_ids": imported,
		"workspace":  c.workspaceID,
	}, nil
}
