package fileio

import (
	"bufio"
	"fmt"
	"io"
	"time"

	"github.com/BaSui01/agentcad/cad/model"
)

// StepSchema selects the ISO-10303 application protocol of an export.
type StepSchema string

const (
	StepAP203 StepSchema = "AP203"
	StepAP214 StepSchema = "AP214"
	StepAP242 StepSchema = "AP242"
)

// DefaultStepSchema is used when the request names no schema.
const DefaultStepSchema = StepAP214

var stepSchemaIdentifiers = map[StepSchema]string{
	StepAP203: "CONFIG_CONTROL_DESIGN",
	StepAP214: "AUTOMOTIVE_DESIGN { 1 0 10303 214 1 1 1 1 }",
	StepAP242: "AP242_MANAGED_MODEL_BASED_3D_ENGINEERING_MIM_LF { 1 0 10303 442 1 1 4 }",
}

// ValidStepSchema reports whether name is a supported schema.
func ValidStepSchema(name string) bool {
	_, ok := stepSchemaIdentifiers[StepSchema(name)]
	return ok
}

// ExportSTEP writes an ISO-10303-21 file describing the solids of a
// workspace under the chosen application protocol, with units in mm.
// Solids are emitted as manifold solid B-Rep placeholders carrying
// their bounding geometry; the blob-level B-Rep stays with the store.
func ExportSTEP(w io.Writer, workspaceID string, schema StepSchema, entities []*model.Entity, now time.Time) error {
	identifier, ok := stepSchemaIdentifiers[schema]
	if !ok {
		return fmt.Errorf("unsupported format: unknown STEP schema %q", schema)
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "ISO-10303-21;\n")
	fmt.Fprintf(bw, "HEADER;\n")
	fmt.Fprintf(bw, "FILE_DESCRIPTION(('workspace %s'),'2;1');\n", workspaceID)
	fmt.Fprintf(bw, "FILE_NAME('%s.step','%s',(''),(''),'','','');\n",
		workspaceID, now.UTC().Format("2006-01-02T15:04:05"))
	fmt.Fprintf(bw, "FILE_SCHEMA(('%s'));\n", identifier)
	fmt.Fprintf(bw, "ENDSEC;\n")
	fmt.Fprintf(bw, "DATA;\n")

	id := 1
	next := func() int { v := id; id++; return v }

	lengthUnit := next()
	fmt.Fprintf(bw, "#%d=(LENGTH_UNIT()NAMED_UNIT(*)SI_UNIT(.MILLI.,.METRE.));\n", lengthUnit)

	for _, e := range entities {
		if e.EntityType != model.EntitySolid {
			continue
		}
		origin := next()
		fmt.Fprintf(bw, "#%d=CARTESIAN_POINT('%s',(%g,%g,%g));\n",
			origin, e.EntityID, e.BoundingBox.Min[0], e.BoundingBox.Min[1], e.BoundingBox.Min[2])
		extent := next()
		fmt.Fprintf(bw, "#%d=CARTESIAN_POINT('%s_extent',(%g,%g,%g));\n",
			extent, e.EntityID, e.BoundingBox.Max[0], e.BoundingBox.Max[1], e.BoundingBox.Max[2])
		solid := next()
		fmt.Fprintf(bw, "#%d=MANIFOLD_SOLID_BREP('%s',#%d);\n", solid, e.EntityID, origin)
	}

	fmt.Fprintf(bw, "ENDSEC;\n")
	fmt.Fprintf(bw, "END-ISO-10303-21;\n")
	return bw.Flush()
}
