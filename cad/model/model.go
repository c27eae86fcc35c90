// Package model defines the persistent data types shared across the CAD
// core: workspaces, entities, constraints, and the operation journal.
package model

import "time"

// WorkspaceType distinguishes the single main workspace from agent branches.
type WorkspaceType string

const (
	WorkspaceMain        WorkspaceType = "main"
	WorkspaceAgentBranch WorkspaceType = "agent_branch"
)

// BranchStatus tracks a workspace's position in the fork/merge lifecycle.
type BranchStatus string

const (
	BranchClean      BranchStatus = "clean"
	BranchModified   BranchStatus = "modified"
	BranchConflicted BranchStatus = "conflicted"
	BranchMerged     BranchStatus = "merged"
)

// MainWorkspaceID is the literal, indestructible id of the main workspace.
const MainWorkspaceID = "main"

// Workspace is an isolation domain owning a set of entities, constraints,
// and operations; the unit of fork/merge.
type Workspace struct {
	WorkspaceID     string        `json:"workspace_id"`
	WorkspaceName   string        `json:"workspace_name"`
	WorkspaceType   WorkspaceType `json:"workspace_type"`
	BaseWorkspaceID *string       `json:"base_workspace_id,omitempty"`
	OwningAgentID   *string       `json:"owning_agent_id,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	EntityCount     int           `json:"entity_count"`
	OperationCount  int           `json:"operation_count"`
	BranchStatus    BranchStatus  `json:"branch_status"`
	DivergencePoint *string       `json:"divergence_point,omitempty"`
}

// CanMerge reports whether this workspace may be merged into another.
func (w *Workspace) CanMerge() bool {
	return w.BranchStatus == BranchClean || w.BranchStatus == BranchModified
}

// EntityType enumerates the supported geometric entity kinds.
type EntityType string

const (
	EntityPoint  EntityType = "point"
	EntityLine   EntityType = "line"
	EntityCircle EntityType = "circle"
	EntityArc    EntityType = "arc"
	EntitySolid  EntityType = "solid"
)

// Vec3 is a 3-element coordinate vector.
type Vec3 [3]float64

// BoundingBox is the axis-aligned bounding box of an entity.
type BoundingBox struct {
	Min Vec3 `json:"min"`
	Max Vec3 `json:"max"`
}

// Entity is a persistently stored geometric object with derived properties.
type Entity struct {
	EntityID         string         `json:"entity_id"`
	EntityType       EntityType     `json:"entity_type"`
	WorkspaceID      string         `json:"workspace_id"`
	CreatedAt        time.Time      `json:"created_at"`
	ModifiedAt       time.Time      `json:"modified_at"`
	CreatedByAgent   string         `json:"created_by_agent"`
	ParentEntities   []string       `json:"parent_entities"`
	ChildEntities    []string       `json:"child_entities"`
	Properties       map[string]any `json:"properties"`
	BoundingBox      BoundingBox    `json:"bounding_box"`
	IsValid          bool           `json:"is_valid"`
	ValidationErrors []string       `json:"validation_errors"`
	ShapeID          *string        `json:"shape_id,omitempty"`
}

// ConstraintType enumerates the supported geometric relations.
type ConstraintType string

const (
	ConstraintParallel      ConstraintType = "parallel"
	ConstraintPerpendicular ConstraintType = "perpendicular"
	ConstraintCoincident    ConstraintType = "coincident"
	ConstraintDistance      ConstraintType = "distance"
	ConstraintAngle         ConstraintType = "angle"
	ConstraintTangent       ConstraintType = "tangent"
	ConstraintRadius        ConstraintType = "radius"
)

// SatisfactionStatus is the result of the most recent residual evaluation.
type SatisfactionStatus string

const (
	SatisfactionSatisfied SatisfactionStatus = "satisfied"
	SatisfactionViolated  SatisfactionStatus = "violated"
	SatisfactionRedundant SatisfactionStatus = "redundant"
)

// DefaultTolerance is the residual threshold used by constraints that don't
// specify their own (tangent constraints use TangentTolerance instead).
const DefaultTolerance = 1e-6

// TangentTolerance is the looser tolerance used for tangency residuals.
const TangentTolerance = 1e-2

// Constraint is a relation between 1-2 entities that restricts their
// geometry, evaluated by a residual.
type Constraint struct {
	ConstraintID            string             `json:"constraint_id"`
	ConstraintType          ConstraintType     `json:"constraint_type"`
	WorkspaceID             string             `json:"workspace_id"`
	EntityIDs               []string           `json:"entity_ids"`
	Parameters              map[string]float64 `json:"parameters"`
	SatisfactionStatus      SatisfactionStatus `json:"satisfaction_status"`
	DegreesOfFreedomRemoved int                `json:"degrees_of_freedom_removed"`
	Tolerance               float64            `json:"tolerance"`
	CreatedAt               time.Time          `json:"created_at"`
	CreatedByAgent          string             `json:"created_by_agent"`
}

// ResultStatus is the outcome recorded for a journaled operation.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultError   ResultStatus = "error"
	ResultWarning ResultStatus = "warning"
)

// Operation is a single append-only journal entry. The journal is the
// source of truth for history and agent metrics.
type Operation struct {
	OperationID     string         `json:"operation_id"`
	OperationType   string         `json:"operation_type"`
	WorkspaceID     string         `json:"workspace_id"`
	AgentID         string         `json:"agent_id"`
	Timestamp       time.Time      `json:"timestamp"`
	InputParameters map[string]any `json:"input_parameters"`
	InputEntities   []string       `json:"input_entities"`
	OutputEntities  []string       `json:"output_entities"`
	ResultStatus    ResultStatus   `json:"result_status"`
	ErrorCode       string         `json:"error_code,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	ExecutionTimeMs int64          `json:"execution_time_ms"`
	UndoData        map[string]any `json:"undo_data,omitempty"`
}

// GeometryShape is the opaque B-Rep representation behind a solid entity.
type GeometryShape struct {
	ShapeID     string    `json:"shape_id"`
	ShapeType   string    `json:"shape_type"`
	BRepData    string    `json:"brep_data"`
	IsValid     bool      `json:"is_valid"`
	CreatedAt   time.Time `json:"created_at"`
	WorkspaceID string    `json:"workspace_id"`
}

// Topology describes the combinatorial shape of a solid's boundary.
type Topology struct {
	FaceCount   int  `json:"face_count"`
	EdgeCount   int  `json:"edge_count"`
	VertexCount int  `json:"vertex_count"`
	IsClosed    bool `json:"is_closed"`
	IsManifold  bool `json:"is_manifold"`
}

// SolidProperties holds the derived mass properties of a solid entity,
// computed by the geometry kernel and cached independently of the entity.
type SolidProperties struct {
	EntityID     string      `json:"entity_id"`
	Volume       float64     `json:"volume"`
	SurfaceArea  float64     `json:"surface_area"`
	CenterOfMass Vec3        `json:"center_of_mass"`
	BoundingBox  BoundingBox `json:"bounding_box"`
	Topology     Topology    `json:"topology"`
	ComputedAt   time.Time   `json:"computed_at"`
}
