package store

import "time"

// The following are GORM row types for the persistent store. Structured
// fields with no natural flat SQL representation (properties, bounding
// boxes, parameter maps, parent/child edges) are persisted as JSON text
// columns and marshaled/unmarshaled at the repository boundary, mirroring
// the reference schema's use of TEXT columns for nested JSON blobs.

type workspaceRow struct {
	WorkspaceID     string    `gorm:"column:workspace_id;primaryKey"`
	WorkspaceName   string    `gorm:"column:workspace_name;uniqueIndex"`
	WorkspaceType   string    `gorm:"column:workspace_type"`
	BaseWorkspaceID *string   `gorm:"column:base_workspace_id"`
	OwningAgentID   *string   `gorm:"column:owning_agent_id"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	EntityCount     int       `gorm:"column:entity_count"`
	OperationCount  int       `gorm:"column:operation_count"`
	BranchStatus    string    `gorm:"column:branch_status"`
	DivergencePoint *string   `gorm:"column:divergence_point"`
}

func (workspaceRow) TableName() string { return "workspaces" }

type entityRow struct {
	EntityID         string    `gorm:"column:entity_id;primaryKey"`
	EntityType       string    `gorm:"column:entity_type;index"`
	WorkspaceID      string    `gorm:"column:workspace_id;index"`
	CreatedAt        time.Time `gorm:"column:created_at"`
	ModifiedAt       time.Time `gorm:"column:modified_at"`
	CreatedByAgent   string    `gorm:"column:created_by_agent;index"`
	ParentEntities   string    `gorm:"column:parent_entities"` // JSON array
	ChildEntities    string    `gorm:"column:child_entities"`  // JSON array
	Properties       string    `gorm:"column:properties"`      // JSON object
	BoundingBox      string    `gorm:"column:bounding_box"`    // JSON object
	IsValid          bool      `gorm:"column:is_valid"`
	ValidationErrors string    `gorm:"column:validation_errors"` // JSON array
	ShapeID          *string   `gorm:"column:shape_id"`
}

func (entityRow) TableName() string { return "entities" }

type constraintRow struct {
	ConstraintID            string    `gorm:"column:constraint_id;primaryKey"`
	ConstraintType          string    `gorm:"column:constraint_type"`
	WorkspaceID             string    `gorm:"column:workspace_id;index"`
	EntityIDs               string    `gorm:"column:entity_ids"` // JSON array
	Parameters              string    `gorm:"column:parameters"` // JSON object
	SatisfactionStatus      string    `gorm:"column:satisfaction_status;index"`
	DegreesOfFreedomRemoved int       `gorm:"column:degrees_of_freedom_removed"`
	Tolerance               float64   `gorm:"column:tolerance"`
	CreatedAt               time.Time `gorm:"column:created_at"`
	CreatedByAgent          string    `gorm:"column:created_by_agent"`
}

func (constraintRow) TableName() string { return "constraints" }

type entityConstraintRow struct {
	EntityID     string `gorm:"column:entity_id;primaryKey"`
	ConstraintID string `gorm:"column:constraint_id;primaryKey"`
}

func (entityConstraintRow) TableName() string { return "entity_constraints" }

type operationRow struct {
	OperationID     string    `gorm:"column:operation_id;primaryKey"`
	OperationType   string    `gorm:"column:operation_type"`
	WorkspaceID     string    `gorm:"column:workspace_id;index"`
	AgentID         string    `gorm:"column:agent_id;index"`
	Timestamp       time.Time `gorm:"column:timestamp;index"`
	InputParameters string    `gorm:"column:input_parameters"` // JSON object
	InputEntities   string    `gorm:"column:input_entities"`   // JSON array
	OutputEntities  string    `gorm:"column:output_entities"`  // JSON array
	ResultStatus    string    `gorm:"column:result_status"`
	ErrorCode       string    `gorm:"column:error_code"`
	ErrorMessage    string    `gorm:"column:error_message"`
	ExecutionTimeMs int64     `gorm:"column:execution_time_ms"`
	UndoData        string    `gorm:"column:undo_data"` // JSON object
}

func (operationRow) TableName() string { return "operations" }

type geometryShapeRow struct {
	ShapeID     string    `gorm:"column:shape_id;primaryKey"`
	ShapeType   string    `gorm:"column:shape_type"`
	BRepData    string    `gorm:"column:brep_data"`
	IsValid     bool      `gorm:"column:is_valid"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	WorkspaceID string    `gorm:"column:workspace_id;index"`
}

func (geometryShapeRow) TableName() string { return "geometry_shapes" }

type solidPropertiesRow struct {
	EntityID      string    `gorm:"column:entity_id;primaryKey"`
	Volume        float64   `gorm:"column:volume"`
	SurfaceArea   float64   `gorm:"column:surface_area"`
	CenterOfMassX float64   `gorm:"column:center_of_mass_x"`
	CenterOfMassY float64   `gorm:"column:center_of_mass_y"`
	CenterOfMassZ float64   `gorm:"column:center_of_mass_z"`
	BBoxMinX      float64   `gorm:"column:bounding_box_min_x"`
	BBoxMinY      float64   `gorm:"column:bounding_box_min_y"`
	BBoxMinZ      float64   `gorm:"column:bounding_box_min_z"`
	BBoxMaxX      float64   `gorm:"column:bounding_box_max_x"`
	BBoxMaxY      float64   `gorm:"column:bounding_box_max_y"`
	BBoxMaxZ      float64   `gorm:"column:bounding_box_max_z"`
	FaceCount     int       `gorm:"column:face_count"`
	EdgeCount     int       `gorm:"column:edge_count"`
	VertexCount   int       `gorm:"column:vertex_count"`
	IsClosed      bool      `gorm:"column:is_closed"`
	IsManifold    bool      `gorm:"column:is_manifold"`
	ComputedAt    time.Time `gorm:"column:computed_at"`
}

func (solidPropertiesRow) TableName() string { return "solid_properties" }
