package tools

// Fixed utility tool names.
const (
	HealthCheck        = "health_check"
	LinkEntities       = "link_entities"
	UnlinkEntities     = "unlink_entities"
	GetRelatedEntities = "get_related_entities"
)

// Utility parameter names.
const (
	ParamEntityType = "entityType"
	ParamEntityID   = "entityId"
	ParamLink       = "link"
	ParamRelatedIDs = "relatedIds"
)

// IsUtility reports whether name is one of the fixed utility tools.
func IsUtility(name string) bool {
	switch name {
	case HealthCheck, LinkEntities, UnlinkEntities, GetRelatedEntities:
		return true
	}
	return false
}

// Utilities returns the fixed, entity-independent tools.
func Utilities() []OperationSchema {
	target := []Param{
		{Name: ParamEntityType, Type: TypeString, Description: "Entity type of the source record, e.g. Account"},
		{Name: ParamEntityID, Type: TypeString, Description: "ID of the source record"},
		{Name: ParamLink, Type: TypeString, Description: "Relationship (link) name on the source entity, e.g. contacts"},
	}
	relatedIDs := Param{
		Name:        ParamRelatedIDs,
		Type:        TypeArray,
		Items:       TypeString,
		Description: "IDs of the records on the other side of the relationship",
	}
	linkRequired := []string{ParamEntityType, ParamEntityID, ParamLink, ParamRelatedIDs}

	return []OperationSchema{
		{
			Name:        HealthCheck,
			Description: "Check connectivity to the CRM and report the authenticated user",
		},
		{
			Name:        LinkEntities,
			Description: "Link records to a source record through a named relationship",
			Params:      append(append([]Param{}, target...), relatedIDs),
			Required:    linkRequired,
		},
		{
			Name:        UnlinkEntities,
			Description: "Remove records from a named relationship of a source record",
			Params:      append(append([]Param{}, target...), relatedIDs),
			Required:    linkRequired,
		},
		{
			Name:        GetRelatedEntities,
			Description: "List records related to a source record through a named relationship",
			Params:      append(append([]Param{}, target...), ControlParams("related")...),
			Required:    []string{ParamEntityType, ParamEntityID, ParamLink},
		},
	}
}
