// Package tools turns catalog entities into typed MCP tool schemas.
package tools

import "strings"

// Action is the verb of a dynamic entity operation.
type Action string

const (
	ActionCreate Action = "create"
	ActionSearch Action = "search"
	ActionGet    Action = "get"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Actions lists the entity actions in synthesis order.
var Actions = []Action{ActionCreate, ActionSearch, ActionGet, ActionUpdate, ActionDelete}

func (a Action) valid() bool {
	for _, known := range Actions {
		if a == known {
			return true
		}
	}
	return false
}

// Operation is a parsed dynamic operation name. Everything downstream
// of ParseName switches on Action instead of re-reading the string.
type Operation struct {
	Action Action
	Entity string
}

// Name renders the tool name, e.g. "create_Contact".
func (o Operation) Name() string {
	return string(o.Action) + "_" + o.Entity
}

// ParseName splits "{action}_{entity}". The entity part is not
// resolved here.
func ParseName(name string) (Operation, bool) {
	action, entity, found := strings.Cut(name, "_")
	if !found || entity == "" {
		return Operation{}, false
	}
	op := Operation{Action: Action(action), Entity: entity}
	if !op.Action.valid() {
		return Operation{}, false
	}
	return op, true
}
