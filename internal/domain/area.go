package domain

// Area is an organizational unit tickets are routed to.
type Area string

const (
	AreaSupport    Area = "Soporte"
	AreaAccounting Area = "Contabilidad"
	AreaOperations Area = "Personal Operativo"
)

// AreaPolicy describes how an area participates in ticket routing.
type AreaPolicy struct {
	// CanBeAssignee is true when tickets may be routed to the area and its
	// members may drive status changes.
	CanBeAssignee bool
	// Targets lists the areas a member of this area may open tickets for.
	Targets []Area
}

// AreaPolicies is the routing table keyed by the creator's area.
var AreaPolicies = map[Area]AreaPolicy{
	AreaSupport:    {CanBeAssignee: true, Targets: []Area{AreaAccounting}},
	AreaAccounting: {CanBeAssignee: true, Targets: []Area{AreaSupport}},
	AreaOperations: {CanBeAssignee: false, Targets: []Area{AreaSupport, AreaAccounting}},
}

// Valid reports whether a is a known area.
func (a Area) Valid() bool {
	_, ok := AreaPolicies[a]
	return ok
}

// CanBeAssignee reports whether tickets may be routed to a.
func (a Area) CanBeAssignee() bool {
	return AreaPolicies[a].CanBeAssignee
}

// CanTarget reports whether a member of a may open a ticket for target.
func (a Area) CanTarget(target Area) bool {
	for _, allowed := range AreaPolicies[a].Targets {
		if allowed == target {
			return true
		}
	}
	return false
}
