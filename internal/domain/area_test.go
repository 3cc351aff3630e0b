package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArea_CanTarget(t *testing.T) {
	tests := []struct {
		name   string
		area   Area
		target Area
		want   bool
	}{
		{name: "operations to support", area: AreaOperations, target: AreaSupport, want: true},
		{name: "operations to accounting", area: AreaOperations, target: AreaAccounting, want: true},
		{name: "accounting to support", area: AreaAccounting, target: AreaSupport, want: true},
		{name: "accounting to itself", area: AreaAccounting, target: AreaAccounting, want: false},
		{name: "support to accounting", area: AreaSupport, target: AreaAccounting, want: true},
		{name: "support to itself", area: AreaSupport, target: AreaSupport, want: false},
		{name: "nobody targets operations", area: AreaSupport, target: AreaOperations, want: false},
		{name: "unknown area", area: Area("Legal"), target: AreaSupport, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.area.CanTarget(tt.target))
		})
	}
}

func TestArea_CanBeAssignee(t *testing.T) {
	assert.True(t, AreaSupport.CanBeAssignee())
	assert.True(t, AreaAccounting.CanBeAssignee())
	assert.False(t, AreaOperations.CanBeAssignee())
	assert.False(t, Area("").CanBeAssignee())
}

func TestAreaPolicies_TargetsAreAssignable(t *testing.T) {
	for area, policy := range AreaPolicies {
		for _, target := range policy.Targets {
			assert.Truef(t, target.CanBeAssignee(), "%s targets %s which cannot be assigned", area, target)
		}
	}
}
