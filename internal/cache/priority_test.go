package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDerivePriority(t *testing.T) {
	testCases := []struct {
		name     string
		admin    bool
		action   string
		granted  bool
		expected Priority
	}{
		{"admin granted", true, "products:delete", true, Critical},
		{"admin denied", true, "products:delete", false, Critical},
		{"denied read", false, "products:read", false, Low},
		{"read", false, "products:read", true, High},
		{"bare view", false, "VIEW", true, High},
		{"list", false, "products:list", true, High},
		{"get", false, "users:get", true, High},
		{"create", false, "products:create", true, Normal},
		{"publish", false, "publish", true, Normal},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, DerivePriority(tc.admin, tc.action, tc.granted))
		})
	}
}

func TestPriorityString(t *testing.T) {
	assert.Equal(t, "low", Low.String())
	assert.Equal(t, "critical", Critical.String())
	assert.Equal(t, "unknown", Priority(9).String())
}
