package registry_test

import (
	"testing"

	"github.com/fleetform/fleetsched/pkg/registry"
	"github.com/stretchr/testify/assert"
)

func TestQueryFormationNoNameserversErrors(t *testing.T) {
	c := registry.New(nil, "service")
	_, err := c.QueryFormation("executor")
	assert.Error(t, err)
}
