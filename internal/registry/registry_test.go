package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestRegistry() *Registry {
	return New(
		map[string]string{
			"order-service":    "order-secret",
			"delivery-service": "delivery-secret",
			"shop-service":     "shop-secret",
		},
		map[string][]string{
			"order-service":    {"delivery-service", "user-service"},
			"delivery-service": {"shop-service"},
		},
	)
}

func TestAuthenticate(t *testing.T) {
	reg := newTestRegistry()

	assert.True(t, reg.Authenticate("order-service", "order-secret"))
	assert.False(t, reg.Authenticate("order-service", "delivery-secret"))
	assert.False(t, reg.Authenticate("order-service", ""))
	assert.False(t, reg.Authenticate("unknown-service", "order-secret"))
}

func TestCanCallIsDirected(t *testing.T) {
	reg := newTestRegistry()

	assert.True(t, reg.CanCall("order-service", "delivery-service"))
	// Reverse direction is not implied.
	assert.False(t, reg.CanCall("delivery-service", "order-service"))

	assert.True(t, reg.CanCall("delivery-service", "shop-service"))
	assert.False(t, reg.CanCall("shop-service", "delivery-service"))
}

func TestCanCallUnknownService(t *testing.T) {
	reg := newTestRegistry()

	assert.False(t, reg.CanCall("shop-service", "user-service"))
	assert.False(t, reg.CanCall("unknown-service", "order-service"))
	assert.False(t, reg.CanCall("order-service", "unknown-service"))
}
