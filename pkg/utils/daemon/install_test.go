package daemon

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderUnit(t *testing.T) {
	unit := RenderUnit("/usr/local/bin/bluebatt")
	assert.Contains(t, unit, "ExecStart=/usr/local/bin/bluebatt daemon\n")
	assert.NotContains(t, unit, "/path/to/bluebatt")
	assert.Contains(t, unit, "WantedBy=multi-user.target")
}
