package hack

import _ "embed"

//go:embed bluebatt.service
var SystemdUnitTemplate string
