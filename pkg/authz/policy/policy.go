// Package policy embeds the built-in casbin model and role policy.
package policy

import _ "embed"

//go:embed model.conf
var Model string

//go:embed policy.csv
var Default string
