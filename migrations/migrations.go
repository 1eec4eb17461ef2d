// Package migrations holds the schema. It is applied by the deploy tooling in
// production and by integration tests through FS.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
