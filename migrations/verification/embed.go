// Package verification embeds the verification log schema for use in tests
// and tooling.
package verification

import "embed"

//go:embed *.sql
var FS embed.FS
