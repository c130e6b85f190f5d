// Package issuance embeds the issuance schema for use in tests and tooling.
package issuance

import "embed"

//go:embed *.sql
var FS embed.FS
