// Package migrations embeds the Postgres schema files in apply order.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
