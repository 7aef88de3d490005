// Package migrations embeds the schema for the client-local operation queue.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
