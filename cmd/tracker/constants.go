package main

// Default limits for CLI commands.
const (
	DefaultSearchLimit = 10
	DefaultAuditLimit  = 50
)

// Valid export formats.
var validFormats = []string{"json", "csv", "markdown"}
