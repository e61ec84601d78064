// Package meta holds build metadata shared between the library and the CLI.
package meta

// Version is the release version reported by the MCP server and the CLI.
const Version = "1.0.0"
