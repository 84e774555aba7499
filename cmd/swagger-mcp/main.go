// swagger-mcp is the operator CLI: it ingests OpenAPI specifications into
// queryable stores and inspects, migrates, and previews the result.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		errorColor.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
