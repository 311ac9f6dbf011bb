// Command idmap manages host id to endpoint id mappings.
package main

import "github.com/mesh-intelligence/idmap/internal/cli"

func main() {
	cli.Execute()
}
