// oversign — tamper-evident audit trail and approval gate for
// autonomous agents. All functionality lives in internal/cli.
package main

import "github.com/oversign/oversign/internal/cli"

func main() {
	cli.Execute()
}
