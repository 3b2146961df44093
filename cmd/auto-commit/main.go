// auto-commit commits generated content to a repository on a human-looking
// schedule.
package main

import (
	"os"

	"github.com/marcin-skalski/auto-commit/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
