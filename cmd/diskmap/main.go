// Command diskmap inspects, benchmarks and backs up diskmap store files.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
