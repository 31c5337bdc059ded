// Command tika extracts text and metadata from documents and everything
// embedded in them.
//
// Usage:
//
//	tika extract [--output json|rmeta|metadata|text] [files...]
//	tika formats
//	tika version
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
