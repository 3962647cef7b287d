// Command productbridge runs the extraction pipeline locally and prints the
// resulting product content as JSON. Nothing is saved to Shopify.
package main

import (
	"context"
	"os"
)

func main() {
	if err := newRootCmd(buildPipeline).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
