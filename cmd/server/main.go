// Command server runs the RQC adapter HTTP API: the host-facing event
// endpoints, the interactive grading trigger, and the operator surface
// for credentials and the retry queue.
package main

import (
	"context"
	"log"

	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/app"
)

func main() {
	if err := app.Run(context.Background()); err != nil {
		log.Fatalf("application error: %v", err)
	}
}
