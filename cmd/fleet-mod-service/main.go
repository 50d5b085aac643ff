package main

import (
	"context"
	"fmt"
	"os"

	"gitlab.com/arbiterhq/api/fleet-mod-service/internal/bootstrap"
	"gitlab.com/arbiterhq/api/fleet-mod-service/pkg/contextkeys"
)

func main() {
	ctx := context.Background()
	ctx = context.WithValue(ctx, contextkeys.RequestIDKey, "app-main")

	// Initialize the application using the Wire-generated injector.
	app, cleanup, err := bootstrap.InitializeApp(ctx)
	if err != nil {
		// A very basic log if bootstrap fails, as the main logger isn't available.
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	// Run handles route registration, server start, and graceful shutdown.
	if err := app.Run(ctx); err != nil {
		fmt.Printf("Application run failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Application exited gracefully.")
}
