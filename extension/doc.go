// Package extension bundles dispatch configuration, options and lifecycle
// for embedding dispatch in a host application.
//
// An Extension:
//   - Builds the delivery service with a configured store and queue and runs
//     store migrations unless disabled (Init)
//   - Starts and stops the delivery worker, scheduler, and sweeper (Start, Stop)
//   - Returns the plain API handler (Handler) and the configured URL prefix
//     (Prefix)
//
// It does not register itself with a Forge application and mounts no routes;
// the host mounts Handler under Prefix and calls Init, Start and Stop.
//
// Usage:
//
//	ext := extension.New(
//	    extension.WithStore(postgresStore),
//	    extension.WithQueue(redisQueue),
//	    extension.WithPrefix("/webhooks"),
//	)
//	if _, err := ext.Init(ctx); err != nil {
//	    return err
//	}
//	ext.Start(ctx)
//	defer ext.Stop(ctx)
//	mux.Handle(ext.Prefix()+"/", http.StripPrefix(ext.Prefix(), ext.Handler()))
package extension
