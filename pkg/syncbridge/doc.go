// Package syncbridge provides the library API of the synchronization bridge.
//
// A Client owns one version-control runtime (p4, git or noop), the host log
// forwarder, the lifecycle journal and the webhook client, all built from a
// config.Config. Each Synchronize call initializes the runtime, opens a
// client session, runs the transfer step and tears both down again before
// it returns, whatever the outcome.
//
// # Concurrency Safety
//
//   - A Client is safe for concurrent use.
//
//   - Under the "serialize" policy (the default) concurrent calls queue on a
//     process-wide slot; their init/teardown pairs never interleave.
//
//   - Under the "pooled" policy the runtime is initialized once and shared.
//     Close releases it after the last in-flight call returns.
//
//   - Only one Client should exist per process: the runtime it drives holds
//     process-wide state.
//
// # Usage
//
//	client, err := syncbridge.OpenDefault()
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	outcome := client.Synchronize(ctx)
//	if !outcome.OK() {
//	    log.Printf("sync failed (%d): %s", outcome.Status(), outcome.Message)
//	}
package syncbridge
