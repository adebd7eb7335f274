// Package cloudclient provides the primary entry point for constructing a
// client for an OpenStack-style cloud fronted by a Rackspace-compatible
// identity service.
//
// New wires the credential broker, endpoint resolver, request executor and
// polling waiter from a single cloudcore.Config. The returned Provider
// authenticates lazily, caches each identity's token and service catalog
// until shortly before the token expires, and re-authenticates once when a
// service rejects a token.
//
// Quick start
//
//	import (
//	  "context"
//	  "log"
//
//	  "github.com/fivetwenty-io/cloudcore/pkg/cloudclient"
//	  "github.com/fivetwenty-io/cloudcore/pkg/cloudcore"
//	)
//
//	func example() {
//	  ctx := context.Background()
//
//	  identity := cloudcore.Credential{Username: "alice", APIKey: "..."}
//
//	  provider, err := cloudclient.New(ctx, &cloudcore.Config{
//	    Credential:    &identity,
//	    DefaultRegion: "DFW",
//	  })
//	  if err != nil { log.Fatal(err) }
//	  defer provider.Close()
//
//	  // Any catalog service, by type.
//	  resp, err := provider.Do(ctx, identity, cloudclient.Service{Type: "volume"},
//	    &cloudclient.Request{Method: "GET", Path: "/volumes"})
//	  if err != nil { log.Fatal(err) }
//	  _ = resp
//
//	  // Or a typed wrapper with waits.
//	  volume, err := provider.Volumes(identity, "").WaitForAvailable(ctx, "vol-id")
//	  if err != nil { log.Fatal(err) }
//	  _ = volume
//	}
//
// # Caching
//
// Providers built without their own UserAccessCache, Clock or ExpiryBuffer
// share the cache returned by SharedUserAccessCache, so several providers in
// one process authenticate each identity once. Config.Store adds a
// second-level store (memory or NATS JetStream KV) that survives the process.
package cloudclient
