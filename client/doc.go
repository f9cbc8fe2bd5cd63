// Package client composes the resilience mechanisms into one call façade.
//
// A Client sequences every call through the rate limiter, the read
// deduplicator and the retry executor. Mutations that terminally fail
// because the backend is unreachable are captured into the offline queue
// and reported as accepted, pending sync, rather than as failures.
//
//	c := client.New(client.Options{Queue: q})
//	defer c.Close()
//
//	res, err := c.Call(ctx, client.Request{
//	    Identity:  "user-42",
//	    Tier:      "pro",
//	    DedupeKey: "accounts:list",
//	    Op: func(ctx context.Context) (any, error) {
//	        return api.ListAccounts(ctx)
//	    },
//	})
package client
