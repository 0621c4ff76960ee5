// Package batcher coalesces point lookups into consolidated fetches.
//
// Lookups submitted during one tick that share a signature (entity,
// predicate field, selection) are merged into a single multi-key fetch.
// The backend is called once per signature per tick and every caller
// receives the record for its own key.
//
// A tick ends when one of the following happens:
//
//   - the collection window of the group elapses (batching.window > 0)
//   - Collector.Flush is called
//   - a Tick scope is closed
//
// Example configuration:
//
//	{
//	  "batching": {
//	    "enabled": true,
//	    "window": 2,
//	    "maxBatchSize": 500,
//	    "fetchTimeout": 5000
//	  }
//	}
package batcher
