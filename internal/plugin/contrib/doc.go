// Package contrib aggregates the capabilities contributed by enabled plugins.
//
// A contribution is a filter, brush, tool or panel owned by one plugin and
// identified by the tuple (owner, kind, id). Two plugins may contribute the
// same id; callers then disambiguate by owner.
//
// The Aggregator keeps the union of contributions as an immutable Snapshot
// replaced on every Publish or Retract. Readers load the current snapshot
// without locking and never observe a partially updated set.
//
// Invocations resolve a contribution and forward plain data (pixel buffers,
// stroke points, tool events) to the owner's Handler, which runs the plugin
// function inside its sandbox:
//
//	out, err := agg.ApplyFilter(ctx, contrib.Ref{Kind: contrib.Filter, ID: "gs"}, pixels, settings)
package contrib
