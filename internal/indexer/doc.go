// Package indexer keeps stored alerts ready for retrieval.
//
// IngestAlert normalizes a single alert (ID, issue time, active flag), resolves
// its location to a position when none is given and warms its embedding
// record. Backfill walks every active alert with a bounded worker pool and
// repairs what ingestion could not do at the time: missing positions and
// missing or stale embeddings.
//
// # Basic Usage
//
//	idx := indexer.New(store, cache,
//	    indexer.WithGeocoder(geocoder),
//	    indexer.WithEmbedder(emb))
//
//	stats, err := idx.Backfill(ctx, indexer.Config{Workers: 4, Geocode: true, Embed: true})
//	fmt.Printf("geocoded %d, embedded %d in %v\n", stats.Geocoded, stats.Embedded, stats.Duration)
//
// # Failure Handling
//
// Geocoding and embedding failures never abort ingestion or a backfill. An
// alert whose location cannot be resolved keeps an absent position and is
// ranked as distance-unknown; an alert without an embedding is retried on the
// next query or backfill. Only one backfill may run at a time.
package indexer
