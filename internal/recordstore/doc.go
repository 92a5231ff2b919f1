// Package recordstore persists embedding records outside the alert database.
//
// Redis keeps one JSON document per alert and suits deployments that already
// share a Redis between several alertwatch processes. Qdrant keeps one point
// per alert in a cosine collection, with the point ID derived from the alert
// ID so that re-embedding an alert overwrites its previous point.
//
// Both satisfy embedcache.RecordStore.
package recordstore
