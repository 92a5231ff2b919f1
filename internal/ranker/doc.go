// Package ranker scores alerts against a query embedding and orders them.
//
// Similarity is cosine similarity between embeddings. When the requester
// position and the alert position are both known, similarity and distance
// are converted to in-batch ranks and blended with configurable weights, so
// a similarity in [0,1] never competes with a distance in kilometres.
// Results with a known distance always precede results without one.
package ranker
