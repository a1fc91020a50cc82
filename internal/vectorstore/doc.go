// Package vectorstore provides the knowledge index the QA phase searches.
//
// Two backends implement Store:
//
//   - ChromemStore: embedded chromem-go database persisted to a local
//     directory. The default.
//   - QdrantStore: remote Qdrant over its native gRPC client.
//
// Both embed the query through an Embedder, return results ordered by
// descending similarity, and report index health through Stats. A store
// whose collection does not exist yet answers searches with no results
// rather than an error; the index is built elsewhere.
package vectorstore
