// Package sets provides a hash-table backed set data structure for Go,
// implementing mathematical set theory with type safety through generics.
//
// The domain model throughout patientqa uses Set[T] for every unordered,
// duplicate-free collection named by the spec: relationship_ids,
// related_artifact_ids and evidence_chunk_ids.
package sets
