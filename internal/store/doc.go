// Package store groups the persistence backends of the pipeline. Subpackages
// implement the trip store interfaces:
//   - memory: confirmation documents, staged consultations, bot toggles and
//     sync events held in process.
//   - redis: confirmation documents with optimistic updates.
//   - postgres: bot toggles and the sync event log.
package store
