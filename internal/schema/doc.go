// Package schema defines the task record shared by the local store, the remote
// store and the synchronizer.
//
// # Overview
//
// A Task is a flat record with last-write-wins semantics. The UpdatedAt
// timestamp is the only field consulted when two copies of the same task
// diverge; IsSynced is local bookkeeping that tells the synchronizer whether
// the local copy still has to be pushed.
//
// # Wire Format
//
// Tasks travel as JSON with camelCase keys and RFC 3339 timestamps:
//
//	{
//	  "id": "6f1c2b0e-5b1e-4c55-9d43-0c9e1f0f7f2a",
//	  "title": "Buy milk",
//	  "description": "",
//	  "isCompleted": false,
//	  "createdAt": "2026-01-10T07:36:29.123Z",
//	  "updatedAt": "2026-01-10T07:36:29.123Z",
//	  "isSynced": false
//	}
//
// # Timestamps
//
// Every mutation goes through Touch, which never moves UpdatedAt backwards.
// Stores persist timestamps with FormatTime so that lexical order matches
// chronological order.
//
// # Partial Updates
//
// Patch carries pointer fields: a nil field is absent, a non-nil field is
// present even when it holds the zero value.
//
//	done := true
//	patch := schema.Patch{IsCompleted: &done}
//	changed := patch.ApplyFields(task)
package schema
