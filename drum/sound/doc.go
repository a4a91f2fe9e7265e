// Package sound holds the data model shared by the drum engine: sound
// definitions decoded from the catalog, the synthesis recipe variants,
// per-track settings and the trigger value object.
//
// Definitions are immutable once decoded. Malformed synthesis data never
// fails decoding; it is normalized to safe defaults and the problems are
// reported through Definition.Warnings so callers can log them.
package sound
