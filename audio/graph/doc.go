// Package graph provides the block-based render graph every sound in the
// engine flows through.
//
// A Context owns the audio clock, the master Destination node and all live
// nodes. Nodes wrap a Processor and are wired with Connect/Disconnect; the
// context renders them in topological order (Kahn's algorithm) one block at a
// time and sums fan-in at each node input. Work that must happen at a given
// point of the audio clock (effect-chain cleanup, UI step notifications) is
// registered with Context.At and runs on the render goroutine between blocks,
// outside the graph lock.
//
// All node and context methods are safe for concurrent use. Processors are
// only ever invoked while the graph lock is held and must not call back into
// the context.
package graph
