// Package synth provides the sound generators voices are built from.
//
// A Source renders one monophonic generator (membrane, noise or oscillator)
// shaped by an ADSR envelope. A Player renders a decoded sample buffer with
// overlapping retriggers. Both are graph processors driven by a
// sample-accurate queue of scheduled hits, so a trigger issued ahead of time
// starts on the exact frame it was scheduled for.
package synth
