// Package fx provides the effect nodes tracks are routed through.
//
// Every effect exposes the same contract: an Input node upstream sources
// connect to, an Output node, Connect to route the output, and Dispose to
// release every node it owns.
//
// Effects in this package:
//   - Gain: smoothed linear gain stage.
//   - Bitcrusher: bit-depth and sample-rate reduction.
//   - Filter: RBJ biquad lowpass/highpass/bandpass with selectable rolloff.
//   - ReverbBus: shared send reverb using partitioned FFT convolution.
//   - DelayBus: shared feedback delay with dry passthrough.
//
// Bitcrusher, Filter and Gain are cheap transient nodes created per
// trigger. ReverbBus and DelayBus are meant to exist once per engine.
package fx
