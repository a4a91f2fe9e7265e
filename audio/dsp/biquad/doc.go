// Package biquad implements second-order IIR sections in Direct Form II
// Transposed and cascades of them.
//
// Coefficients are normalized so that a0 = 1. Sections are not safe for
// concurrent use; the audio graph serializes access to them.
package biquad
