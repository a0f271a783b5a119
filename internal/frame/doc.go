// Package frame holds the per-frame inputs of the counting engine: the
// 16-level disparity map produced by the stereo engine, the black-pixel and
// background masks, and the head detections produced by the external blob
// detector.
//
// Nothing here knows how frames are acquired. The acquisition side hands in
// already-deinterleaved buffers; this package only gives them shape.
package frame
