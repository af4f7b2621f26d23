// Package crowd implements the crowd dynamics analytics engine.
//
// The engine turns periodic per-camera detection samples (positions and
// confidences of people observed in a frame) into situational metrics:
// density, movement velocity, spatial distribution, flow pattern, congestion
// level, a short-horizon forecast of when density will cross a danger
// threshold, and threshold/predictive alerts with deduplication.
//
// Responsibilities: sample validation and normalisation, per-camera history,
// frame-to-frame motion estimation, grid occupancy analysis, trend
// forecasting, alert evaluation, and the per-camera pipeline scheduling that
// keeps samples strictly ordered within a camera while cameras run
// concurrently.
//
// Non-responsibilities: person detection, alert delivery (see sink
// subpackage), persistence (see storage subpackage), and HTTP surfaces (see
// monitor subpackage). Nothing in this package blocks on network or disk.
package crowd
