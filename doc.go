// Package edp provides the shared data model for the edp.io reactor: the
// Event envelope, priority bands, and the errno-style error taxonomy that
// every other package in this module (worker, iomon, emitter, netio,
// netaddr, edpruntime) builds on.
//
// edp.io is a small reactor: a priority-scheduled worker pool (package
// worker), a readiness-based I/O monitor (package iomon), a per-object event
// demultiplexer (package emitter), and a non-blocking TCP socket/server layer
// (package netio), wired together by package edpruntime.
package edp
