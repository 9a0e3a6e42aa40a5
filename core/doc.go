// Package core defines the shared domain types of MissionMesh: task and
// agent specifications, run state, the event variants streamed to observers
// and the persistence interface for durable run stores.
//
// Types here are deliberately free of behavior beyond construction and
// cloning so that the graph compiler, scheduler, registry and event bus can
// exchange them without import cycles.
package core
