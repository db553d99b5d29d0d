// Package model contains the step metadata shared between the pipeline
// builder, the control-plane watcher and the drawer.
package model
