// Package pipeline builds SageMaker model-building pipeline definitions.
//
// The pipeline package offers a typed way to assemble a pipeline from parameters and steps. Each step declares the
// vendor job it stands for (processing, training, condition, model registration) and the steps it depends on; the
// package keeps the dependency graph, rejects cycles and duplicate names, and renders the whole thing into the
// definition document the pipeline service accepts.
//
// Nothing in this package executes work. Steps run remotely once the definition has been submitted through the
// control-plane client; values that are only known at execution time are expressed as references (see Ref and
// JSONGet) and resolved by the service.
package pipeline
