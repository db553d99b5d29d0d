// Package control talks to the SageMaker control plane: it upserts pipeline
// definitions, starts and watches executions, keeps experiments and trials in
// place, and drives the model registry. All remote state stays vendor-owned;
// the package only issues describe/create/update/start calls and normalizes
// the results.
package control
