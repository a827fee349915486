// Package corpus traces model files in bulk.
//
// Open turns a model file into pickle samples: a PyTorch zip archive yields
// one sample per */data.pkl member, anything else is a single (possibly
// stacked) stream. A Tracer fans samples out to a bounded worker pool,
// keeps results in input order, and unions the fragments of every sample
// that traced cleanly. Samples that hit a step, time or size bound are
// logged and skipped; they never fail the batch.
package corpus
