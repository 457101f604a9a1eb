// Package form implements a schema-driven multi-step conversation engine.
// A flow declares an ordered field schema; the engine walks one user through
// it field by field, validating input, supporting back/cancel/confirm
// navigation, and submitting the collected values once the schema is
// satisfied. Sessions are keyed by (owner, flow) and serialized per key.
package form
