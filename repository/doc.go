// Package repository provides the record repositories persisted beside the
// task namespace: job definitions under "app:" keys and the group tree under
// "group:root". Both encode through codec.JSON and use the store client's
// blocking mode, so callers see definitive success or failure.
//
// Migration steps rewrite these records when the persisted layout changes.
package repository
