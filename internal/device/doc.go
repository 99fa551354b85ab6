// Package device holds the vocabulary shared by every layer of the BLE
// session stack: peripheral records, GATT identifiers and their
// normalization, connection states and the symbolic error taxonomy that is
// surfaced in every operation result.
package device
