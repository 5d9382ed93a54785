// Package artifact reads and writes the text and binary files exchanged
// between compute modules and the comparator.
//
// Text artifacts are rendered with the fixed-point and scientific helpers in
// this package so that output bytes depend only on the values being written.
// Binary artifacts are little-endian with a leading 8-byte magic.
package artifact
