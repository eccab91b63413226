// Package id provides ID generation helpers for optimization runs.
package id

import (
	nanoid "github.com/matoous/go-nanoid/v2"
)

const DefaultLength = 21

const PrefixRun = "run"

func New(prefix string) string {
	id, err := nanoid.New(DefaultLength)
	if err != nil {
		panic("nanoid generation failed: " + err.Error())
	}
	return prefix + "_" + id
}

// NewRun returns the identifier stamped on one optimization run; candidates,
// proposals, and merges are addressed by archive index instead.
func NewRun() string { return New(PrefixRun) }
