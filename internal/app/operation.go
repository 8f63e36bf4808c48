package app

import (
	"fmt"

	"pbak/internal/pbak"
)

// Operation names recorded in the run history.
const (
	OpRun      = "run"
	OpRetrieve = "retrieve"
	OpSync     = "sync"
	OpVolume   = "volume-sync"
	OpPreviews = "previews"
)

var operationStages = map[string][]string{
	OpRun:      pbak.AllStages,
	OpRetrieve: {pbak.StageRetrieve},
	OpSync:     {pbak.StageSyncPrimary, pbak.StageUnmountSource},
	OpVolume:   {pbak.StageSyncVolume},
	OpPreviews: {pbak.StagePreviews},
}

// Operation is a CLI command that runs a subset of the backup stages.
type Operation struct {
	Name   string
	Stages []string
}

// NewOperation returns the named operation with skipped stages removed.
func NewOperation(name string, skip ...string) (*Operation, error) {
	stages, ok := operationStages[name]
	if !ok {
		return nil, fmt.Errorf("unknown operation: %q", name)
	}

	op := &Operation{Name: name}
	for _, s := range stages {
		if !contains(skip, s) {
			op.Stages = append(op.Stages, s)
		}
	}
	return op, nil
}

// Options converts the operation into service run options.
// Stages is never nil, so an operation with every stage skipped runs nothing.
func (op *Operation) Options(progress pbak.ProgressFunc) pbak.RunOptions {
	stages := op.Stages
	if stages == nil {
		stages = []string{}
	}
	return pbak.RunOptions{Operation: op.Name, Stages: stages, Progress: progress}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
