package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the pipeline failure taxonomy.
var (
	ErrAcquisition     = errors.New("acquisition failed")
	ErrAnalysis        = errors.New("analysis failed")
	ErrUnknownChannel  = errors.New("unknown channel")
	ErrRuleEstimation  = errors.New("rule estimation failed")
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrStagePanic      = errors.New("stage panicked")
	ErrFeedbackDropped = errors.New("feedback dropped")
)

// StageError attaches article identity and stage name to a per-article failure.
type StageError struct {
	Stage Stage
	Link  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("article %s: stage %s: %v", e.Link, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// RuleError reports a single revenue rule that could not produce an estimate.
type RuleError struct {
	Rule string
	Err  error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("revenue rule %s: %v", e.Rule, e.Err)
}

func (e *RuleError) Unwrap() []error {
	return []error{ErrRuleEstimation, e.Err}
}
