// Package models provides the regressors that predict exam marks from
// feature vectors.
package models

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotTrained is returned by Predict before a successful Train.
	ErrNotTrained = errors.New("model not trained")

	// ErrNoTrainingData is returned by Train for an empty matrix.
	ErrNoTrainingData = errors.New("no training data")
)

// Model is a regressor over fixed-width feature rows.
type Model interface {
	Name() string

	// Train fits the model on rows x with targets y. x and y must have the
	// same length and every row the same width.
	Train(ctx context.Context, x [][]float64, y []float64) error

	// Predict returns one value per row of x.
	Predict(ctx context.Context, x [][]float64) ([]float64, error)
}

// ShapeError reports a feature matrix that does not match what the model
// expects.
type ShapeError struct {
	Row  int
	Want int
	Got  int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("row %d has %d features, want %d", e.Row, e.Got, e.Want)
}

func checkShape(x [][]float64, width int) error {
	for i, row := range x {
		if len(row) != width {
			return &ShapeError{Row: i, Want: width, Got: len(row)}
		}
	}
	return nil
}
