// Package storage persists trained model artifacts.
//
// Every store holds at most one artifact under a fixed key. Put overwrites
// the previous version; Get reports a missing artifact with found=false and a
// damaged one with a *ModelUnavailableError.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/HatiCode/markcast/pkg/features"
	"github.com/HatiCode/markcast/pkg/models"
)

// ErrModelUnavailable matches every *ModelUnavailableError.
var ErrModelUnavailable = errors.New("model unavailable")

// ModelUnavailableError reports a persisted artifact that exists but cannot
// be decoded or fails validation.
type ModelUnavailableError struct {
	Location string
	Err      error
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("model artifact at %s is unreadable: %v", e.Location, e.Err)
}

func (e *ModelUnavailableError) Unwrap() error { return e.Err }

func (e *ModelUnavailableError) Is(target error) bool { return target == ErrModelUnavailable }

// Metrics describes the training run that produced an artifact.
type Metrics struct {
	Rows        int `json:"rows"`
	TrainRows   int `json:"trainRows"`
	HoldoutRows int `json:"holdoutRows"`
	Dropped     int `json:"dropped"`

	// HoldoutMSE is the mean squared error on the holdout rows. Zero when
	// HoldoutRows is zero.
	HoldoutMSE float64 `json:"holdoutMSE"`
}

// Artifact is a fitted regressor bundled with the category encoders its
// features were built with.
type Artifact struct {
	Model     *models.RandomForest `json:"model"`
	Encoders  features.Encoders    `json:"encoders"`
	Columns   []string             `json:"columns"`
	TrainedAt time.Time            `json:"trainedAt"`
	Metrics   Metrics              `json:"metrics"`
}

// Validate checks that the artifact can serve predictions.
func (a Artifact) Validate() error {
	if a.Model == nil || !a.Model.Trained() {
		return models.ErrNotTrained
	}
	if err := a.Encoders.Validate(); err != nil {
		return err
	}
	if !slices.Equal(a.Columns, features.Columns) {
		return fmt.Errorf("feature columns %v do not match %v", a.Columns, features.Columns)
	}
	if a.Model.Features() != len(a.Columns) {
		return fmt.Errorf("model expects %d features, artifact declares %d", a.Model.Features(), len(a.Columns))
	}
	return nil
}

// Store is a durable home for the current artifact.
type Store interface {
	Put(ctx context.Context, artifact Artifact) error
	Get(ctx context.Context) (Artifact, bool, error)
}

func encode(a Artifact) ([]byte, error) {
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("refusing to store invalid artifact: %w", err)
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal artifact: %w", err)
	}
	return data, nil
}

func decode(location string, data []byte) (Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return Artifact{}, &ModelUnavailableError{Location: location, Err: err}
	}
	if err := a.Validate(); err != nil {
		return Artifact{}, &ModelUnavailableError{Location: location, Err: err}
	}
	return a, nil
}
