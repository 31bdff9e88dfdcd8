// Package worker puts a message queue in front of a pipeline orchestrator.
// Requests are handled one at a time in arrival order and every request
// gets exactly one response.
package worker

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/AnyUserName/imgcrush/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Status is the kind of a response.
type Status string

const (
	StatusInitialized Status = "initialized"
	StatusSuccess     Status = "success"
	StatusError       Status = "error"
)

// NotReadyMessage is sent for requests that arrive before initialization.
const NotReadyMessage = "Worker not initialized yet"

// KindInvalidRequest marks requests rejected before reaching the pipeline.
const KindInvalidRequest = "invalid_request"

// ErrInvalidRequest wraps every request shape error.
var ErrInvalidRequest = errors.New("invalid request")

var errEmptyFile = fmt.Errorf("%w: empty file", ErrInvalidRequest)

// Request asks for one file to be processed. File is base64 on the wire.
type Request struct {
	ID     string                `json:"id,omitempty"`
	File   []byte                `json:"file"`
	Config config.PipelineConfig `json:"config"`
}

// Response is posted back for every request, plus once on startup.
type Response struct {
	ID      string                 `json:"id,omitempty"`
	Status  Status                 `json:"status"`
	Data    []byte                 `json:"data,omitempty"`
	Config  *config.PipelineConfig `json:"config,omitempty"`
	Width   uint32                 `json:"width,omitempty"`
	Height  uint32                 `json:"height,omitempty"`
	Format  config.Format          `json:"format,omitempty"`
	Message string                 `json:"message,omitempty"`
	Kind    string                 `json:"kind,omitempty"`
}

// wireRequest lets missing fields be told apart from zero values.
type wireRequest struct {
	ID     string              `json:"id"`
	File   *[]byte             `json:"file"`
	Config jsoniter.RawMessage `json:"config"`
}

// ParseRequest decodes one JSON request. Config fields left out take their
// config.Default values. A missing, empty or mistyped file or a missing or
// mistyped config yields ErrInvalidRequest. The ID is returned even on error when it parsed.
func ParseRequest(line []byte) (Request, error) {
	var w wireRequest
	if err := json.Unmarshal(line, &w); err != nil {
		var id struct {
			ID string `json:"id"`
		}
		_ = json.Unmarshal(line, &id)
		return Request{ID: id.ID}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	req := Request{ID: w.ID}
	switch {
	case w.File == nil:
		return req, fmt.Errorf("%w: missing file", ErrInvalidRequest)
	case len(*w.File) == 0:
		return req, errEmptyFile
	case len(w.Config) == 0 || string(w.Config) == "null":
		return req, fmt.Errorf("%w: missing config", ErrInvalidRequest)
	}
	cfg := config.Default()
	if err := json.Unmarshal(w.Config, &cfg); err != nil {
		return req, fmt.Errorf("%w: config: %v", ErrInvalidRequest, err)
	}
	req.File = *w.File
	req.Config = cfg
	return req, nil
}
