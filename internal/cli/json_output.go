// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"io"
	"time"
)

// JSONResponse is the envelope emitted for --json output, stable enough
// for scripting against.
type JSONResponse struct {
	Success   bool    `json:"success"`
	Command   string  `json:"command"`
	Data      any     `json:"data,omitempty"`
	Error     *string `json:"error,omitempty"`
	Timestamp string  `json:"timestamp"`
}

// NewJSONResponse builds a success envelope.
func NewJSONResponse(command string, data any) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Command:   command,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// NewJSONErrorResponse builds a failure envelope.
func NewJSONErrorResponse(command string, errMsg string) *JSONResponse {
	return &JSONResponse{
		Success:   false,
		Command:   command,
		Error:     &errMsg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// Encode writes the envelope as indented JSON.
func (r *JSONResponse) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// String renders the envelope for use as command output.
func (r *JSONResponse) String() string {
	out, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return `{"success":false,"error":"failed to encode response"}`
	}
	return string(out)
}
