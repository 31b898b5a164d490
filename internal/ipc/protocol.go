// Package ipc handles inter-process communication between the daemon and clients.
package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/austinkregel/local-media/resonanced/internal/analysis"
	"github.com/austinkregel/local-media/resonanced/internal/canon"
	"github.com/austinkregel/local-media/resonanced/internal/config"
	"github.com/austinkregel/local-media/resonanced/internal/safety"
	"github.com/austinkregel/local-media/resonanced/internal/scanner"
)

// CommandType represents the type of command
type CommandType string

const (
	CmdAnalyzeFile    CommandType = "analyzeFile"
	CmdClassify       CommandType = "classify"
	CmdAssess         CommandType = "assess"
	CmdCanonicalTable CommandType = "canonicalTable"
	CmdGetResult      CommandType = "getResult"
	CmdGetConfig      CommandType = "getConfig"

	// Tone preview
	CmdPlayTone   CommandType = "playTone"
	CmdStopTone   CommandType = "stopTone"
	CmdPauseTone  CommandType = "pauseTone"
	CmdResumeTone CommandType = "resumeTone"

	// Batch analysis
	CmdStartAnalysis  CommandType = "startAnalysis"
	CmdStopAnalysis   CommandType = "stopAnalysis"
	CmdPauseAnalysis  CommandType = "pauseAnalysis"
	CmdResumeAnalysis CommandType = "resumeAnalysis"
	CmdAnalysisStatus CommandType = "analysisStatus"

	// Result streaming
	CmdSubscribeResults   CommandType = "subscribeResults"
	CmdUnsubscribeResults CommandType = "unsubscribeResults"
)

// Push message types
const (
	PushAnalysisResult = "analysisResult"
	PushAnalysisDone   = "analysisComplete"
	PushToneDone       = "toneComplete"
)

// PushMessage represents a server-initiated message (no request needed)
type PushMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Request represents a client request
type Request struct {
	Cmd  CommandType     `json:"cmd"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Response represents a server response
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// PathRequest is the data for analyzeFile and getResult
type PathRequest struct {
	Path string `json:"path"`
}

// FrequencyRequest is the data for classify and assess
type FrequencyRequest struct {
	Hz float64 `json:"hz"`
}

// ToneRequest is the data for playTone. Zero Seconds and nil Volume fall
// back to the configured defaults.
type ToneRequest struct {
	Hz      float64  `json:"hz"`
	Seconds float64  `json:"seconds,omitempty"`
	Volume  *float64 `json:"volume,omitempty"`
}

// ToneResponse is the response to playTone
type ToneResponse struct {
	Assessment safety.Assessment `json:"assessment"`
	Volume     float64           `json:"volume"` // Gain actually applied
	Seconds    float64           `json:"seconds"`
}

// ToneStatus is the response to stopTone, pauseTone and resumeTone
type ToneStatus struct {
	Playing bool `json:"playing"`
	Paused  bool `json:"paused"`
}

// StartAnalysisRequest is the data for startAnalysis. Empty Paths means
// the configured library paths.
type StartAnalysisRequest struct {
	Paths []string `json:"paths,omitempty"`
	Force bool     `json:"force,omitempty"`
}

// StartAnalysisResponse is the response to startAnalysis
type StartAnalysisResponse struct {
	Queued int                  `json:"queued"`
	Scans  []scanner.ScanResult `json:"scans,omitempty"`
}

// ResultMessage carries one file's outcome, as a response to analyzeFile
// and as the analysisResult push.
type ResultMessage struct {
	Path    string           `json:"path"`
	Status  analysis.Status  `json:"status"`
	Result  *analysis.Result `json:"result,omitempty"`
	Error   string           `json:"error,omitempty"`
	Skipped bool             `json:"skipped,omitempty"`
}

// NewResultMessage converts a worker outcome for the wire.
func NewResultMessage(r analysis.ItemResult) ResultMessage {
	msg := ResultMessage{
		Path:    r.Path,
		Status:  r.Status,
		Result:  r.Result,
		Skipped: r.Skipped,
	}
	if r.Error != nil {
		msg.Error = r.Error.Error()
	}
	return msg
}

// RecordResponse is the response to getResult
type RecordResponse struct {
	Path string `json:"path"`
	*analysis.Record
}

// TableResponse is the response to canonicalTable
type TableResponse struct {
	Frequencies []canon.Frequency `json:"frequencies"`
	Default     canon.Frequency   `json:"default"`
}

// StatusResponse is the response to analysisStatus
type StatusResponse struct {
	analysis.WorkerStatus
	Scan   scanner.ScanStatus `json:"scan"`
	Stored int                `json:"stored"`
}

// ConfigResponse is the response to getConfig
type ConfigResponse struct {
	ConfigPath string `json:"configPath"`
	DataDir    string `json:"dataDir"`
	*config.Config
}

// EncodeRequest encodes a request to JSON
func EncodeRequest(req *Request) ([]byte, error) {
	return json.Marshal(req)
}

// DecodeRequest decodes a request from JSON
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	return &req, nil
}

// EncodeResponse encodes a response to JSON
func EncodeResponse(resp *Response) ([]byte, error) {
	return json.Marshal(resp)
}

// DecodeResponse decodes a response from JSON
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &resp, nil
}

// NewSuccessResponse creates a successful response
func NewSuccessResponse(data interface{}) (*Response, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, err
		}
	}
	return &Response{
		Success: true,
		Data:    rawData,
	}, nil
}

// NewErrorResponse creates an error response
func NewErrorResponse(err string) *Response {
	return &Response{
		Success: false,
		Error:   err,
	}
}

// NewPushMessage creates a push message for streaming data
func NewPushMessage(msgType string, data interface{}) ([]byte, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, err
		}
	}
	msg := PushMessage{
		Type: msgType,
		Data: rawData,
	}
	return json.Marshal(msg)
}
