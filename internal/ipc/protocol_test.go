package ipc

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/austinkregel/local-media/resonanced/internal/analysis"
)

func TestEncodeRequest(t *testing.T) {
	req := &Request{
		Cmd:  CmdClassify,
		Data: json.RawMessage(`{"hz":528}`),
	}

	data, err := EncodeRequest(req)
	if err != nil {
		t.Fatalf("EncodeRequest failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Result is not valid JSON: %v", err)
	}

	if decoded["cmd"] != "classify" {
		t.Errorf("Expected cmd 'classify', got '%v'", decoded["cmd"])
	}
}

func TestDecodeRequest(t *testing.T) {
	data := []byte(`{"cmd":"pauseAnalysis"}`)

	req, err := DecodeRequest(data)
	if err != nil {
		t.Fatalf("DecodeRequest failed: %v", err)
	}

	if req.Cmd != CmdPauseAnalysis {
		t.Errorf("Expected cmd 'pauseAnalysis', got '%s'", req.Cmd)
	}
}

func TestDecodeRequestWithData(t *testing.T) {
	data := []byte(`{"cmd":"analyzeFile","data":{"path":"/music/tone.flac"}}`)

	req, err := DecodeRequest(data)
	if err != nil {
		t.Fatalf("DecodeRequest failed: %v", err)
	}

	var pathReq PathRequest
	if err := json.Unmarshal(req.Data, &pathReq); err != nil {
		t.Fatalf("Failed to unmarshal data: %v", err)
	}

	if pathReq.Path != "/music/tone.flac" {
		t.Errorf("Expected path '/music/tone.flac', got '%s'", pathReq.Path)
	}
}

func TestDecodeRequestInvalid(t *testing.T) {
	if _, err := DecodeRequest([]byte(`not valid json`)); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

func TestEncodeDecodeResponse(t *testing.T) {
	resp, err := NewSuccessResponse(map[string]string{"status": "running"})
	if err != nil {
		t.Fatalf("NewSuccessResponse failed: %v", err)
	}

	data, err := EncodeResponse(resp)
	if err != nil {
		t.Fatalf("EncodeResponse failed: %v", err)
	}

	decoded, err := DecodeResponse(data)
	if err != nil {
		t.Fatalf("DecodeResponse failed: %v", err)
	}
	if !decoded.Success || decoded.Data == nil {
		t.Errorf("Expected success with data, got %+v", decoded)
	}
}

func TestDecodeResponseError(t *testing.T) {
	resp, err := DecodeResponse([]byte(`{"success":false,"error":"no result for path"}`))
	if err != nil {
		t.Fatalf("DecodeResponse failed: %v", err)
	}
	if resp.Success {
		t.Error("Expected success to be false")
	}
	if resp.Error != "no result for path" {
		t.Errorf("Unexpected error %q", resp.Error)
	}
}

func TestNewSuccessResponseNilData(t *testing.T) {
	resp, err := NewSuccessResponse(nil)
	if err != nil {
		t.Fatalf("NewSuccessResponse failed: %v", err)
	}
	if !resp.Success || resp.Data != nil {
		t.Errorf("Expected success without data, got %+v", resp)
	}
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse("something went wrong")
	if resp.Success {
		t.Error("Expected success to be false")
	}
	if resp.Error != "something went wrong" {
		t.Errorf("Expected error 'something went wrong', got '%s'", resp.Error)
	}
}

func TestCommandTypes(t *testing.T) {
	commands := map[CommandType]string{
		CmdAnalyzeFile:        "analyzeFile",
		CmdClassify:           "classify",
		CmdAssess:             "assess",
		CmdCanonicalTable:     "canonicalTable",
		CmdGetResult:          "getResult",
		CmdGetConfig:          "getConfig",
		CmdPlayTone:           "playTone",
		CmdStopTone:           "stopTone",
		CmdPauseTone:          "pauseTone",
		CmdResumeTone:         "resumeTone",
		CmdStartAnalysis:      "startAnalysis",
		CmdStopAnalysis:       "stopAnalysis",
		CmdPauseAnalysis:      "pauseAnalysis",
		CmdResumeAnalysis:     "resumeAnalysis",
		CmdAnalysisStatus:     "analysisStatus",
		CmdSubscribeResults:   "subscribeResults",
		CmdUnsubscribeResults: "unsubscribeResults",
	}

	for cmd, expected := range commands {
		if string(cmd) != expected {
			t.Errorf("Expected command '%s', got '%s'", expected, cmd)
		}
	}
}

func TestNewPushMessage(t *testing.T) {
	msg := NewResultMessage(analysis.ItemResult{
		Path:   "/music/a.wav",
		Status: analysis.StatusFailed,
		Error:  errors.New("decode failed"),
	})

	data, err := NewPushMessage(PushAnalysisResult, msg)
	if err != nil {
		t.Fatalf("NewPushMessage failed: %v", err)
	}

	var push PushMessage
	if err := json.Unmarshal(data, &push); err != nil {
		t.Fatalf("Invalid push JSON: %v", err)
	}
	if push.Type != "analysisResult" {
		t.Errorf("Expected analysisResult, got %s", push.Type)
	}

	var decoded ResultMessage
	if err := json.Unmarshal(push.Data, &decoded); err != nil {
		t.Fatalf("Invalid push data: %v", err)
	}
	if decoded.Status != analysis.StatusFailed || decoded.Error != "decode failed" || decoded.Result != nil {
		t.Errorf("Unexpected message: %+v", decoded)
	}
}
