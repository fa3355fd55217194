package protocol

import (
	"encoding/json"
	"testing"
)

func TestParseClientMessage_FindMatch(t *testing.T) {
	input := []byte(`{"type":"find-match","userId":"u1","preferences":{"tier":"free","gender":"any","region":"any"}}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeFindMatch {
		t.Fatalf("expected type %q, got %q", TypeFindMatch, msgType)
	}

	fm, ok := msg.(FindMatchMsg)
	if !ok {
		t.Fatalf("expected FindMatchMsg, got %T", msg)
	}
	if fm.UserID != "u1" {
		t.Errorf("expected userId %q, got %q", "u1", fm.UserID)
	}
	if fm.Preferences.Tier != "free" {
		t.Errorf("expected tier %q, got %q", "free", fm.Preferences.Tier)
	}
}

func TestParseClientMessage_SendMessage(t *testing.T) {
	input := []byte(`{"type":"send-message","message":"hello there"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeSendMessage {
		t.Fatalf("expected type %q, got %q", TypeSendMessage, msgType)
	}

	sm, ok := msg.(SendMessageMsg)
	if !ok {
		t.Fatalf("expected SendMessageMsg, got %T", msg)
	}
	if sm.Message != "hello there" {
		t.Errorf("expected message %q, got %q", "hello there", sm.Message)
	}
}

func TestParseClientMessage_Skip(t *testing.T) {
	input := []byte(`{"type":"skip","autoRequeue":true}`)

	_, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sk, ok := msg.(SkipMsg)
	if !ok {
		t.Fatalf("expected SkipMsg, got %T", msg)
	}
	if !sk.AutoRequeue {
		t.Error("expected autoRequeue true")
	}
}

func TestParseClientMessage_Signal(t *testing.T) {
	input := []byte(`{"type":"offer","to":"s2","sdp":{"foo":"bar"}}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeOffer {
		t.Fatalf("expected type %q, got %q", TypeOffer, msgType)
	}
	sig, ok := msg.(SignalMsg)
	if !ok {
		t.Fatalf("expected SignalMsg, got %T", msg)
	}
	if sig.To != "s2" {
		t.Errorf("expected to %q, got %q", "s2", sig.To)
	}
	if sig.Type != TypeOffer {
		t.Errorf("expected Type field set to %q, got %q", TypeOffer, sig.Type)
	}
}

func TestNewServerMessage_MatchFound(t *testing.T) {
	payload := MatchFoundMsg{
		MatchSessionID: "s2",
		MatchUserID:    "u2",
		WaitTime:       1200,
	}

	data, err := NewServerMessage(TypeMatchFound, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}

	if result["type"] != TypeMatchFound {
		t.Errorf("expected type %q, got %v", TypeMatchFound, result["type"])
	}
	if result["matchSessionID"] != "s2" {
		t.Errorf("expected matchSessionID %q, got %v", "s2", result["matchSessionID"])
	}
	waitTime, ok := result["waitTime"].(float64)
	if !ok {
		t.Fatalf("expected waitTime to be a number, got %T", result["waitTime"])
	}
	if int64(waitTime) != 1200 {
		t.Errorf("expected waitTime 1200, got %v", waitTime)
	}
}

func TestParseClientMessage_UnknownType(t *testing.T) {
	input := []byte(`{"type":"unknown-type","data":"something"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err == nil {
		t.Fatal("expected an error for unknown message type, got nil")
	}
	if msg != nil {
		t.Errorf("expected nil message for unknown type, got %v", msg)
	}
	if msgType != "unknown-type" {
		t.Errorf("expected returned type %q, got %q", "unknown-type", msgType)
	}
}

func TestRoundTrip_FindMatch(t *testing.T) {
	original := FindMatchMsg{
		Type:        TypeFindMatch,
		UserID:      "u1",
		Preferences: Preferences{Tier: "pro", Gender: "male", Region: "us"},
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	msgType, msg, err := ParseClientMessage(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeFindMatch {
		t.Fatalf("expected type %q, got %q", TypeFindMatch, msgType)
	}

	decoded, ok := msg.(FindMatchMsg)
	if !ok {
		t.Fatalf("expected FindMatchMsg, got %T", msg)
	}
	if decoded.UserID != original.UserID {
		t.Errorf("userId mismatch: expected %q, got %q", original.UserID, decoded.UserID)
	}
	if decoded.Preferences != original.Preferences {
		t.Errorf("preferences mismatch: expected %+v, got %+v", original.Preferences, decoded.Preferences)
	}
}

func TestRoundTrip_ServerMessage(t *testing.T) {
	original := MatchEndedMsg{
		Type:          TypeMatchEnded,
		Reason:        "skipped",
		FromSessionID: "s1",
		Disconnected:  true,
		AutoRequeue:   true,
	}

	data, err := NewServerMessage(TypeMatchEnded, original)
	if err != nil {
		t.Fatalf("failed to create server message: %v", err)
	}

	var decoded MatchEndedMsg
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}

	if decoded.Type != TypeMatchEnded {
		t.Errorf("type mismatch: expected %q, got %q", TypeMatchEnded, decoded.Type)
	}
	if decoded.Reason != original.Reason {
		t.Errorf("reason mismatch: expected %q, got %q", original.Reason, decoded.Reason)
	}
	if decoded.AutoRequeue != original.AutoRequeue {
		t.Errorf("autoRequeue mismatch: expected %v, got %v", original.AutoRequeue, decoded.AutoRequeue)
	}
}

func TestEnvelope_MissingType(t *testing.T) {
	input := []byte(`{"data":"no type field"}`)
	var env Envelope
	if err := json.Unmarshal(input, &env); err == nil {
		t.Fatal("expected error for missing type field, got nil")
	}
}

func TestEnvelope_InvalidJSON(t *testing.T) {
	input := []byte(`{invalid json}`)
	var env Envelope
	if err := json.Unmarshal(input, &env); err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
}

func TestParseClientMessage_AllTypes(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		wantType string
	}{
		{"find-match", `{"type":"find-match","userId":"u1","preferences":{"tier":"free","gender":"any","region":"any"}}`, TypeFindMatch},
		{"cancel-match", `{"type":"cancel-match"}`, TypeCancelMatch},
		{"skip", `{"type":"skip","autoRequeue":false}`, TypeSkip},
		{"send-message", `{"type":"send-message","message":"hi"}`, TypeSendMessage},
		{"typing", `{"type":"typing"}`, TypeTyping},
		{"stop-typing", `{"type":"stop-typing"}`, TypeStopTyping},
		{"offer", `{"type":"offer","to":"s2"}`, TypeOffer},
		{"answer", `{"type":"answer","to":"s1"}`, TypeAnswer},
		{"ice-candidate", `{"type":"ice-candidate","to":"s1"}`, TypeICECandidate},
		{"video-toggle", `{"type":"video-toggle","enabled":true}`, TypeVideoToggle},
		{"audio-toggle", `{"type":"audio-toggle","enabled":false}`, TypeAudioToggle},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msgType, msg, err := ParseClientMessage([]byte(tc.input))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if msgType != tc.wantType {
				t.Errorf("expected type %q, got %q", tc.wantType, msgType)
			}
			if msg == nil {
				t.Error("expected non-nil message")
			}
		})
	}
}
