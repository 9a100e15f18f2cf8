package protocol

import (
	"encoding/json"
	"testing"
)

func TestMessage_DecodeRequest(t *testing.T) {
	raw := []byte(`{"id":"req_1","type":"req","op":"agent.run","payload":{"task":"What is 25 * 47?"}}`)
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if msg.Op != OpAgentRun || msg.Type != TypeRequest {
		t.Fatalf("unexpected message: %+v", msg)
	}
	var req RunRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		t.Fatalf("payload unmarshal failed: %v", err)
	}
	if req.Task != "What is 25 * 47?" {
		t.Fatalf("unexpected task: %q", req.Task)
	}
}

func TestNewErrorResponse_Shape(t *testing.T) {
	msg := NewErrorResponse("req_1", OpAgentRun, CodeIterationLimit, "agent loop exceeded max iterations: 2",
		RunResult{RunID: "r1", State: "aborted", Iterations: 2})
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	want := `{"id":"req_1","type":"res","op":"agent.run","payload":{"run_id":"r1","state":"aborted","iterations":2},"error":{"code":"iteration_limit","message":"agent loop exceeded max iterations: 2"}}`
	if string(raw) != want {
		t.Fatalf("unexpected json:\n%s", raw)
	}
}
