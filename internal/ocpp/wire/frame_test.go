package wire

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeCall(t *testing.T) {
	raw := []byte(`[2,"m1","BootNotification",{"chargePointVendor":"V","chargePointModel":"M"}]`)

	f, err := Decode(raw)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if f.Type != Call {
		t.Errorf("expected type %d, got %d", Call, f.Type)
	}
	if f.MessageID != "m1" {
		t.Errorf("expected message id 'm1', got '%s'", f.MessageID)
	}
	if f.Action != "BootNotification" {
		t.Errorf("expected action 'BootNotification', got '%s'", f.Action)
	}

	var payload map[string]string
	if err := json.Unmarshal(f.Payload, &payload); err != nil {
		t.Fatalf("payload not unmarshalable: %v", err)
	}
	if payload["chargePointVendor"] != "V" {
		t.Errorf("unexpected payload: %v", payload)
	}
}

func TestDecodeCallResult(t *testing.T) {
	f, err := Decode([]byte(`[3,"m2",{"currentTime":"2026-01-01T00:00:00Z"}]`))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if f.Type != CallResult || f.MessageID != "m2" {
		t.Errorf("unexpected frame: %+v", f)
	}
}

func TestDecodeCallError(t *testing.T) {
	f, err := Decode([]byte(`[4,"m3","NotImplemented","no such action",{}]`))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if f.ErrorCode != ErrNotImplemented {
		t.Errorf("expected code NotImplemented, got %s", f.ErrorCode)
	}
	if f.ErrorDescription != "no such action" {
		t.Errorf("unexpected description: %s", f.ErrorDescription)
	}
}

func TestDecodeRejects(t *testing.T) {
	cases := []struct {
		name      string
		raw       string
		recovered string // expected recoverable message id, empty = none
	}{
		{"not json", `{`, ""},
		{"not an array", `{"a":1}`, ""},
		{"too short", `[2,"m1"]`, ""},
		{"non-integer type", `["2","m1","Heartbeat",{}]`, ""},
		{"non-string id", `[2,42,"Heartbeat",{}]`, ""},
		{"unknown type", `[7,"m1",{}]`, "m1"},
		{"call wrong arity", `[2,"m1","Heartbeat"]`, ""},
		{"call non-string action", `[2,"m1",5,{}]`, "m1"},
		{"result wrong arity", `[3,"m1","x",{}]`, "m1"},
		{"error wrong arity", `[4,"m1","Code",{}]`, "m1"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.raw))
			if err == nil {
				t.Fatal("expected decode error")
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("expected DecodeError, got %T", err)
			}
			if de.MessageID != tc.recovered {
				t.Errorf("expected recovered id '%s', got '%s'", tc.recovered, de.MessageID)
			}
		})
	}
}

func TestCallRoundTrip(t *testing.T) {
	payload := map[string]interface{}{"connectorId": float64(1), "idTag": "TAG-1"}

	raw, err := MarshalCall("m9", "RemoteStartTransaction", payload)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	f, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if f.Type != Call || f.MessageID != "m9" || f.Action != "RemoteStartTransaction" {
		t.Errorf("round trip mismatch: %+v", f)
	}

	var got map[string]interface{}
	if err := json.Unmarshal(f.Payload, &got); err != nil {
		t.Fatal(err)
	}
	if got["idTag"] != "TAG-1" || got["connectorId"] != float64(1) {
		t.Errorf("payload mismatch: %v", got)
	}
}

func TestCallErrorRoundTrip(t *testing.T) {
	raw, err := MarshalCallError("m4", ErrFormationViolation, "bad payload", nil)
	if err != nil {
		t.Fatal(err)
	}
	f, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	if f.Type != CallError || f.ErrorCode != ErrFormationViolation || f.ErrorDescription != "bad payload" {
		t.Errorf("round trip mismatch: %+v", f)
	}
}

func TestMarshalNilPayload(t *testing.T) {
	raw, err := MarshalCallResult("m5", nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `[3,"m5",{}]` {
		t.Errorf("expected empty object payload, got %s", raw)
	}
}
