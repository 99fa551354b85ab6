package device

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsComparesByCode(t *testing.T) {
	err := NewError(CodeIsNotConnected, "read %s", "2a37")

	assert.ErrorIs(t, err, ErrIsNotConnected)
	assert.NotErrorIs(t, err, ErrBLEIsOff)
	assert.ErrorIs(t, fmt.Errorf("wrapped: %w", err), ErrIsNotConnected, "wrapping MUST preserve the code")
	assert.Equal(t, "IS_NOT_CONNECTED: read 2a37", err.Error())
}

func TestError_UnwrapKeepsCause(t *testing.T) {
	cause := errors.New("att: insufficient authentication")
	err := AsError(cause)

	assert.Equal(t, CodeOperationFailed, err.Code)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "insufficient authentication")
}

func TestAsError(t *testing.T) {
	tests := []struct {
		name     string
		input    error
		expected Code
	}{
		{name: "session error passes through", input: ErrDeviceNotFound, expected: CodeDeviceNotFound},
		{name: "wrapped session error is unwrapped", input: fmt.Errorf("ctx: %w", ErrTimeout), expected: CodeTimeout},
		{name: "bluetooth off maps to BLE_IS_OFF", input: fmt.Errorf("%w: have=4 want=5", ErrBluetoothOff), expected: CodeBLEIsOff},
		{name: "unknown driver error", input: errors.New("boom"), expected: CodeOperationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AsError(tt.input).Code)
		})
	}

	assert.Nil(t, AsError(nil))
}

func TestError_MarshalJSON(t *testing.T) {
	payload := struct {
		Error *Error `json:"error"`
	}{Error: NewError(CodeBLEIsOff, "adapter powered off")}

	data, err := json.Marshal(payload)
	assert.NoError(t, err)
	assert.JSONEq(t, `{"error":"BLE_IS_OFF"}`, string(data))

	payload.Error = nil
	data, err = json.Marshal(payload)
	assert.NoError(t, err)
	assert.JSONEq(t, `{"error":null}`, string(data))
}

func TestHasCode(t *testing.T) {
	assert.True(t, HasCode(fmt.Errorf("x: %w", ErrConnectionFailed), CodeConnectionFailed))
	assert.False(t, HasCode(errors.New("plain"), CodeConnectionFailed))
	assert.False(t, HasCode(nil, CodeConnectionFailed))
}

func TestNotFoundError(t *testing.T) {
	assert.Equal(t, "service not found", (&NotFoundError{Resource: "service"}).Error())
	assert.Equal(t, `service "180d" not found`, (&NotFoundError{Resource: "service", UUIDs: []string{"180d"}}).Error())
	assert.Equal(t, `characteristic "2a37" not found in service "180d"`,
		(&NotFoundError{Resource: "characteristic", UUIDs: []string{"180d", "2a37"}}).Error())
}

func TestDevice_DisplayName(t *testing.T) {
	assert.Equal(t, "AA:BB", Device{Address: "AA:BB"}.DisplayName())
	assert.Equal(t, "AA:BB", Device{Address: "AA:BB", Name: "  "}.DisplayName())
	assert.Equal(t, "Sensor", Device{Address: "AA:BB", Name: "Sensor"}.DisplayName())
}

func TestConnectionState_String(t *testing.T) {
	assert.Equal(t, "DISCONNECTED", Disconnected.String())
	assert.Equal(t, "CONNECTING", Connecting.String())
	assert.Equal(t, "CONNECTED", Connected.String())

	data, err := json.Marshal(Connected)
	assert.NoError(t, err)
	assert.Equal(t, `"CONNECTED"`, string(data))
}
