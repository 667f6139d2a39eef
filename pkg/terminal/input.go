package terminal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Limits for client frames.
const (
	MaxInputDepth     = 2
	MaxInputKeys      = 8
	MaxInputStringLen = 64 * 1024
)

var (
	ErrInputTooDeep        = errors.New("JSON nesting too deep")
	ErrInputTooManyKeys    = errors.New("too many keys in JSON object")
	ErrInputStringTooLong  = errors.New("JSON string too long")
	ErrInputContentType    = errors.New("content must be a string")
	ErrInputMissingContent = errors.New("frame has no content")
)

// InputValidator checks the shape of incoming frames. Contents are never
// rewritten: the interpreter sees exactly what the client typed.
type InputValidator struct {
	MaxDepth     int
	MaxKeys      int
	MaxStringLen int
}

// NewInputValidator returns a validator with the default limits.
func NewInputValidator() *InputValidator {
	return &InputValidator{
		MaxDepth:     MaxInputDepth,
		MaxKeys:      MaxInputKeys,
		MaxStringLen: MaxInputStringLen,
	}
}

// DecodeInput extracts the line from a frame. JSON frames carry it in
// "content"; {"type":"keepalive"} frames only report keepalive and any other
// JSON object without "content" is rejected. Non-JSON frames are taken as
// the raw line with one trailing newline removed.
func (v *InputValidator) DecodeInput(data []byte) (line string, keepalive bool, err error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		if len(data) > v.MaxStringLen {
			return "", false, ErrInputStringTooLong
		}
		line = strings.TrimSuffix(string(data), "\n")
		line = strings.TrimSuffix(line, "\r")
		return line, false, nil
	}

	var obj map[string]interface{}
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return "", false, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := v.validateStructure(obj, 0); err != nil {
		return "", false, err
	}

	if t, ok := obj["type"].(string); ok && t == "keepalive" {
		return "", true, nil
	}
	raw, present := obj["content"]
	if !present {
		return "", false, ErrInputMissingContent
	}
	content, ok := raw.(string)
	if !ok {
		return "", false, ErrInputContentType
	}
	return content, false, nil
}

func (v *InputValidator) validateStructure(obj interface{}, depth int) error {
	if depth >= v.MaxDepth {
		return ErrInputTooDeep
	}

	switch val := obj.(type) {
	case map[string]interface{}:
		if len(val) > v.MaxKeys {
			return ErrInputTooManyKeys
		}
		for key, value := range val {
			if len(key) > v.MaxStringLen {
				return ErrInputStringTooLong
			}
			if err := v.validateStructure(value, depth+1); err != nil {
				return err
			}
		}
	case []interface{}:
		for _, item := range val {
			if err := v.validateStructure(item, depth+1); err != nil {
				return err
			}
		}
	case string:
		if len(val) > v.MaxStringLen {
			return ErrInputStringTooLong
		}
	}
	return nil
}
