package domain

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidArgument reports bad call-site input such as a missing url or id.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNetworkUnavailable reports no usable network or a declined cellular download.
	ErrNetworkUnavailable = errors.New("could not detect a usable network connection")
	// ErrDownloadFailed reports a transfer-level failure for one model id.
	ErrDownloadFailed = errors.New("download failed")
	// ErrBridgeTimeout reports that the native bridge did not answer in time.
	ErrBridgeTimeout = errors.New("no response from native bridge")
	// ErrBridgeError reports a failure announced by the native bridge.
	ErrBridgeError = errors.New("native bridge error")
	// ErrModelFormat reports a model file the native engine could not load.
	ErrModelFormat = errors.New("model file format error")
	// ErrPermissionDenied reports missing microphone or speech permission.
	ErrPermissionDenied = errors.New("speech permission denied")
)

// modelFormatMarkers are lowercase fragments of native messages caused by
// corrupt or truncated model files.
var modelFormatMarkers = []string{
	"flatbuffer",
	"model format",
	"invalid model",
	"not a valid model",
	"unsupported file format",
	"failed to load model",
	"corrupt",
}

// IsModelFormatMessage reports whether a native error message points at a
// damaged model file.
func IsModelFormatMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range modelFormatMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// BridgeError carries the message of a bridge `error` event.
type BridgeError struct {
	Kind    EventKind
	Message string
}

// Error returns the bridge message unchanged.
func (e *BridgeError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Is matches ErrBridgeError, and ErrModelFormat for model-format messages.
func (e *BridgeError) Is(target error) bool {
	switch target {
	case ErrBridgeError:
		return true
	case ErrModelFormat:
		return IsModelFormatMessage(e.Message)
	default:
		return false
	}
}
