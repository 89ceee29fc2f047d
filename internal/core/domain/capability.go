package domain

import (
	"fmt"
	"strings"
)

// Capability is a category of request routed independently of the others.
type Capability string

const (
	CapabilityChat     Capability = "chat"
	CapabilityVision   Capability = "vision"
	CapabilityImageGen Capability = "image_gen"
	CapabilityAudioSTT Capability = "audio_stt"
	CapabilityAudioTTS Capability = "audio_tts"
)

// Capabilities lists every routable capability in display order.
var Capabilities = []Capability{
	CapabilityChat,
	CapabilityVision,
	CapabilityImageGen,
	CapabilityAudioSTT,
	CapabilityAudioTTS,
}

func (c Capability) Valid() bool {
	for _, known := range Capabilities {
		if c == known {
			return true
		}
	}
	return false
}

func (c Capability) String() string { return string(c) }

// ParseCapability normalizes and validates a capability name.
func ParseCapability(s string) (Capability, error) {
	c := Capability(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown capability %q", s)
	}
	return c, nil
}

// CapabilityDefaults are the recommended timeout and retry settings for a capability.
type CapabilityDefaults struct {
	TimeoutMS  int `json:"timeout_ms" mapstructure:"timeout_ms"`
	RetryCount int `json:"retry_count" mapstructure:"retry_count"`
}

// RecommendedDefaults returns the built-in defaults; media capabilities get longer timeouts.
func RecommendedDefaults(c Capability) CapabilityDefaults {
	switch c {
	case CapabilityVision, CapabilityAudioSTT:
		return CapabilityDefaults{TimeoutMS: 90000, RetryCount: 1}
	case CapabilityImageGen:
		return CapabilityDefaults{TimeoutMS: 120000, RetryCount: 1}
	default:
		return CapabilityDefaults{TimeoutMS: 60000, RetryCount: 1}
	}
}
