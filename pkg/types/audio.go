package types //nolint:revive // package name is intentional

import "fmt"

// TranscriptionRequest represents an audio transcription request. The file
// arrives as multipart form data and is carried as raw bytes.
type TranscriptionRequest struct {
	File           []byte   `json:"-"`
	FileName       string   `json:"-"`
	Model          string   `json:"model"`
	Language       string   `json:"language,omitempty"`
	Prompt         string   `json:"prompt,omitempty"`
	ResponseFormat string   `json:"response_format,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty"`
}

// Validate checks the transcription request.
func (r *TranscriptionRequest) Validate() error {
	if len(r.File) == 0 {
		return fmt.Errorf("file is required")
	}
	if r.Model == "" {
		return fmt.Errorf("model is required")
	}
	return nil
}

// TranscriptionResponse represents a transcription result. Only Text is set
// for the default json format; verbose_json fills the rest.
type TranscriptionResponse struct {
	Text     string                 `json:"text"`
	Task     string                 `json:"task,omitempty"`
	Language string                 `json:"language,omitempty"`
	Duration float64                `json:"duration,omitempty"`
	Segments []TranscriptionSegment `json:"segments,omitempty"`
	Usage    *Usage                 `json:"usage,omitempty"`
}

// TranscriptionSegment is a verbose_json segment.
type TranscriptionSegment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// SpeechRequest represents a text-to-speech request.
type SpeechRequest struct {
	Model          string   `json:"model"`
	Input          string   `json:"input"`
	Voice          string   `json:"voice"`
	ResponseFormat string   `json:"response_format,omitempty"`
	Speed          *float64 `json:"speed,omitempty"`
}

// Validate checks the speech request.
func (r *SpeechRequest) Validate() error {
	if r.Model == "" {
		return fmt.Errorf("model is required")
	}
	if r.Input == "" {
		return fmt.Errorf("input is required")
	}
	if r.Voice == "" {
		return fmt.Errorf("voice is required")
	}
	return nil
}

// SpeechResult carries synthesized audio with its media type. Providers that
// return raw PCM16 are wrapped into RIFF/WAVE before this is built.
type SpeechResult struct {
	Audio       []byte
	ContentType string
}
