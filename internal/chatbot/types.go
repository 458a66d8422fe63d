// Package chatbot manages chatbot configuration: base prompts, attached
// capability nodes, and their strongly-typed settings.
package chatbot

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when the chatbot does not exist or is inactive.
	ErrNotFound = errors.New("chatbot not found")

	// ErrDuplicateNode is returned when attaching a node key that is already
	// attached to the chatbot.
	ErrDuplicateNode = errors.New("node already attached")

	// ErrUnknownNode is returned when the node key has no registry definition.
	ErrUnknownNode = errors.New("unknown node key")

	// ErrInvalidSettings is returned when node settings fail validation.
	ErrInvalidSettings = errors.New("invalid node settings")
)

// Chatbot is an assistant configuration. BasePrompts are concatenated in
// order as the head of every assembled prompt.
type Chatbot struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	BasePrompts []string  `json:"basePrompts"`
	ModelName   string    `json:"modelName"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// NodeLink attaches a capability node to a chatbot. OrderIndex determines
// prompt assembly order; node_key is unique per chatbot.
//
// Settings is nil when the stored JSON could not be decoded against the
// node's settings type; consumers skip such links rather than failing.
type NodeLink struct {
	ChatbotID  uuid.UUID    `json:"chatbotId"`
	NodeKey    string       `json:"nodeKey"`
	OrderIndex int32        `json:"orderIndex"`
	Settings   NodeSettings `json:"settings"`
}

// NodeSettings is the tagged union of per-node-type settings. Each variant
// validates its own fields so malformed configuration is rejected at attach
// time instead of guessed at during assembly.
type NodeSettings interface {
	Kind() string
	Validate() error
}

// VoiceSettings configures the voice capability node.
type VoiceSettings struct {
	VoiceID   string  `json:"voiceId"`
	Stability float64 `json:"stability"`
	Speed     float64 `json:"speed"`
}

func (*VoiceSettings) Kind() string { return KeyVoice }

func (s *VoiceSettings) Validate() error {
	if s.Stability < 0 || s.Stability > 1 {
		return fmt.Errorf("%w: stability must be in [0, 1], got %v", ErrInvalidSettings, s.Stability)
	}
	if s.Speed < 0.5 || s.Speed > 2 {
		return fmt.Errorf("%w: speed must be in [0.5, 2], got %v", ErrInvalidSettings, s.Speed)
	}
	return nil
}

// WebSearchSettings configures the web-search capability node.
type WebSearchSettings struct {
	MaxResults int `json:"maxResults"`
}

func (*WebSearchSettings) Kind() string { return KeyWebSearch }

func (s *WebSearchSettings) Validate() error {
	if s.MaxResults < 1 || s.MaxResults > 20 {
		return fmt.Errorf("%w: maxResults must be in [1, 20], got %d", ErrInvalidSettings, s.MaxResults)
	}
	return nil
}

// AttachmentSettings configures the attachments capability node.
type AttachmentSettings struct {
	MaxFiles  int `json:"maxFiles"`
	MaxSizeMB int `json:"maxSizeMb"`
}

func (*AttachmentSettings) Kind() string { return KeyAttachments }

func (s *AttachmentSettings) Validate() error {
	if s.MaxFiles < 1 || s.MaxFiles > 10 {
		return fmt.Errorf("%w: maxFiles must be in [1, 10], got %d", ErrInvalidSettings, s.MaxFiles)
	}
	if s.MaxSizeMB < 1 || s.MaxSizeMB > 100 {
		return fmt.Errorf("%w: maxSizeMb must be in [1, 100], got %d", ErrInvalidSettings, s.MaxSizeMB)
	}
	return nil
}

// STTSettings configures the speech-to-text input node.
type STTSettings struct {
	Language string `json:"language"`
}

func (*STTSettings) Kind() string { return KeySTTInput }

func (s *STTSettings) Validate() error {
	if s.Language == "" {
		return fmt.Errorf("%w: language must not be empty", ErrInvalidSettings)
	}
	return nil
}

// DataModuleSettings configures data-access nodes (business info, machines,
// playbooks). Limit caps the number of rows rendered into the prompt.
type DataModuleSettings struct {
	ModuleKey string `json:"-"`
	Limit     int    `json:"limit"`
}

func (s *DataModuleSettings) Kind() string { return s.ModuleKey }

func (s *DataModuleSettings) Validate() error {
	if s.Limit < 1 || s.Limit > 50 {
		return fmt.Errorf("%w: limit must be in [1, 50], got %d", ErrInvalidSettings, s.Limit)
	}
	return nil
}

// DecodeSettings parses stored settings JSON against the settings type of the
// given node key. Returns ErrUnknownNode for keys without a definition and
// ErrInvalidSettings when the payload fails validation.
func DecodeSettings(nodeKey string, raw []byte) (NodeSettings, error) {
	def, ok := Lookup(nodeKey)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNode, nodeKey)
	}

	settings := def.NewSettings()
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, settings); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
		}
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// EncodeSettings serializes settings for storage.
func EncodeSettings(settings NodeSettings) ([]byte, error) {
	data, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("encoding settings: %w", err)
	}
	return data, nil
}
