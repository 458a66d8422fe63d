package chatbot

import "sort"

// NodeType distinguishes nodes that fetch data for the prompt from nodes
// that only flip a serving-layer flag.
type NodeType string

const (
	// TypeDataAccess nodes contribute a data module to the assembled prompt.
	TypeDataAccess NodeType = "data_access"

	// TypeBehavioral nodes carry no server-side fetch; they toggle a
	// capability flag consumed by the serving layer.
	TypeBehavioral NodeType = "behavioral"
)

// Node keys. These are wire-stable identifiers stored in chatbot_nodes.
const (
	KeyVoice        = "voice"
	KeyWebSearch    = "web_search"
	KeyAttachments  = "attachments"
	KeySTTInput     = "stt_input"
	KeyBusinessInfo = "business_info"
	KeyMachines     = "machines"
	KeyPlaybooks    = "playbooks"
)

// Definition is the static, deploy-time description of a capability node.
type Definition struct {
	Key         string
	Name        string
	Type        NodeType
	NewSettings func() NodeSettings
}

// registry is the static node table. It is deliberately not a database:
// attaching a node key absent from this table is a configuration error.
var registry = map[string]Definition{
	KeyVoice: {
		Key:  KeyVoice,
		Name: "Voice Output",
		Type: TypeBehavioral,
		NewSettings: func() NodeSettings {
			return &VoiceSettings{Stability: 0.5, Speed: 1.0}
		},
	},
	KeyWebSearch: {
		Key:  KeyWebSearch,
		Name: "Web Search",
		Type: TypeBehavioral,
		NewSettings: func() NodeSettings {
			return &WebSearchSettings{MaxResults: 5}
		},
	},
	KeyAttachments: {
		Key:  KeyAttachments,
		Name: "File Attachments",
		Type: TypeBehavioral,
		NewSettings: func() NodeSettings {
			return &AttachmentSettings{MaxFiles: 3, MaxSizeMB: 10}
		},
	},
	KeySTTInput: {
		Key:  KeySTTInput,
		Name: "Speech-to-Text Input",
		Type: TypeBehavioral,
		NewSettings: func() NodeSettings {
			return &STTSettings{Language: "en"}
		},
	},
	KeyBusinessInfo: {
		Key:  KeyBusinessInfo,
		Name: "Business Info",
		Type: TypeDataAccess,
		NewSettings: func() NodeSettings {
			return &DataModuleSettings{ModuleKey: KeyBusinessInfo, Limit: 1}
		},
	},
	KeyMachines: {
		Key:  KeyMachines,
		Name: "Machines",
		Type: TypeDataAccess,
		NewSettings: func() NodeSettings {
			return &DataModuleSettings{ModuleKey: KeyMachines, Limit: 20}
		},
	},
	KeyPlaybooks: {
		Key:  KeyPlaybooks,
		Name: "Playbooks",
		Type: TypeDataAccess,
		NewSettings: func() NodeSettings {
			return &DataModuleSettings{ModuleKey: KeyPlaybooks, Limit: 10}
		},
	},
}

// Lookup returns the definition for a node key.
func Lookup(key string) (Definition, bool) {
	def, ok := registry[key]
	return def, ok
}

// Definitions returns all node definitions ordered by key, for the admin UI.
func Definitions() []Definition {
	out := make([]Definition, 0, len(registry))
	for _, def := range registry {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
