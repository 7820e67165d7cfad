// Package agents implements the text-extraction pipeline agents and their
// spec functions. Agents do the work and populate convention keys in the
// run state; specs validate those keys; neither decides what runs next.
package agents

// Convention keys in the run state's working data. Steps share these by
// agreement; the engine does not interpret them.
const (
	KeyInputFolder    = "input_folder"
	KeyOutputFolder   = "output_folder"
	KeyLoadedFiles    = "loaded_files"
	KeyExtractedItems = "extracted_items"
	KeyWrittenFiles   = "written_files"
)

// Convention keys in the run state's config.
const (
	ConfigAPIKey      = "api_key"
	ConfigModel       = "model"
	ConfigTemperature = "temperature"
)

// Registered agent names, referenced by manifests.
const (
	IntakeAgentName  = "intake_agent"
	ExtractAgentName = "extract_agent"
	WriteAgentName   = "write_agent"
)
