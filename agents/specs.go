package agents

import (
	"fmt"

	"github.com/BaSui01/specflow/engine"
)

// RegisterSpecs adds the pipeline's spec functions to reg. Specs are pure:
// no IO, no state mutation, deterministic for the same state.
func RegisterSpecs(reg *engine.SpecRegistry) error {
	specs := map[string]engine.SpecFunc{
		"intake_pre":        intakePre,
		"intake_post":       intakePost,
		"extract_pre":       extractPre,
		"extract_post":      extractPost,
		"write_pre":         writePre,
		"write_post":        writePost,
		"global_invariant":  globalInvariant,
		"pipeline_progress": pipelineProgress,
	}
	for name, fn := range specs {
		if err := reg.Register(name, fn); err != nil {
			return err
		}
	}
	return nil
}

// intakePre: input_folder must be set and non-empty.
func intakePre(s *engine.State) engine.SpecResult {
	folder, _ := s.GetString(KeyInputFolder)
	if folder == "" {
		return engine.SpecResult{
			RuleID:       "intake_pre",
			Message:      "input_folder is not set in working data",
			SuggestedFix: "Set input_folder to a valid directory path",
			Tags:         []string{"pre", "intake"},
		}
	}
	return engine.SpecResult{
		RuleID:  "intake_pre",
		Passed:  true,
		Message: "input_folder is set: " + folder,
		Tags:    []string{"pre", "intake"},
	}
}

// intakePost: loaded_files must be a non-empty list.
func intakePost(s *engine.State) engine.SpecResult {
	files, ok := s.GetSlice(KeyLoadedFiles)
	if !ok || len(files) == 0 {
		return engine.SpecResult{
			RuleID:       "intake_post",
			Message:      "no files were loaded",
			SuggestedFix: "Ensure input_folder contains .txt or .md files",
			Tags:         []string{"post", "intake"},
		}
	}
	return engine.SpecResult{
		RuleID:  "intake_post",
		Passed:  true,
		Message: fmt.Sprintf("%d file(s) loaded", len(files)),
		Tags:    []string{"post", "intake"},
	}
}

// extractPre: loaded_files must exist and the API key must be configured.
func extractPre(s *engine.State) engine.SpecResult {
	files, _ := s.GetSlice(KeyLoadedFiles)
	if len(files) == 0 {
		return engine.SpecResult{
			RuleID:       "extract_pre",
			Message:      "no loaded_files in working data",
			SuggestedFix: "Run the intake step first to load files",
			Tags:         []string{"pre", "extract"},
		}
	}
	apiKey, _ := s.GetConfigString(ConfigAPIKey)
	if apiKey == "" {
		return engine.SpecResult{
			RuleID:       "extract_pre",
			Message:      "api_key is not configured",
			SuggestedFix: "Set the LLM API key in the configuration",
			Tags:         []string{"pre", "extract", "config"},
		}
	}
	return engine.SpecResult{
		RuleID:  "extract_pre",
		Passed:  true,
		Message: fmt.Sprintf("%d file(s) ready, API key configured", len(files)),
		Tags:    []string{"pre", "extract"},
	}
}

// extractPost: extracted_items must be non-empty and every item needs a
// title.
func extractPost(s *engine.State) engine.SpecResult {
	items, ok := s.GetSlice(KeyExtractedItems)
	if !ok || len(items) == 0 {
		return engine.SpecResult{
			RuleID:       "extract_post",
			Message:      "no items were extracted",
			SuggestedFix: "Check the LLM response format or input file content",
			Tags:         []string{"post", "extract"},
		}
	}
	var missing []int
	for i, raw := range items {
		item, _ := raw.(map[string]any)
		if title, _ := item["title"].(string); title == "" {
			missing = append(missing, i)
		}
	}
	if len(missing) > 0 {
		return engine.SpecResult{
			RuleID:       "extract_post",
			Message:      fmt.Sprintf("items at indices %v have no title", missing),
			SuggestedFix: "Ensure the LLM prompt requires a title for each item",
			Tags:         []string{"post", "extract", "schema"},
		}
	}
	return engine.SpecResult{
		RuleID:  "extract_post",
		Passed:  true,
		Message: fmt.Sprintf("%d item(s) extracted, all with titles", len(items)),
		Tags:    []string{"post", "extract"},
	}
}

// writePre: extracted_items and output_folder must exist.
func writePre(s *engine.State) engine.SpecResult {
	items, _ := s.GetSlice(KeyExtractedItems)
	if len(items) == 0 {
		return engine.SpecResult{
			RuleID:       "write_pre",
			Message:      "no extracted_items to write",
			SuggestedFix: "Run the extract step first",
			Tags:         []string{"pre", "write"},
		}
	}
	folder, _ := s.GetString(KeyOutputFolder)
	if folder == "" {
		return engine.SpecResult{
			RuleID:       "write_pre",
			Message:      "output_folder is not set",
			SuggestedFix: "Set output_folder to a valid directory path",
			Tags:         []string{"pre", "write"},
		}
	}
	return engine.SpecResult{
		RuleID:  "write_pre",
		Passed:  true,
		Message: fmt.Sprintf("%d item(s) ready, output_folder set: %s", len(items), folder),
		Tags:    []string{"pre", "write"},
	}
}

// writePost: written_files must be non-empty.
func writePost(s *engine.State) engine.SpecResult {
	written, ok := s.GetSlice(KeyWrittenFiles)
	if !ok || len(written) == 0 {
		return engine.SpecResult{
			RuleID:       "write_post",
			Message:      "no files were written",
			SuggestedFix: "Check output_folder permissions and disk space",
			Tags:         []string{"post", "write"},
		}
	}
	return engine.SpecResult{
		RuleID:  "write_post",
		Passed:  true,
		Message: fmt.Sprintf("%d file(s) written", len(written)),
		Tags:    []string{"post", "write"},
	}
}

// globalInvariant: the run ID must always be set.
func globalInvariant(s *engine.State) engine.SpecResult {
	if s.RunID == "" {
		return engine.SpecResult{
			RuleID:       "global_invariant",
			Message:      "run_id is missing from state",
			SuggestedFix: "Internal error: the state was not initialized properly",
			Tags:         []string{"invariant"},
		}
	}
	short := s.RunID
	if len(short) > 8 {
		short = short[:8]
	}
	return engine.SpecResult{
		RuleID:  "global_invariant",
		Passed:  true,
		Message: "run_id=" + short + "...",
		Tags:    []string{"invariant"},
	}
}

// pipelineProgress always passes; its message reports 0-100% progress
// derived from which convention keys exist yet.
func pipelineProgress(s *engine.State) engine.SpecResult {
	score := 0
	if files, _ := s.GetSlice(KeyLoadedFiles); len(files) > 0 {
		score += 33
	}
	if items, _ := s.GetSlice(KeyExtractedItems); len(items) > 0 {
		score += 33
	}
	if written, _ := s.GetSlice(KeyWrittenFiles); len(written) > 0 {
		score += 34
	}
	return engine.SpecResult{
		RuleID:  "pipeline_progress",
		Passed:  true,
		Message: fmt.Sprintf("progress: %d%%", score),
		Tags:    []string{"progress"},
	}
}
