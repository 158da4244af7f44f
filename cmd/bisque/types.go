package main

import "time"

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command string `json:"command"`
	Results any    `json:"results"`
	Error   string `json:"error,omitempty"`
}

// CLIFileHash is the content hash of one file.
type CLIFileHash struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
}

// CLIDeps lists the local files a source file depends on.
type CLIDeps struct {
	Source string   `json:"source"`
	Files  []string `json:"files"`
}

// CLIPlanStep is one job of a build plan.
type CLIPlanStep struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Hash     string `json:"hash"`
	Location string `json:"location"`
	Cached   bool   `json:"cached"`
}

// CLIBuildResult reports one built target.
type CLIBuildResult struct {
	Target string `json:"target"`
	Hash   string `json:"hash"`
	Path   string `json:"path"`
}

// CLIBuildSummary is the result of the build command.
type CLIBuildSummary struct {
	Targets   []CLIBuildResult `json:"targets"`
	JobsRun   int              `json:"jobs_run"`
	CacheHits int              `json:"cache_hits"`
	Duration  string           `json:"duration"`
}

// CLIRecord is a JSON-friendly ledger entry.
type CLIRecord struct {
	Hash       string     `json:"hash"`
	Kind       string     `json:"kind"`
	JobHash    string     `json:"job_hash"`
	Location   string     `json:"location"`
	RecordedAt time.Time  `json:"recorded_at"`
	Inputs     []CLIInput `json:"inputs,omitempty"`
}

// CLIInput is one input of a ledger entry.
type CLIInput struct {
	Hash     string `json:"hash"`
	Location string `json:"location"`
}
