// Package runlog records one manifest file per run so sessions can be
// audited after the fact.
package runlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion marks the manifest layout.
const SchemaVersion = 1

// Run lifecycle states.
const (
	StatePending  = "pending"
	StateRunning  = "running"
	StateFinished = "finished"
)

// Counters are the loop totals carried into the manifest.
type Counters struct {
	Iterations    int `json:"iterations"`
	Clicks        int `json:"clicks"`
	Scans         int `json:"scans"`
	Misses        int `json:"misses"`
	CaptureErrors int `json:"capture_errors"`
	MatchErrors   int `json:"match_errors"`
	TapErrors     int `json:"tap_errors"`
}

// Status tracks the run through its lifecycle.
type Status struct {
	State       string    `json:"state"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
	Termination string    `json:"termination"`
	Counters    Counters  `json:"counters"`
}

// Manifest describes one run.
type Manifest struct {
	SchemaVersion int       `json:"schema_version"`
	RunID         uuid.UUID `json:"run_id"`
	CreatedAt     time.Time `json:"created_at"`
	Hostname      string    `json:"hostname"`
	AppVersion    string    `json:"app_version"`
	Device        string    `json:"device"`
	Mode          string    `json:"mode"`
	ConfigSource  string    `json:"config_source"`
	Status        Status    `json:"status"`
}

// New builds a pending manifest with a fresh run id.
func New(device, mode, configSource, version string, now time.Time) *Manifest {
	host, _ := os.Hostname()
	return &Manifest{
		SchemaVersion: SchemaVersion,
		RunID:         uuid.New(),
		CreatedAt:     now.UTC(),
		Hostname:      host,
		AppVersion:    version,
		Device:        device,
		Mode:          mode,
		ConfigSource:  configSource,
		Status:        Status{State: StatePending},
	}
}

// Filename is stable for the run: creation timestamp plus id prefix.
func (m *Manifest) Filename() string {
	return m.CreatedAt.Format("20060102_150405") + "_" + m.RunID.String()[:8] + ".json"
}

// Start moves the manifest to running.
func (m *Manifest) Start(now time.Time) {
	m.Status.State = StateRunning
	m.Status.StartedAt = now.UTC()
}

// Finish records the outcome and final counters.
func (m *Manifest) Finish(now time.Time, termination string, c Counters) {
	m.Status.State = StateFinished
	m.Status.EndedAt = now.UTC()
	m.Status.Termination = termination
	m.Status.Counters = c
}

// Save writes the manifest under dir, creating it as needed, and
// returns the file path.
func (m *Manifest) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("runs dir: %w", err)
	}
	buf, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", err
	}
	buf = append(buf, '\n')
	path := filepath.Join(dir, m.Filename())
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return path, nil
}

// Load reads a manifest back.
func Load(path string) (*Manifest, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(buf, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &m, nil
}
