package repository

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"reefcontrol/internal/models"
)

func TestFileSettings_MissingDocuments(t *testing.T) {
	t.Parallel()

	s := NewFileSettings(t.TempDir())

	if _, ok, err := s.LoadPumpProfiles(); ok || err != nil {
		t.Fatalf("missing pump doc: ok=%v err=%v", ok, err)
	}
	if _, ok, err := s.LoadHeaterConfig(); ok || err != nil {
		t.Fatalf("missing heat doc: ok=%v err=%v", ok, err)
	}
	if _, ok, err := s.LoadLastDose(); ok || err != nil {
		t.Fatalf("missing last dose doc: ok=%v err=%v", ok, err)
	}
}

func TestFileSettings_PumpProfiles(t *testing.T) {
	t.Parallel()

	s := NewFileSettings(t.TempDir())
	in := map[string]models.DoseProfile{
		"X": {Name: "alkalinity", VolumeML: 25.5, Direction: 1},
		"Y": {Name: "calcium", VolumeML: 10, Direction: -1},
	}
	if err := s.SavePumpProfiles(in); err != nil {
		t.Fatalf("SavePumpProfiles: %v", err)
	}

	out, ok, err := s.LoadPumpProfiles()
	if err != nil || !ok {
		t.Fatalf("LoadPumpProfiles: ok=%v err=%v", ok, err)
	}
	if out["X"] != in["X"] || out["Y"] != in["Y"] {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestFileSettings_HeaterConfig(t *testing.T) {
	t.Parallel()

	s := NewFileSettings(t.TempDir())
	in := models.HeaterConfig{
		Targets:    map[string]float64{"water": 25, "reserve": 30},
		State:      map[string]bool{"water": true},
		Auto:       true,
		Enabled:    true,
		Hysteresis: 0.3,
	}
	if err := s.SaveHeaterConfig(in); err != nil {
		t.Fatalf("SaveHeaterConfig: %v", err)
	}
	out, ok, err := s.LoadHeaterConfig()
	if err != nil || !ok {
		t.Fatalf("LoadHeaterConfig: ok=%v err=%v", ok, err)
	}
	if out.Targets["water"] != 25 || !out.State["water"] || out.Hysteresis != 0.3 {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestFileSettings_LastDose(t *testing.T) {
	t.Parallel()

	s := NewFileSettings(t.TempDir())
	at := time.Date(2026, 8, 17, 10, 0, 0, 0, time.UTC)
	if err := s.SaveLastDose(map[string]time.Time{"X": at}); err != nil {
		t.Fatalf("SaveLastDose: %v", err)
	}
	out, ok, err := s.LoadLastDose()
	if err != nil || !ok {
		t.Fatalf("LoadLastDose: ok=%v err=%v", ok, err)
	}
	if !out["X"].Equal(at) {
		t.Fatalf("round trip mismatch: %v", out)
	}
}

func TestFileSettings_CorruptDocumentErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := NewFileSettings(dir)
	if err := os.WriteFile(filepath.Join(dir, "heat_config.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt doc: %v", err)
	}
	if _, _, err := s.LoadHeaterConfig(); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestFileSettings_WriteReplacesAtomically(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := NewFileSettings(dir)
	if err := s.SaveDosingConfig(models.DosingConfig{Auto: true, Times: map[string]string{"X": "10:00"}}); err != nil {
		t.Fatalf("SaveDosingConfig: %v", err)
	}
	if err := s.SaveDosingConfig(models.DosingConfig{Auto: false, Times: map[string]string{"X": "11:00"}}); err != nil {
		t.Fatalf("SaveDosingConfig: %v", err)
	}

	out, ok, err := s.LoadDosingConfig()
	if err != nil || !ok {
		t.Fatalf("LoadDosingConfig: ok=%v err=%v", ok, err)
	}
	if out.Auto || out.Times["X"] != "11:00" {
		t.Fatalf("second write not visible: %+v", out)
	}
	// No temp file debris left behind.
	if _, err := os.Stat(filepath.Join(dir, "dosing_schedule.json.tmp")); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
}
