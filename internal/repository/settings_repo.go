package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"reefcontrol/internal/models"
)

// Document file names, one JSON file per concern.
const (
	pumpConfigFile    = "pump_config.json"
	lightScheduleFile = "light_schedule.json"
	heatConfigFile    = "heat_config.json"
	feederConfigFile  = "feeder_schedule.json"
	dosingConfigFile  = "dosing_schedule.json"
	lastDoseFile      = "last_dose.json"
)

// FileSettings stores each configuration document as an indented JSON
// file under one directory. Writes go through a temp file + rename so
// a crash never leaves a truncated document.
type FileSettings struct {
	dir string
}

var _ Settings = (*FileSettings)(nil)

func NewFileSettings(dir string) *FileSettings {
	return &FileSettings{dir: dir}
}

// readDoc unmarshals the named document into dst. ok=false (no error)
// when the file does not exist yet.
func (s *FileSettings) readDoc(name string, dst any) (bool, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

func (s *FileSettings) writeDoc(name string, v any) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

func (s *FileSettings) LoadPumpProfiles() (map[string]models.DoseProfile, bool, error) {
	out := map[string]models.DoseProfile{}
	ok, err := s.readDoc(pumpConfigFile, &out)
	return out, ok, err
}

func (s *FileSettings) SavePumpProfiles(p map[string]models.DoseProfile) error {
	return s.writeDoc(pumpConfigFile, p)
}

func (s *FileSettings) LoadLightSchedule() (map[string]models.DayWindow, bool, error) {
	out := map[string]models.DayWindow{}
	ok, err := s.readDoc(lightScheduleFile, &out)
	return out, ok, err
}

func (s *FileSettings) SaveLightSchedule(sched map[string]models.DayWindow) error {
	return s.writeDoc(lightScheduleFile, sched)
}

func (s *FileSettings) LoadHeaterConfig() (models.HeaterConfig, bool, error) {
	var out models.HeaterConfig
	ok, err := s.readDoc(heatConfigFile, &out)
	return out, ok, err
}

func (s *FileSettings) SaveHeaterConfig(cfg models.HeaterConfig) error {
	return s.writeDoc(heatConfigFile, cfg)
}

func (s *FileSettings) LoadFeederConfig() (models.FeederConfig, bool, error) {
	var out models.FeederConfig
	ok, err := s.readDoc(feederConfigFile, &out)
	return out, ok, err
}

func (s *FileSettings) SaveFeederConfig(cfg models.FeederConfig) error {
	return s.writeDoc(feederConfigFile, cfg)
}

func (s *FileSettings) LoadDosingConfig() (models.DosingConfig, bool, error) {
	var out models.DosingConfig
	ok, err := s.readDoc(dosingConfigFile, &out)
	return out, ok, err
}

func (s *FileSettings) SaveDosingConfig(cfg models.DosingConfig) error {
	return s.writeDoc(dosingConfigFile, cfg)
}

func (s *FileSettings) LoadLastDose() (map[string]time.Time, bool, error) {
	out := map[string]time.Time{}
	ok, err := s.readDoc(lastDoseFile, &out)
	return out, ok, err
}

func (s *FileSettings) SaveLastDose(m map[string]time.Time) error {
	return s.writeDoc(lastDoseFile, m)
}
