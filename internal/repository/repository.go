package repository

import (
	"context"
	"database/sql"
	"time"

	"reefcontrol/internal/models"
)

type Authorization interface {
	Create(username, hash string) (int, error)
	GetByUsername(username string) (*models.User, error)
}

// EventRepo is the telemetry sink: an append-only device event log
// with filtered access.
type EventRepo interface {
	Append(ctx context.Context, e models.DeviceEvent) error
	List(ctx context.Context, from, to time.Time, kind string) ([]models.DeviceEvent, error)
}

// Settings persists the per-concern JSON configuration documents.
// Load methods report ok=false when a document has not been written yet.
type Settings interface {
	LoadPumpProfiles() (map[string]models.DoseProfile, bool, error)
	SavePumpProfiles(map[string]models.DoseProfile) error
	LoadLightSchedule() (map[string]models.DayWindow, bool, error)
	SaveLightSchedule(map[string]models.DayWindow) error
	LoadHeaterConfig() (models.HeaterConfig, bool, error)
	SaveHeaterConfig(models.HeaterConfig) error
	LoadFeederConfig() (models.FeederConfig, bool, error)
	SaveFeederConfig(models.FeederConfig) error
	LoadDosingConfig() (models.DosingConfig, bool, error)
	SaveDosingConfig(models.DosingConfig) error
	LoadLastDose() (map[string]time.Time, bool, error)
	SaveLastDose(map[string]time.Time) error
}

type Repository struct {
	Events   EventRepo
	Auth     Authorization
	Settings Settings
}

func NewRepository(db *sql.DB, settingsDir string) *Repository {
	return &Repository{
		Events:   NewEventSQLite(db),
		Auth:     NewUserRepository(db),
		Settings: NewFileSettings(settingsDir),
	}
}
