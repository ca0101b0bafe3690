// Package settings persists the terminal client's preferences as key/value rows.
package settings

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Migrate() error {
	return r.db.AutoMigrate(&Setting{})
}

// Get returns "", false, nil when name has never been set.
func (r *Repo) Get(ctx context.Context, name string) (string, bool, error) {
	var s Setting
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return s.Value, true, nil
}

func (r *Repo) Set(ctx context.Context, name, value string) error {
	s := Setting{Name: name, Value: value, UpdatedAt: time.Now()}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&s).Error
}

func (r *Repo) All(ctx context.Context) (map[string]string, error) {
	var rows []Setting
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, s := range rows {
		out[s.Name] = s.Value
	}
	return out, nil
}

// ClientSettings is the typed view the terminal client works with.
type ClientSettings struct {
	BackendURL      string
	VoiceGender     string
	PreferredVoices []string
	AutoSpeak       bool
}

func Defaults(backendURL string) ClientSettings {
	return ClientSettings{BackendURL: backendURL, VoiceGender: "female"}
}

// Load overlays whatever is stored on def. Unparseable values are skipped.
func (r *Repo) Load(ctx context.Context, def ClientSettings) (ClientSettings, error) {
	all, err := r.All(ctx)
	if err != nil {
		return def, err
	}
	out := def
	if v := strings.TrimSpace(all[KeyBackendURL]); v != "" {
		out.BackendURL = v
	}
	switch v := strings.ToLower(strings.TrimSpace(all[KeyVoice])); v {
	case "female", "male":
		out.VoiceGender = v
	}
	if v, ok := all[KeyPreferredVoices]; ok {
		out.PreferredVoices = splitList(v)
	}
	if v, ok := all[KeyAutoSpeak]; ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			out.AutoSpeak = b
		}
	}
	return out, nil
}

func (r *Repo) Save(ctx context.Context, cs ClientSettings) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := &Repo{db: tx}
		for name, value := range map[string]string{
			KeyBackendURL:      cs.BackendURL,
			KeyVoice:           cs.VoiceGender,
			KeyPreferredVoices: strings.Join(cs.PreferredVoices, ","),
			KeyAutoSpeak:       strconv.FormatBool(cs.AutoSpeak),
		} {
			if err := txRepo.Set(ctx, name, value); err != nil {
				return err
			}
		}
		return nil
	})
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
