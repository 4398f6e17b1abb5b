package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags manages feature toggles with per-guild rollout and overrides.
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// guildID -> feature -> enabled
	guildOverrides map[int64]map[string]bool
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100). Guilds are bucketed by a hash of their ID.
	RolloutPercent int
}

// Predefined feature flag names.
const (
	// Reconcile tier roles after voice time changes.
	FeatureTierSync = "voice.tier_sync"

	// Publish level-up announcements.
	FeatureLevelUpAnnounce = "voice.levelup_announce"
)

// LoadFeatureFlags builds the flag set from defaults, the loaded config and
// FEATURE_* environment variables.
func LoadFeatureFlags(cfg *Config) *FeatureFlags {
	ff := NewFeatureFlags()

	if cfg != nil {
		ff.set(FeatureLevelUpAnnounce, cfg.Progression.LevelUpAnnounceEnabled)
	}

	ff.loadFromEnvironment()
	return ff
}

// NewFeatureFlags returns the defaults.
func NewFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:       make(map[string]*Feature),
		guildOverrides: make(map[int64]map[string]bool),
	}

	ff.features[FeatureTierSync] = &Feature{
		Name:           FeatureTierSync,
		Description:    "Reconcile tier roles after voice activity",
		Enabled:        true,
		RolloutPercent: 100,
	}
	ff.features[FeatureLevelUpAnnounce] = &Feature{
		Name:           FeatureLevelUpAnnounce,
		Description:    "Announce level-ups in the configured channel",
		Enabled:        false,
		RolloutPercent: 0,
	}
	return ff
}

func (ff *FeatureFlags) set(name string, enabled bool) {
	f, ok := ff.features[name]
	if !ok {
		return
	}
	f.Enabled = enabled
	if enabled {
		f.RolloutPercent = 100
	} else {
		f.RolloutPercent = 0
	}
}

// loadFromEnvironment accepts FEATURE_VOICE_TIER_SYNC=true|false|0-100.
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		val := os.Getenv(featureNameToEnvKey(name))
		if val == "" {
			continue
		}
		if b, err := strconv.ParseBool(val); err == nil {
			ff.set(name, b)
			continue
		}
		if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
			feature.Enabled = p > 0
			feature.RolloutPercent = p
		}
	}
}

func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled reports whether a feature is on for the guild. A zero guildID
// evaluates the global switch only.
func (ff *FeatureFlags) IsEnabled(featureName string, guildID int64) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	if overrides, ok := ff.guildOverrides[guildID]; ok {
		if enabled, ok := overrides[featureName]; ok {
			return enabled
		}
	}

	feature, ok := ff.features[featureName]
	if !ok || !feature.Enabled {
		return false
	}
	if feature.RolloutPercent >= 100 || guildID == 0 {
		return true
	}
	return bucket(featureName, guildID) < feature.RolloutPercent
}

// SetGuildOverride forces a feature on or off for one guild.
func (ff *FeatureFlags) SetGuildOverride(guildID int64, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if ff.guildOverrides[guildID] == nil {
		ff.guildOverrides[guildID] = make(map[string]bool)
	}
	ff.guildOverrides[guildID][featureName] = enabled
}

// ClearGuildOverrides removes all overrides for a guild.
func (ff *FeatureFlags) ClearGuildOverrides(guildID int64) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.guildOverrides, guildID)
}

// List returns a snapshot of all features.
func (ff *FeatureFlags) List() []Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	out := make([]Feature, 0, len(ff.features))
	for _, f := range ff.features {
		out = append(out, *f)
	}
	return out
}

// bucket maps (feature, guild) onto 0..99.
func bucket(featureName string, guildID int64) int {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(strconv.FormatInt(guildID, 10)))
	return int(h.Sum32() % 100)
}
