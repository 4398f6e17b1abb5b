// Package tierconfig loads per-guild tier tables from YAML.
//
// File format:
//
//	guilds:
//	  "123456789012345678":
//	    tiers:
//	      - name: Voice Rookie
//	        role_id: 1200000000000000001
//	        min_minutes: 60
//
// role_id and min_minutes may also be quoted ("1200000000000000001").
// Malformed tier entries are skipped with a warning. Guilds left without
// valid tiers are skipped as well.
package tierconfig

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xpbot/xpbot/internal/domain/shared"
	"github.com/xpbot/xpbot/internal/domain/tier"
	"github.com/xpbot/xpbot/pkg/logger"
)

// ErrMissingGuilds is returned when the document has no top-level guilds key.
var ErrMissingGuilds = errors.New("tier config: missing 'guilds' key")

type document struct {
	Guilds map[string]guildNode `yaml:"guilds"`
}

type guildNode struct {
	Tiers []yaml.Node `yaml:"tiers"`
}

type tierNode struct {
	Name       *string   `yaml:"name"`
	RoleID     *intValue `yaml:"role_id"`
	MinMinutes *intValue `yaml:"min_minutes"`
}

// intValue accepts a YAML integer or a string holding one. Whole floats
// (60.0) are accepted too.
type intValue int64

// UnmarshalYAML implements yaml.Unmarshaler.
func (v *intValue) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected an integer", node.Line)
	}
	s := strings.TrimSpace(node.Value)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*v = intValue(n)
		return nil
	}
	if node.ShortTag() == "!!float" {
		f, err := strconv.ParseFloat(s, 64)
		if err == nil && f == math.Trunc(f) && math.Abs(f) < math.MaxInt64 {
			*v = intValue(f)
			return nil
		}
	}
	return fmt.Errorf("line %d: %q is not an integer", node.Line, node.Value)
}

// Tables maps each configured guild to its tier table.
type Tables map[shared.GuildID]*tier.Table

// LoadFile reads and parses a tier configuration file.
func LoadFile(path string, log *logger.Logger) (Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, shared.WrapError("tierconfig", "LoadFile", shared.ErrConfig,
			fmt.Sprintf("read %s", path), err)
	}
	return Parse(data, log)
}

// Parse parses a tier configuration document.
func Parse(data []byte, log *logger.Logger) (Tables, error) {
	if log == nil {
		log = logger.Nop()
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, shared.WrapError("tierconfig", "Parse", shared.ErrConfig, "invalid yaml", err)
	}
	if doc.Guilds == nil {
		return nil, shared.WrapError("tierconfig", "Parse", shared.ErrConfig, "no guilds", ErrMissingGuilds)
	}

	tables := make(Tables, len(doc.Guilds))
	for rawID, g := range doc.Guilds {
		guildID, err := shared.ParseGuildID(rawID)
		if err != nil {
			log.Warn("skipping guild with invalid id", logger.String("guild", rawID), logger.Err(err))
			continue
		}
		glog := log.With(logger.GuildID(guildID.Int64()))

		if len(g.Tiers) == 0 {
			glog.Warn("guild has no tiers configured, skipping")
			continue
		}

		defs := make([]tier.Definition, 0, len(g.Tiers))
		seen := make(map[shared.RoleID]bool, len(g.Tiers))
		for i := range g.Tiers {
			def, err := decodeTier(&g.Tiers[i])
			if err != nil {
				glog.Warn("invalid tier entry, skipping",
					logger.Int("index", i), logger.Int("line", g.Tiers[i].Line), logger.Err(err))
				continue
			}
			if seen[def.RoleID] {
				glog.Warn("role already bound to another tier, skipping",
					logger.Int("index", i), logger.RoleID(def.RoleID.Int64()))
				continue
			}
			seen[def.RoleID] = true
			defs = append(defs, def)
		}

		if len(defs) == 0 {
			glog.Warn("guild has no valid tiers, skipping")
			continue
		}

		table, err := tier.NewTable(guildID, defs)
		if err != nil {
			glog.Warn("guild tier table rejected", logger.Err(err))
			continue
		}
		tables[guildID] = table
		glog.Info("loaded role tiers", logger.Int("tiers", table.Len()))
	}

	return tables, nil
}

func decodeTier(node *yaml.Node) (tier.Definition, error) {
	var raw tierNode
	if err := node.Decode(&raw); err != nil {
		return tier.Definition{}, err
	}
	switch {
	case raw.Name == nil:
		return tier.Definition{}, errors.New("missing name")
	case raw.RoleID == nil:
		return tier.Definition{}, errors.New("missing role_id")
	case raw.MinMinutes == nil:
		return tier.Definition{}, errors.New("missing min_minutes")
	}

	def := tier.Definition{
		Name:       *raw.Name,
		RoleID:     shared.RoleID(*raw.RoleID),
		MinMinutes: int64(*raw.MinMinutes),
	}
	if err := def.Validate(); err != nil {
		return tier.Definition{}, err
	}
	return def, nil
}
