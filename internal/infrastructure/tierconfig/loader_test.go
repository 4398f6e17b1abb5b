package tierconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xpbot/xpbot/internal/domain/shared"
)

const validDoc = `
guilds:
  123456789012345678:
    tiers:
      - name: Voice Regular
        role_id: 2
        min_minutes: 300
      - name: Voice Rookie
        role_id: 1
        min_minutes: 60
  "222":
    tiers:
      - name: Only
        role_id: 9
        min_minutes: 0
`

func TestParse_Valid(t *testing.T) {
	tables, err := Parse([]byte(validDoc), nil)
	require.NoError(t, err)
	require.Len(t, tables, 2)

	table := tables[123456789012345678]
	require.NotNil(t, table)
	assert.Equal(t, []shared.RoleID{1, 2}, table.RoleIDs())

	d, ok := table.EligibleTier(5 * 3600)
	require.True(t, ok)
	assert.Equal(t, "Voice Regular", d.Name)

	only, ok := tables[222].EligibleTier(0)
	require.True(t, ok)
	assert.Equal(t, "Only", only.Name)
}

func TestParse_SkipsMalformedEntries(t *testing.T) {
	doc := `
guilds:
  "100":
    tiers:
      - name: Good
        role_id: 1
        min_minutes: 10
      - name: Missing role
        min_minutes: 20
      - name: Bad minutes
        role_id: 3
        min_minutes: lots
      - name: Negative
        role_id: 4
        min_minutes: -5
      - name: Duplicate role
        role_id: 1
        min_minutes: 30
      - role_id: 6
        min_minutes: 40
  "200":
    tiers:
      - name: Broken
        role_id: 0
        min_minutes: 1
  "300": {}
  not-a-number:
    tiers:
      - name: X
        role_id: 7
        min_minutes: 1
`
	tables, err := Parse([]byte(doc), nil)
	require.NoError(t, err)
	require.Len(t, tables, 1)

	table := tables[100]
	require.NotNil(t, table)
	assert.Equal(t, 1, table.Len())
	assert.Equal(t, []shared.RoleID{1}, table.RoleIDs())
}

func TestParse_QuotedNumbers(t *testing.T) {
	doc := `
guilds:
  "100":
    tiers:
      - name: Quoted
        role_id: "1200000000000000001"
        min_minutes: "60"
      - name: Float minutes
        role_id: 1200000000000000002
        min_minutes: 300.0
      - name: Not a number
        role_id: "12ab"
        min_minutes: 10
      - name: Fractional
        role_id: 5
        min_minutes: 1.5
`
	tables, err := Parse([]byte(doc), nil)
	require.NoError(t, err)

	table := tables[100]
	require.NotNil(t, table)
	assert.Equal(t, []shared.RoleID{1200000000000000001, 1200000000000000002}, table.RoleIDs())

	d, ok := table.EligibleTier(60 * 60)
	require.True(t, ok)
	assert.Equal(t, "Quoted", d.Name)
	assert.Equal(t, int64(60), d.MinMinutes)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("other: 1\n"), nil)
	assert.ErrorIs(t, err, ErrMissingGuilds)
	assert.ErrorIs(t, err, shared.ErrConfig)

	_, err = Parse([]byte("guilds: [unclosed\n"), nil)
	assert.ErrorIs(t, err, shared.ErrConfig)
}

func TestRegistry_ReloadKeepsPreviousOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validDoc), 0o600))

	reg, err := NewRegistry(path, nil)
	require.NoError(t, err)
	assert.Equal(t, []shared.GuildID{222, 123456789012345678}, reg.Guilds())
	assert.False(t, reg.LoadedAt().IsZero())

	require.NoError(t, os.WriteFile(path, []byte("guilds: [oops"), 0o600))
	assert.Error(t, reg.Reload())

	_, ok := reg.Table(123456789012345678)
	assert.True(t, ok, "previous tables stay active")

	replacement := `
guilds:
  "555":
    tiers:
      - name: New
        role_id: 5
        min_minutes: 1
`
	require.NoError(t, os.WriteFile(path, []byte(replacement), 0o600))
	require.NoError(t, reg.Reload())

	_, ok = reg.Table(123456789012345678)
	assert.False(t, ok)
	_, ok = reg.Table(555)
	assert.True(t, ok)
}

func TestNewRegistry_MissingFile(t *testing.T) {
	_, err := NewRegistry(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.ErrorIs(t, err, shared.ErrConfig)
}

func TestLoadFile_ShippedExample(t *testing.T) {
	tables, err := LoadFile(filepath.Join("..", "..", "..", "config", "roles_config.yaml"), nil)
	require.NoError(t, err)
	table, ok := tables[123456789012345678]
	require.True(t, ok)
	assert.Equal(t, 4, table.Len())
}
