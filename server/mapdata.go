package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// TeamData is the static per-team part of a map
type TeamData struct {
	Spawns []Cell `mapstructure:"spawns" json:"spawns"`
	Base   *Cell  `mapstructure:"base" json:"base,omitempty"`
}

// MapData is what the map collaborator hands to a game once it is ready
type MapData struct {
	Name       string     `mapstructure:"name" json:"name"`
	Width      int        `mapstructure:"width" json:"width"`
	Height     int        `mapstructure:"height" json:"height"`
	Tiles      [][]Kind   `mapstructure:"tiles" json:"tiles"` // Tiles[y][x]
	Teams      []TeamData `mapstructure:"teams" json:"teams"`
	MinPlayers int        `mapstructure:"min_players" json:"minPlayers"`
	MaxPlayers int        `mapstructure:"max_players" json:"maxPlayers"`
	TeamCount  int        `mapstructure:"team_count" json:"teamCount"`
}

// Validate checks the map against the catalog
func (m *MapData) Validate(c *Catalog) error {
	if m.Width <= 0 || m.Height <= 0 {
		return fmt.Errorf("%w: bad dimensions %dx%d", ErrInvalidMap, m.Width, m.Height)
	}
	if len(m.Tiles) != m.Height {
		return fmt.Errorf("%w: %d tile rows, want %d", ErrInvalidMap, len(m.Tiles), m.Height)
	}
	for y, row := range m.Tiles {
		if len(row) != m.Width {
			return fmt.Errorf("%w: row %d has %d tiles, want %d", ErrInvalidMap, y, len(row), m.Width)
		}
		for x, k := range row {
			if k != KindNone && !c.Known(k) {
				return fmt.Errorf("%w: unknown tile kind %d at (%d,%d)", ErrInvalidMap, k, x, y)
			}
		}
	}
	if m.TeamCount <= 0 || len(m.Teams) != m.TeamCount {
		return fmt.Errorf("%w: team_count %d with %d teams", ErrInvalidMap, m.TeamCount, len(m.Teams))
	}
	if m.MinPlayers < 1 || m.MaxPlayers < m.MinPlayers {
		return fmt.Errorf("%w: players min=%d max=%d", ErrInvalidMap, m.MinPlayers, m.MaxPlayers)
	}
	for i, t := range m.Teams {
		for _, s := range t.Spawns {
			if s.X < 0 || s.Y < 0 || s.X >= m.Width || s.Y >= m.Height {
				return fmt.Errorf("%w: team %d spawn (%d,%d) out of bounds", ErrInvalidMap, i, s.X, s.Y)
			}
		}
		if t.Base != nil && (t.Base.X < 0 || t.Base.Y < 0 || t.Base.X >= m.Width || t.Base.Y >= m.Height) {
			return fmt.Errorf("%w: team %d base out of bounds", ErrInvalidMap, i)
		}
	}
	return nil
}

// MapSource loads map data. Load may block; the game calls it off-loop.
type MapSource interface {
	Load(ctx context.Context) (*MapData, error)
}

// StaticMapSource serves in-memory data
type StaticMapSource struct {
	Data *MapData
	Err  error
}

func (s StaticMapSource) Load(ctx context.Context) (*MapData, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Data == nil {
		return nil, fmt.Errorf("%w: no map data", ErrInvalidMap)
	}
	return s.Data, nil
}

// FileMapSource reads a json/yaml/toml map file. Tiles may be given as kind
// numbers or as rows of kind names ("wall", "water", "." for empty).
type FileMapSource struct {
	Path    string
	Catalog *Catalog
}

type mapFile struct {
	MapData `mapstructure:",squash"`
	Rows    []string `mapstructure:"rows"`
	Legend  map[string]string `mapstructure:"legend"`
}

func (s FileMapSource) Load(ctx context.Context) (*MapData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigFile(s.Path)
	v.SetConfigType(strings.TrimPrefix(filepath.Ext(s.Path), "."))
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read map %s: %w", s.Path, err)
	}
	var f mapFile
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("decode map %s: %w", s.Path, err)
	}
	if len(f.Rows) > 0 {
		tiles, err := s.parseRows(f.Rows, f.Legend)
		if err != nil {
			return nil, err
		}
		f.Tiles = tiles
	}
	data := f.MapData
	if err := data.Validate(s.Catalog); err != nil {
		return nil, err
	}
	return &data, nil
}

// parseRows turns character rows into kinds using legend (char -> kind name).
// viper lower-cases map keys, so legend lookups are case-insensitive.
func (s FileMapSource) parseRows(rows []string, legend map[string]string) ([][]Kind, error) {
	tiles := make([][]Kind, len(rows))
	for y, row := range rows {
		tiles[y] = make([]Kind, 0, len(row))
		for _, ch := range row {
			name, ok := legend[strings.ToLower(string(ch))]
			if !ok || name == "" {
				tiles[y] = append(tiles[y], KindNone)
				continue
			}
			k, ok := s.Catalog.KindByName(name)
			if !ok {
				return nil, fmt.Errorf("%w: legend %q names unknown kind %q", ErrInvalidMap, string(ch), name)
			}
			tiles[y] = append(tiles[y], k)
		}
	}
	return tiles, nil
}
