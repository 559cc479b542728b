package main

// Opcode identifies a wire message. Values are part of the client contract.
type Opcode int

const (
	MsgHello      Opcode = 0
	MsgWelcome    Opcode = 1
	MsgPopulation Opcode = 2
	MsgJoinGame   Opcode = 3
	MsgLeftGame   Opcode = 4
	MsgMove       Opcode = 5
	MsgGameStart  Opcode = 6
	MsgIReady     Opcode = 7
	MsgGameData   Opcode = 8
	MsgGameFull   Opcode = 9
	MsgLoadMap    Opcode = 10
	MsgGamePlay   Opcode = 11
	MsgSpawn      Opcode = 12
	MsgChat       Opcode = 13
	MsgEndMove    Opcode = 14
	MsgConnect    Opcode = 15
	MsgSendMap    Opcode = 16
)

// Kind is the semantic type of an entity or tile
type Kind int

const (
	KindNone Kind = 0

	// Tiles
	KindWall        Kind = 1
	KindArmoredWall Kind = 2
	KindTrees       Kind = 3
	KindWater       Kind = 4
	KindIce         Kind = 5
	KindBase        Kind = 6
	KindPortal1     Kind = 7
	KindPortal2     Kind = 8

	KindEntity Kind = 99
	KindTank   Kind = 100
	KindBullet Kind = 101

	// Bonuses
	KindLive   Kind = 102
	KindMedal  Kind = 103
	KindBomb   Kind = 104
	KindWatch  Kind = 105
	KindShovel Kind = 106
	KindHelmet Kind = 107
	KindBoat   Kind = 108
	KindPistol Kind = 109
	KindRandom Kind = 110

	KindFlag Kind = 160
)

// Layer is the draw/logic layer of a kind
type Layer int

const (
	LayerEntities   Layer = 1
	LayerBackground Layer = 2
	LayerForeground Layer = 3
)

// Orientation of a movable entity
type Orientation int

const (
	OrientUp    Orientation = 1
	OrientDown  Orientation = 2
	OrientLeft  Orientation = 3
	OrientRight Orientation = 4
)

// Valid reports whether o is one of the four directions.
func (o Orientation) Valid() bool {
	return o >= OrientUp && o <= OrientRight
}

func (o Orientation) String() string {
	switch o {
	case OrientUp:
		return "up"
	case OrientDown:
		return "down"
	case OrientLeft:
		return "left"
	case OrientRight:
		return "right"
	}
	return "none"
}

// Category is the runtime grouping of a kind
type Category string

const (
	CategoryPlayer Category = "player"
	CategoryBonus  Category = "bonus"
	CategoryObject Category = "object"
	CategoryTile   Category = "tile"
)

// KindSpec holds the static properties of a kind
type KindSpec struct {
	Kind      Kind
	Name      string
	Category  Category
	Layer     Layer
	Animated  bool
	Strength  int
	Width     int
	Height    int
	Colliding []Kind
}

// Catalog is the immutable kind/message table. Build it once with NewCatalog
// and hand it to whatever needs it.
type Catalog struct {
	kinds   map[Kind]KindSpec
	byName  map[string]Kind
	opNames map[Opcode]string
}

// NewCatalog builds the kind and opcode tables
func NewCatalog() *Catalog {
	specs := []KindSpec{
		{Kind: KindBase, Name: "base", Category: CategoryTile, Layer: LayerBackground, Width: 32, Height: 32,
			Colliding: []Kind{KindTank, KindBullet}},
		{Kind: KindIce, Name: "ice", Category: CategoryTile, Layer: LayerBackground, Width: 16, Height: 16},
		{Kind: KindWall, Name: "wall", Category: CategoryTile, Layer: LayerBackground, Strength: 30, Width: 16, Height: 16,
			Colliding: []Kind{KindTank, KindBullet}},
		{Kind: KindArmoredWall, Name: "armoredwall", Category: CategoryTile, Layer: LayerBackground, Strength: 60, Width: 16, Height: 16,
			Colliding: []Kind{KindTank, KindBullet}},
		{Kind: KindTrees, Name: "trees", Category: CategoryTile, Layer: LayerForeground, Width: 16, Height: 16},
		{Kind: KindWater, Name: "water", Category: CategoryTile, Layer: LayerBackground, Animated: true, Width: 16, Height: 16,
			Colliding: []Kind{KindTank}},
		{Kind: KindPortal1, Name: "portal1", Category: CategoryTile, Layer: LayerBackground, Width: 16, Height: 16},
		{Kind: KindPortal2, Name: "portal2", Category: CategoryTile, Layer: LayerBackground, Width: 16, Height: 16},
		{Kind: KindTank, Name: "tank", Category: CategoryPlayer, Layer: LayerEntities, Animated: true, Strength: 1,
			Colliding: []Kind{KindTank, KindBullet, KindWall, KindArmoredWall, KindWater}},
		{Kind: KindBullet, Name: "bullet", Category: CategoryObject, Layer: LayerEntities, Strength: 1,
			Colliding: []Kind{KindTank, KindBullet, KindWall, KindArmoredWall}},
		{Kind: KindFlag, Name: "flag", Category: CategoryObject, Layer: LayerEntities},
	}
	bonuses := map[Kind]string{
		KindLive: "live", KindMedal: "medal", KindBomb: "bomb", KindWatch: "watch", KindShovel: "shovel",
		KindHelmet: "helmet", KindBoat: "boat", KindPistol: "pistol", KindRandom: "random",
	}
	for k, name := range bonuses {
		specs = append(specs, KindSpec{Kind: k, Name: name, Category: CategoryBonus, Layer: LayerEntities, Animated: true})
	}

	c := &Catalog{
		kinds:  make(map[Kind]KindSpec, len(specs)),
		byName: make(map[string]Kind, len(specs)),
		opNames: map[Opcode]string{
			MsgHello: "HELLO", MsgWelcome: "WELCOME", MsgPopulation: "POPULATION", MsgJoinGame: "JOINGAME",
			MsgLeftGame: "LEFTGAME", MsgMove: "MOVE", MsgGameStart: "GAMESTART", MsgIReady: "IREADY",
			MsgGameData: "GAMEDATA", MsgGameFull: "GAMEFULL", MsgLoadMap: "LOADMAP", MsgGamePlay: "GAMEPLAY",
			MsgSpawn: "SPAWN", MsgChat: "CHAT", MsgEndMove: "ENDMOVE", MsgConnect: "CONNECT", MsgSendMap: "SENDMAP",
		},
	}
	for _, s := range specs {
		c.kinds[s.Kind] = s
		c.byName[s.Name] = s.Kind
	}
	return c
}

// Spec returns the static properties of kind
func (c *Catalog) Spec(kind Kind) (KindSpec, bool) {
	s, ok := c.kinds[kind]
	return s, ok
}

// KindByName maps "wall", "tank", ... to a Kind
func (c *Catalog) KindByName(name string) (Kind, bool) {
	k, ok := c.byName[name]
	return k, ok
}

// Known reports whether kind has an entry in the table.
func (c *Catalog) Known(kind Kind) bool {
	_, ok := c.kinds[kind]
	return ok
}

// Collides reports whether mover and other block each other. Either side's
// colliding list is enough (a base lists tanks, tanks do not list bases).
func (c *Catalog) Collides(mover, other Kind) bool {
	return c.lists(mover, other) || c.lists(other, mover)
}

func (c *Catalog) lists(kind, other Kind) bool {
	s, ok := c.kinds[kind]
	if !ok {
		return false
	}
	for _, k := range s.Colliding {
		if k == other {
			return true
		}
	}
	return false
}

// OpcodeName returns the catalog name of op, or "UNKNOWN"
func (c *Catalog) OpcodeName(op Opcode) string {
	if n, ok := c.opNames[op]; ok {
		return n
	}
	return "UNKNOWN"
}
