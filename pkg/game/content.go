package game

import "github.com/hugoguerrap/nodecoin/pkg/types"

// --- Content Catalog ---
//
// The "physics" of the settlement: every building, unit, tech, biome and
// NPC camp is defined here and nowhere else. Handlers and tick systems
// look values up by id; iteration order comes from the explicit order
// lists (techOrder, buildingOrder, types.UnitOrder), not from the maps.

type BuildingDef struct {
	ID                string
	Name              string
	Era               int
	BaseCost          map[string]int
	ConstructionTicks int
	MaxLevel          int
	Production        map[string]float64 // per level per tick, before modifiers
	StorageBonus      int                // per level, applied to every resource kind
	HappinessBonus    int                // per level
	DefenseBonus      float64            // per level
	PopulationBonus   int                // per level, max population
	RequiresTech      string
}

type UnitDef struct {
	ID            string
	Name          string
	Era           int
	Cost          map[string]int
	Attack        float64
	Defense       float64
	HP            float64
	FoodPerTick   float64
	StrongAgainst string // combat triangle: flat attack bonus vs this kind
	RequiresTech  string
}

type TechDef struct {
	ID            string
	Name          string
	Era           int
	Cost          map[string]int
	ResearchTicks int
	Prereqs       []string
	ProductionBonus float64
	CombatBonus     float64
}

type NPCDef struct {
	ID          string
	Name        string
	Army        map[string]int
	Strategy    string
	RewardTokens float64
}

// TriangleBonus is the flat attack bonus a unit kind gets when the enemy
// fields the kind it is strong against.
const TriangleBonus = 3.0

// Mining constants: block-reward style halving over ticks.
const (
	MiningBaseReward      = 1.0
	MiningHalvingInterval = 1000
)

// Cost growth per level for upgrades.
const BuildingCostMultiplier = 1.15

// Ascension
const (
	AscendMinEra    = 2
	AscendTokenCost = 500.0
	AscendMinTick   = 50
	PrestigeBonusStep = 0.10
)

// Cooldowns
const (
	SpyCooldownTicks = 10
	PvpCooldownTicks = 20
)

// InitialResources is the fixed starting vector of every settlement.
var InitialResources = map[string]int{
	"wood": 100, "food": 100, "stone": 50, "iron": 20, "gems": 5, "mana": 0,
}

var InitialStorage = map[string]int{
	"wood": 500, "food": 500, "stone": 300, "iron": 200, "gems": 100, "mana": 50,
}

const (
	InitialPopCurrent = 10
	InitialPopMax     = 20
	InitialHappiness  = 50
	InitialTokens     = 100.0
)

var Buildings = map[string]BuildingDef{
	"choza": {
		ID: "choza", Name: "Choza", Era: types.EraAldea,
		BaseCost: map[string]int{"wood": 20, "food": 10}, ConstructionTicks: 3, MaxLevel: 10,
		PopulationBonus: 5,
	},
	"granja": {
		ID: "granja", Name: "Granja", Era: types.EraAldea,
		BaseCost: map[string]int{"wood": 25}, ConstructionTicks: 3, MaxLevel: 10,
		Production: map[string]float64{"food": 6},
	},
	"aserradero": {
		ID: "aserradero", Name: "Aserradero", Era: types.EraAldea,
		BaseCost: map[string]int{"wood": 30, "stone": 10}, ConstructionTicks: 4, MaxLevel: 10,
		Production: map[string]float64{"wood": 5},
	},
	"cantera": {
		ID: "cantera", Name: "Cantera", Era: types.EraAldea,
		BaseCost: map[string]int{"wood": 40, "food": 20}, ConstructionTicks: 5, MaxLevel: 10,
		Production: map[string]float64{"stone": 4},
	},
	"almacen": {
		ID: "almacen", Name: "Almacen", Era: types.EraAldea,
		BaseCost: map[string]int{"wood": 60, "stone": 30}, ConstructionTicks: 6, MaxLevel: 10,
		StorageBonus: 100,
	},
	"mina": {
		ID: "mina", Name: "Mina de Hierro", Era: types.EraPueblo,
		BaseCost: map[string]int{"wood": 50, "stone": 40}, ConstructionTicks: 6, MaxLevel: 10,
		Production: map[string]float64{"iron": 3},
	},
	"cuartel": {
		ID: "cuartel", Name: "Cuartel", Era: types.EraPueblo,
		BaseCost: map[string]int{"wood": 80, "stone": 60, "iron": 20}, ConstructionTicks: 8, MaxLevel: 10,
	},
	"mercado": {
		ID: "mercado", Name: "Mercado", Era: types.EraPueblo,
		BaseCost: map[string]int{"wood": 70, "stone": 30}, ConstructionTicks: 5, MaxLevel: 10,
		HappinessBonus: 3,
	},
	"muralla": {
		ID: "muralla", Name: "Muralla", Era: types.EraPueblo,
		BaseCost: map[string]int{"stone": 120, "wood": 40}, ConstructionTicks: 10, MaxLevel: 10,
		DefenseBonus: 0.05,
	},
	"mina_gemas": {
		ID: "mina_gemas", Name: "Mina de Gemas", Era: types.EraCiudad,
		BaseCost: map[string]int{"stone": 150, "iron": 80}, ConstructionTicks: 12, MaxLevel: 10,
		Production: map[string]float64{"gems": 1}, RequiresTech: "mineria_profunda",
	},
	"templo": {
		ID: "templo", Name: "Templo", Era: types.EraCiudad,
		BaseCost: map[string]int{"stone": 200, "gems": 10}, ConstructionTicks: 12, MaxLevel: 10,
		HappinessBonus: 5,
	},
	"torre_mago": {
		ID: "torre_mago", Name: "Torre de Mago", Era: types.EraMetropolis,
		BaseCost: map[string]int{"stone": 300, "gems": 40, "iron": 120}, ConstructionTicks: 15, MaxLevel: 10,
		Production: map[string]float64{"mana": 2}, RequiresTech: "arcanos",
	},
}

var Units = map[string]UnitDef{
	"milicia": {
		ID: "milicia", Name: "Milicia", Era: types.EraAldea,
		Cost: map[string]int{"food": 10, "wood": 5},
		Attack: 3, Defense: 2, HP: 10, FoodPerTick: 0.5,
	},
	"soldado": {
		ID: "soldado", Name: "Soldado", Era: types.EraPueblo,
		Cost: map[string]int{"food": 15, "iron": 5},
		Attack: 6, Defense: 5, HP: 20, FoodPerTick: 1,
		StrongAgainst: "milicia",
	},
	"arquero": {
		ID: "arquero", Name: "Arquero", Era: types.EraPueblo,
		Cost: map[string]int{"food": 12, "wood": 10},
		Attack: 7, Defense: 2, HP: 14, FoodPerTick: 1,
		StrongAgainst: "lancero",
	},
	"lancero": {
		ID: "lancero", Name: "Lancero", Era: types.EraPueblo,
		Cost: map[string]int{"food": 14, "wood": 8, "iron": 4},
		Attack: 5, Defense: 7, HP: 18, FoodPerTick: 1,
		StrongAgainst: "caballero",
	},
	"caballero": {
		ID: "caballero", Name: "Caballero", Era: types.EraCiudad,
		Cost: map[string]int{"food": 30, "iron": 15},
		Attack: 12, Defense: 8, HP: 35, FoodPerTick: 2,
		StrongAgainst: "arquero", RequiresTech: "herreria",
	},
	"espia": {
		ID: "espia", Name: "Espia", Era: types.EraPueblo,
		Cost: map[string]int{"food": 20, "gems": 2},
		Attack: 1, Defense: 1, HP: 8, FoodPerTick: 0.5,
	},
	"catapulta": {
		ID: "catapulta", Name: "Catapulta", Era: types.EraCiudad,
		Cost: map[string]int{"wood": 60, "iron": 30},
		Attack: 20, Defense: 3, HP: 50, FoodPerTick: 3,
		StrongAgainst: "soldado", RequiresTech: "ingenieria",
	},
}

var Techs = map[string]TechDef{
	// Aldea
	"agricultura": {ID: "agricultura", Name: "Agricultura", Era: types.EraAldea,
		Cost: map[string]int{"food": 40, "wood": 20}, ResearchTicks: 8, ProductionBonus: 0.10},
	"tala": {ID: "tala", Name: "Tala", Era: types.EraAldea,
		Cost: map[string]int{"wood": 50}, ResearchTicks: 8, ProductionBonus: 0.10},
	"alfareria": {ID: "alfareria", Name: "Alfareria", Era: types.EraAldea,
		Cost: map[string]int{"stone": 30, "wood": 30}, ResearchTicks: 10},
	// Pueblo
	"herreria": {ID: "herreria", Name: "Herreria", Era: types.EraPueblo,
		Cost: map[string]int{"iron": 40, "stone": 40}, ResearchTicks: 15,
		Prereqs: []string{"alfareria"}, CombatBonus: 0.10},
	"tacticas": {ID: "tacticas", Name: "Tacticas", Era: types.EraPueblo,
		Cost: map[string]int{"food": 80, "iron": 20}, ResearchTicks: 15, CombatBonus: 0.10},
	"mineria_profunda": {ID: "mineria_profunda", Name: "Mineria Profunda", Era: types.EraPueblo,
		Cost: map[string]int{"iron": 60, "wood": 60}, ResearchTicks: 18, ProductionBonus: 0.10},
	// Ciudad
	"ingenieria": {ID: "ingenieria", Name: "Ingenieria", Era: types.EraCiudad,
		Cost: map[string]int{"iron": 120, "stone": 120}, ResearchTicks: 25,
		Prereqs: []string{"herreria"}, CombatBonus: 0.15},
	"economia": {ID: "economia", Name: "Economia", Era: types.EraCiudad,
		Cost: map[string]int{"gems": 20, "food": 150}, ResearchTicks: 25, ProductionBonus: 0.15},
	"alquimia": {ID: "alquimia", Name: "Alquimia", Era: types.EraCiudad,
		Cost: map[string]int{"gems": 30, "iron": 80}, ResearchTicks: 30},
	// Metropolis
	"arcanos": {ID: "arcanos", Name: "Arcanos", Era: types.EraMetropolis,
		Cost: map[string]int{"gems": 60, "mana": 10}, ResearchTicks: 40,
		Prereqs: []string{"alquimia"}, ProductionBonus: 0.20},
	"logistica": {ID: "logistica", Name: "Logistica", Era: types.EraMetropolis,
		Cost: map[string]int{"food": 300, "iron": 200}, ResearchTicks: 40, ProductionBonus: 0.20},
	"asedio": {ID: "asedio", Name: "Asedio", Era: types.EraMetropolis,
		Cost: map[string]int{"iron": 300, "wood": 300}, ResearchTicks: 45,
		Prereqs: []string{"ingenieria"}, CombatBonus: 0.20},
}

// Biomes modify per-resource production multiplicatively.
var Biomes = map[string]map[string]float64{
	"plains":   {"food": 1.25, "wood": 1.0, "stone": 1.0, "iron": 1.0, "gems": 1.0, "mana": 1.0},
	"forest":   {"food": 1.0, "wood": 1.25, "stone": 0.9, "iron": 1.0, "gems": 1.0, "mana": 1.0},
	"mountain": {"food": 0.8, "wood": 0.9, "stone": 1.3, "iron": 1.2, "gems": 1.1, "mana": 1.0},
	"desert":   {"food": 0.75, "wood": 0.8, "stone": 1.1, "iron": 1.0, "gems": 1.3, "mana": 1.0},
	"coast":    {"food": 1.2, "wood": 1.0, "stone": 1.0, "iron": 0.9, "gems": 1.1, "mana": 1.0},
	"volcanic": {"food": 0.7, "wood": 0.7, "stone": 1.2, "iron": 1.3, "gems": 1.2, "mana": 1.25},
}

var NPCs = map[string]NPCDef{
	"bandits": {
		ID: "bandits", Name: "Bandidos",
		Army:     map[string]int{"milicia": 15, "arquero": 5},
		Strategy: types.StrategyAggressive, RewardTokens: 25,
	},
	"raiders": {
		ID: "raiders", Name: "Saqueadores",
		Army:     map[string]int{"soldado": 20, "caballero": 8},
		Strategy: types.StrategyAggressive, RewardTokens: 75,
	},
	"dragon": {
		ID: "dragon", Name: "Dragon",
		Army:     map[string]int{"catapulta": 10, "caballero": 25, "soldado": 40},
		Strategy: types.StrategyBalanced, RewardTokens: 300,
	},
}

// ValidBiome reports whether b is one of the six launchable biomes.
func ValidBiome(b string) bool {
	_, ok := Biomes[b]
	return ok
}

// TechsForEra lists tech ids of one era; era advancement checks all of
// them against research.completed.
func TechsForEra(era int) []string {
	out := []string{}
	for _, id := range techOrder {
		if Techs[id].Era == era {
			out = append(out, id)
		}
	}
	return out
}

// techOrder keeps deterministic iteration over the tech map.
var techOrder = []string{
	"agricultura", "tala", "alfareria",
	"herreria", "tacticas", "mineria_profunda",
	"ingenieria", "economia", "alquimia",
	"arcanos", "logistica", "asedio",
}

// buildingOrder keeps deterministic iteration over the building map.
var buildingOrder = []string{
	"choza", "granja", "aserradero", "cantera", "almacen",
	"mina", "cuartel", "mercado", "muralla",
	"mina_gemas", "templo", "torre_mago",
}
