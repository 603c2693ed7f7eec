package game

import (
	"math"

	"github.com/hugoguerrap/nodecoin/pkg/rng"
	"github.com/hugoguerrap/nodecoin/pkg/types"
)

// --- Battle Resolver ---
//
// Single round, pure in its inputs. Attacker and defender nodes seed the
// RNG from "pvp-<attackerId>-<defenderId>-<tick>" and traverse unit kinds
// in canonical order, so both derive the identical report independently.

type Combatant struct {
	Units        map[string]int
	Strategy     string
	DefenseBonus float64
	CombatBonus  float64
}

type BattleReport struct {
	Winner           string         `json:"winner"` // "attacker" | "defender" | "draw"
	AttackerLosses   map[string]int `json:"attackerLosses"`
	DefenderLosses   map[string]int `json:"defenderLosses"`
	LootTokens       float64        `json:"lootTokens"`
	AttackerStrength float64        `json:"attackerStrength"`
	DefenderStrength float64        `json:"defenderStrength"`
}

func totalUnits(units map[string]int) int {
	n := 0
	for _, kind := range types.UnitOrder {
		n += units[kind]
	}
	return n
}

func totalHP(units map[string]int) float64 {
	hp := 0.0
	for _, kind := range types.UnitOrder {
		hp += float64(units[kind]) * Units[kind].HP
	}
	return hp
}

// attackStrength sums count·(attack + triangle bonus) over kinds; the
// bonus applies per kind that counters any kind the enemy fields.
func attackStrength(units, enemy map[string]int) float64 {
	total := 0.0
	for _, kind := range types.UnitOrder {
		count := units[kind]
		if count == 0 {
			continue
		}
		atk := Units[kind].Attack
		if sa := Units[kind].StrongAgainst; sa != "" && enemy[sa] > 0 {
			atk += TriangleBonus
		}
		total += float64(count) * atk
	}
	return total
}

func defenseStrength(units map[string]int) float64 {
	total := 0.0
	for _, kind := range types.UnitOrder {
		total += float64(units[kind]) * Units[kind].Defense
	}
	return total
}

func strategyModifiers(strategy string) (atk, def float64) {
	switch strategy {
	case types.StrategyAggressive:
		return 1.2, 0.9
	case types.StrategyDefensive:
		return 0.9, 1.2
	default: // balanced, guerrilla
		return 1.0, 1.0
	}
}

// distributeCasualties removes lost units, weakest per-unit HP first.
func distributeCasualties(units map[string]int, lost int) map[string]int {
	order := make([]string, 0, len(types.UnitOrder))
	for _, kind := range types.UnitOrder {
		if units[kind] > 0 {
			order = append(order, kind)
		}
	}
	// ascending HP, canonical order breaks ties
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && Units[order[j]].HP < Units[order[j-1]].HP; j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}
	losses := map[string]int{}
	for _, kind := range order {
		if lost <= 0 {
			break
		}
		take := units[kind]
		if take > lost {
			take = lost
		}
		units[kind] -= take
		if units[kind] == 0 {
			delete(units, kind)
		}
		losses[kind] = take
		lost -= take
	}
	return losses
}

// ResolveBattle runs one deterministic round between two armies.
func ResolveBattle(attacker, defender Combatant, r *rng.Rng) BattleReport {
	aCount := totalUnits(attacker.Units)
	dCount := totalUnits(defender.Units)

	switch {
	case aCount == 0 && dCount == 0:
		return BattleReport{Winner: "draw", AttackerLosses: map[string]int{}, DefenderLosses: map[string]int{}}
	case aCount == 0:
		return BattleReport{Winner: "defender", AttackerLosses: map[string]int{}, DefenderLosses: map[string]int{}}
	case dCount == 0:
		return BattleReport{Winner: "attacker", AttackerLosses: map[string]int{}, DefenderLosses: map[string]int{}}
	}

	aAtk := attackStrength(attacker.Units, defender.Units) * (1 + attacker.CombatBonus)
	aDef := defenseStrength(attacker.Units) * (1 + attacker.CombatBonus)
	dAtk := attackStrength(defender.Units, attacker.Units) * (1 + defender.CombatBonus)
	dDef := defenseStrength(defender.Units) * (1 + defender.CombatBonus)

	aAtkMod, aDefMod := strategyModifiers(attacker.Strategy)
	dAtkMod, dDefMod := strategyModifiers(defender.Strategy)
	aAtk *= aAtkMod
	aDef *= aDefMod
	dAtk *= dAtkMod
	dDef *= dDefMod

	dDef *= 1 + defender.DefenseBonus

	// RNG draw order is part of the protocol: attacker factor first.
	attackerFactor := r.NextRange(0.75, 1.25)
	defenderFactor := r.NextRange(0.75, 1.25)
	damageToDefender := CombatDamage(aAtk-dDef, attackerFactor)
	damageToAttacker := CombatDamage(dAtk-aDef, defenderFactor)

	aHP := totalHP(attacker.Units)
	dHP := totalHP(defender.Units)

	aLost := int(math.Round(damageToAttacker / aHP * float64(aCount)))
	dLost := int(math.Round(damageToDefender / dHP * float64(dCount)))
	if aLost < 0 {
		aLost = 0
	}
	if aLost > aCount {
		aLost = aCount
	}
	if dLost < 0 {
		dLost = 0
	}
	if dLost > dCount {
		dLost = dCount
	}

	aUnits := map[string]int{}
	for k, v := range attacker.Units {
		aUnits[k] = v
	}
	dUnits := map[string]int{}
	for k, v := range defender.Units {
		dUnits[k] = v
	}
	aLosses := distributeCasualties(aUnits, aLost)
	dLosses := distributeCasualties(dUnits, dLost)

	aSurvive := aCount - aLost
	dSurvive := dCount - dLost

	var winner string
	switch {
	case aSurvive <= 0 && dSurvive <= 0:
		winner = "draw"
	case dSurvive <= 0:
		winner = "attacker"
	case aSurvive <= 0:
		winner = "defender"
	default:
		// both stand: higher proportional damage dealt wins
		aProp := damageToDefender / dHP
		dProp := damageToAttacker / aHP
		if aProp > dProp {
			winner = "attacker"
		} else if dProp > aProp {
			winner = "defender"
		} else {
			winner = "draw"
		}
	}

	loot := 0.0
	switch winner {
	case "attacker":
		loot = 5 * float64(dLost)
	case "defender":
		loot = 5 * float64(aLost)
	}

	return BattleReport{
		Winner:           winner,
		AttackerLosses:   aLosses,
		DefenderLosses:   dLosses,
		LootTokens:       loot,
		AttackerStrength: aAtk,
		DefenderStrength: dDef,
	}
}
