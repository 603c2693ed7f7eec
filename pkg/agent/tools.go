// Package agent exposes the controller as named tools for the
// agent-protocol adapter. Each tool declares a small argument schema and
// answers with a UTF-8 text payload; IsError mirrors the command result.
package agent

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/hugoguerrap/nodecoin/pkg/game"
	"github.com/hugoguerrap/nodecoin/pkg/node"
	"github.com/hugoguerrap/nodecoin/pkg/types"
)

type Response struct {
	Text    string `json:"text"`
	IsError bool   `json:"isError"`
}

type Tool struct {
	Name        string
	Description string
	Schema      map[string]any
	Handler     func(args map[string]any) Response
}

type Registry struct {
	tools map[string]Tool
	order []string
}

func (r *Registry) add(t Tool) {
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
}

// List returns the tools in registration order.
func (r *Registry) List() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Invoke runs a tool by name.
func (r *Registry) Invoke(name string, args map[string]any) Response {
	t, ok := r.tools[name]
	if !ok {
		return Response{Text: fmt.Sprintf("unknown tool %q", name), IsError: true}
	}
	return t.Handler(args)
}

// --- Argument Coercion ---
//
// Arguments arrive as decoded JSON: strings, float64 numbers, and maps.

func argStr(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func argInt(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

func argResMap(args map[string]any, key string) map[string]int {
	raw, ok := args[key].(map[string]any)
	if !ok {
		return nil
	}
	out := map[string]int{}
	for k, v := range raw {
		if n, ok := v.(float64); ok {
			out[k] = int(n)
		}
	}
	return out
}

func fromResult(res types.Result) Response {
	text := res.Message
	if len(res.Data) > 0 {
		if extra, err := json.Marshal(res.Data); err == nil {
			text = text + "\n" + string(extra)
		}
	}
	return Response{Text: text, IsError: !res.Success}
}

func asJSON(v any) Response {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return Response{Text: err.Error(), IsError: true}
	}
	return Response{Text: string(raw)}
}

// Schemas are primitives plus resource-map objects.
var (
	schemaNone    = map[string]any{"type": "object", "properties": map[string]any{}}
	schemaResMap  = map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "integer"}}
	schemaString  = map[string]any{"type": "string"}
	schemaInteger = map[string]any{"type": "integer"}
)

func objectSchema(props map[string]any, required ...string) map[string]any {
	return map[string]any{"type": "object", "properties": props, "required": required}
}

// NewRegistry wires the thirty-four tools to a controller.
func NewRegistry(c *node.Controller) *Registry {
	r := &Registry{tools: map[string]Tool{}}

	r.add(Tool{
		Name:        "game_status",
		Description: "Summarize the settlement: era, tick, resources, population, tokens.",
		Schema:      schemaNone,
		Handler: func(args map[string]any) Response {
			s := c.GetPlayerState()
			var b strings.Builder
			fmt.Fprintf(&b, "%s (%s) - era %s, tick %d, prestige %d\n",
				s.Name, s.ID, types.EraNames[s.Era], s.Tick, s.Prestige.Level)
			fmt.Fprintf(&b, "tokens: %.2f\n", s.Tokens)
			for _, kind := range types.ResourceOrder {
				fmt.Fprintf(&b, "%s: %d/%d\n", kind, s.Resources[kind], s.ResourceStorage[kind])
			}
			fmt.Fprintf(&b, "population: %d/%d (happiness %d)\n",
				s.Population.Current, s.Population.Max, s.Population.Happiness)
			fmt.Fprintf(&b, "buildings: %d, army: %d units", len(s.Buildings), totalUnits(s.Army.Units))
			return Response{Text: b.String()}
		},
	})

	r.add(Tool{
		Name:        "game_build",
		Description: "Start construction of a building.",
		Schema:      objectSchema(map[string]any{"buildingId": schemaString}, "buildingId"),
		Handler: func(args map[string]any) Response {
			return fromResult(c.Build(argStr(args, "buildingId")))
		},
	})

	r.add(Tool{
		Name:        "game_upgrade",
		Description: "Upgrade a completed building by one level.",
		Schema:      objectSchema(map[string]any{"buildingId": schemaString}, "buildingId"),
		Handler: func(args map[string]any) Response {
			return fromResult(c.Upgrade(argStr(args, "buildingId")))
		},
	})

	r.add(Tool{
		Name:        "game_demolish",
		Description: "Demolish a building, refunding half its base cost.",
		Schema:      objectSchema(map[string]any{"buildingId": schemaString}, "buildingId"),
		Handler: func(args map[string]any) Response {
			return fromResult(c.Demolish(argStr(args, "buildingId")))
		},
	})

	r.add(Tool{
		Name:        "game_buildings",
		Description: "List the building catalog and your current buildings.",
		Schema:      schemaNone,
		Handler: func(args map[string]any) Response {
			s := c.GetPlayerState()
			built := map[string]types.Building{}
			for _, b := range s.Buildings {
				built[b.ID] = b
			}
			var b strings.Builder
			ids := make([]string, 0, len(game.Buildings))
			for id := range game.Buildings {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				def := game.Buildings[id]
				fmt.Fprintf(&b, "%s (era %s) cost %v", id, types.EraNames[def.Era], def.BaseCost)
				if cur, ok := built[id]; ok {
					if cur.ConstructionTicksRemaining > 0 {
						fmt.Fprintf(&b, " - level %d, %d ticks left", cur.Level, cur.ConstructionTicksRemaining)
					} else {
						fmt.Fprintf(&b, " - level %d", cur.Level)
					}
				}
				b.WriteString("\n")
			}
			return Response{Text: b.String()}
		},
	})

	r.add(Tool{
		Name:        "game_recruit",
		Description: "Recruit army units (requires a completed Cuartel).",
		Schema:      objectSchema(map[string]any{"unitType": schemaString, "count": schemaInteger}, "unitType", "count"),
		Handler: func(args map[string]any) Response {
			return fromResult(c.Recruit(argStr(args, "unitType"), argInt(args, "count", 1)))
		},
	})

	r.add(Tool{
		Name:        "game_army",
		Description: "Show army composition and strategy.",
		Schema:      schemaNone,
		Handler: func(args map[string]any) Response {
			s := c.GetPlayerState()
			return asJSON(map[string]any{"units": s.Army.Units, "strategy": s.Army.Strategy})
		},
	})

	r.add(Tool{
		Name:        "game_set_strategy",
		Description: "Set army strategy: aggressive, defensive, balanced or guerrilla.",
		Schema:      objectSchema(map[string]any{"strategy": schemaString}, "strategy"),
		Handler: func(args map[string]any) Response {
			return fromResult(c.SetStrategy(argStr(args, "strategy")))
		},
	})

	r.add(Tool{
		Name:        "game_units",
		Description: "List the unit catalog with stats and costs.",
		Schema:      schemaNone,
		Handler: func(args map[string]any) Response {
			var b strings.Builder
			for _, id := range types.UnitOrder {
				def := game.Units[id]
				fmt.Fprintf(&b, "%s: atk %.0f def %.0f hp %.0f cost %v", id, def.Attack, def.Defense, def.HP, def.Cost)
				if def.StrongAgainst != "" {
					fmt.Fprintf(&b, " (strong vs %s)", def.StrongAgainst)
				}
				b.WriteString("\n")
			}
			return Response{Text: b.String()}
		},
	})

	r.add(Tool{
		Name:        "game_research_start",
		Description: "Start researching a tech.",
		Schema:      objectSchema(map[string]any{"techId": schemaString}, "techId"),
		Handler: func(args map[string]any) Response {
			return fromResult(c.StartResearch(argStr(args, "techId")))
		},
	})

	r.add(Tool{
		Name:        "game_research_status",
		Description: "Show completed techs and research in progress.",
		Schema:      schemaNone,
		Handler: func(args map[string]any) Response {
			s := c.GetPlayerState()
			return asJSON(s.Research)
		},
	})

	r.add(Tool{
		Name:        "game_techs",
		Description: "List the tech tree with costs and prerequisites.",
		Schema:      schemaNone,
		Handler: func(args map[string]any) Response {
			ids := make([]string, 0, len(game.Techs))
			for id := range game.Techs {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			var b strings.Builder
			for _, id := range ids {
				def := game.Techs[id]
				fmt.Fprintf(&b, "%s (era %s, %d ticks) cost %v prereqs %v\n",
					id, types.EraNames[def.Era], def.ResearchTicks, def.Cost, def.Prereqs)
			}
			return Response{Text: b.String()}
		},
	})

	r.add(Tool{
		Name:        "game_explore",
		Description: "Explore a zone.",
		Schema:      objectSchema(map[string]any{"zoneId": schemaString}, "zoneId"),
		Handler: func(args map[string]any) Response {
			return fromResult(c.Explore(argStr(args, "zoneId")))
		},
	})

	r.add(Tool{
		Name:        "game_claim",
		Description: "Claim an explored, unclaimed zone.",
		Schema:      objectSchema(map[string]any{"zoneId": schemaString}, "zoneId"),
		Handler: func(args map[string]any) Response {
			return fromResult(c.Claim(argStr(args, "zoneId")))
		},
	})

	r.add(Tool{
		Name:        "game_zones",
		Description: "Show the shared zone map: discoverers and claims.",
		Schema:      schemaNone,
		Handler: func(args map[string]any) Response {
			return asJSON(c.View().Zones())
		},
	})

	r.add(Tool{
		Name:        "game_attack_npc",
		Description: "Attack an NPC camp: bandits, raiders or dragon.",
		Schema:      objectSchema(map[string]any{"target": schemaString}, "target"),
		Handler: func(args map[string]any) Response {
			return fromResult(c.AttackNPC(argStr(args, "target")))
		},
	})

	r.add(Tool{
		Name:        "game_pvp_attack",
		Description: "Attack another player using their published snapshot.",
		Schema:      objectSchema(map[string]any{"targetPlayerId": schemaString}, "targetPlayerId"),
		Handler: func(args map[string]any) Response {
			return fromResult(c.PvpAttack(argStr(args, "targetPlayerId")))
		},
	})

	r.add(Tool{
		Name:        "game_spy",
		Description: "Send a spy to estimate another player's army and resources.",
		Schema:      objectSchema(map[string]any{"targetPlayerId": schemaString}, "targetPlayerId"),
		Handler: func(args map[string]any) Response {
			return fromResult(c.Spy(argStr(args, "targetPlayerId")))
		},
	})

	r.add(Tool{
		Name:        "game_spy_reports",
		Description: "Show the last spy reports.",
		Schema:      schemaNone,
		Handler: func(args map[string]any) Response {
			return asJSON(c.GetPlayerState().SpyReports)
		},
	})

	r.add(Tool{
		Name:        "game_trade_create",
		Description: "Create a trade offer; offered resources are escrowed.",
		Schema: objectSchema(map[string]any{
			"offering":       schemaResMap,
			"requesting":     schemaResMap,
			"expiresInTicks": schemaInteger,
		}, "offering", "requesting"),
		Handler: func(args map[string]any) Response {
			return fromResult(c.CreateTradeOffer(
				argResMap(args, "offering"),
				argResMap(args, "requesting"),
				int64(argInt(args, "expiresInTicks", 100))))
		},
	})

	r.add(Tool{
		Name:        "game_trade_accept",
		Description: "Accept a trade offer, local or from the shared board.",
		Schema:      objectSchema(map[string]any{"offerId": schemaString}, "offerId"),
		Handler: func(args map[string]any) Response {
			return fromResult(c.AcceptTrade(argStr(args, "offerId")))
		},
	})

	r.add(Tool{
		Name:        "game_trade_cancel",
		Description: "Cancel an own open offer, refunding the escrow.",
		Schema:      objectSchema(map[string]any{"offerId": schemaString}, "offerId"),
		Handler: func(args map[string]any) Response {
			return fromResult(c.CancelTradeOffer(argStr(args, "offerId")))
		},
	})

	r.add(Tool{
		Name:        "game_trade_offers",
		Description: "List this settlement's trade offers.",
		Schema:      schemaNone,
		Handler: func(args map[string]any) Response {
			return asJSON(c.GetPlayerState().TradeOffers)
		},
	})

	r.add(Tool{
		Name:        "game_trade_board",
		Description: "Show the shared trade board.",
		Schema:      schemaNone,
		Handler: func(args map[string]any) Response {
			return asJSON(c.View().TradeOffers())
		},
	})

	r.add(Tool{
		Name:        "game_alliance_create",
		Description: "Found an alliance.",
		Schema:      objectSchema(map[string]any{"name": schemaString}, "name"),
		Handler: func(args map[string]any) Response {
			return fromResult(c.CreateAlliance(argStr(args, "name")))
		},
	})

	r.add(Tool{
		Name:        "game_alliance_join",
		Description: "Join an alliance observed in the shared registry.",
		Schema: objectSchema(map[string]any{
			"allianceId": schemaString,
			"name":       schemaString,
			"leaderId":   schemaString,
		}, "allianceId", "leaderId"),
		Handler: func(args map[string]any) Response {
			return fromResult(c.JoinAlliance(
				argStr(args, "allianceId"), argStr(args, "name"), argStr(args, "leaderId")))
		},
	})

	r.add(Tool{
		Name:        "game_alliance_leave",
		Description: "Leave the current alliance; the leader leaving disbands it.",
		Schema:      schemaNone,
		Handler: func(args map[string]any) Response {
			return fromResult(c.LeaveAlliance())
		},
	})

	r.add(Tool{
		Name:        "game_diplomacy_set",
		Description: "Set diplomacy toward another player: neutral, allied, war or peace.",
		Schema: objectSchema(map[string]any{
			"targetPlayerId": schemaString,
			"status":         schemaString,
		}, "targetPlayerId", "status"),
		Handler: func(args map[string]any) Response {
			return fromResult(c.SetDiplomacy(argStr(args, "targetPlayerId"), argStr(args, "status")))
		},
	})

	r.add(Tool{
		Name:        "game_diplomacy_list",
		Description: "List diplomacy relations.",
		Schema:      schemaNone,
		Handler: func(args map[string]any) Response {
			return asJSON(c.GetPlayerState().Diplomacy)
		},
	})

	r.add(Tool{
		Name:        "game_rankings",
		Description: "Show the shared rankings board.",
		Schema:      schemaNone,
		Handler: func(args map[string]any) Response {
			return asJSON(c.View().Rankings())
		},
	})

	r.add(Tool{
		Name:        "game_combat_feed",
		Description: "Show the recent shared combat feed.",
		Schema:      schemaNone,
		Handler: func(args map[string]any) Response {
			return asJSON(c.View().CombatLogs())
		},
	})

	r.add(Tool{
		Name:        "game_ascend",
		Description: "Ascend: reset progress for a permanent legacy multiplier.",
		Schema:      schemaNone,
		Handler: func(args map[string]any) Response {
			return fromResult(c.Ascend())
		},
	})

	r.add(Tool{
		Name:        "game_chain_status",
		Description: "Show the local command chain status.",
		Schema:      schemaNone,
		Handler: func(args map[string]any) Response {
			return asJSON(c.GetChainStatus())
		},
	})

	r.add(Tool{
		Name:        "game_chain_verify",
		Description: "Validate the local command chain end to end.",
		Schema:      schemaNone,
		Handler: func(args map[string]any) Response {
			res := c.VerifyChain()
			out := asJSON(res)
			out.IsError = !res.Valid
			return out
		},
	})

	return r
}

func totalUnits(units map[string]int) int {
	n := 0
	for _, v := range units {
		n += v
	}
	return n
}
