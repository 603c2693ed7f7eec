// Nodecoin data-dir inspector. Opens the node's sqlite database read-only
// and answers status/chain/peers/snapshot queries, interactively or as a
// one-shot CLI.
package main

import (
	"bufio"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var dataDir = "./data"
var db *sql.DB

func main() {
	if dir := os.Getenv("NODECOIN_DATA_DIR"); dir != "" {
		dataDir = dir
	}

	dbPath := filepath.Join(dataDir, "nodecoin.db")
	if _, err := os.Stat(dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "no database at %s\n", dbPath)
		os.Exit(1)
	}
	var err error
	db, err = sql.Open("sqlite3", dbPath+"?mode=ro")
	if err != nil {
		panic(err)
	}
	defer db.Close()

	// One-shot mode
	if len(os.Args) > 1 {
		runCommand(os.Args[1], os.Args[2:])
		return
	}

	fmt.Println("Nodecoin Console")
	fmt.Printf("Data dir: %s\n", dataDir)
	fmt.Println("Commands: status, chain [n], peers, snapshot, journal [n], help, quit")

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		parts := strings.Fields(strings.TrimSpace(line))
		if len(parts) == 0 {
			continue
		}
		if parts[0] == "quit" || parts[0] == "exit" {
			return
		}
		runCommand(parts[0], parts[1:])
	}
}

func runCommand(cmd string, args []string) {
	switch cmd {
	case "status":
		showStatus()
	case "chain":
		n := 10
		if len(args) > 0 {
			n, _ = strconv.Atoi(args[0])
		}
		showChain(n)
	case "peers":
		showPeers()
	case "snapshot":
		showSnapshot()
	case "journal":
		n := 20
		if len(args) > 0 {
			n, _ = strconv.Atoi(args[0])
		}
		showJournal(n)
	case "help":
		fmt.Println("status    - identity, chain length, snapshot tick")
		fmt.Println("chain [n] - newest n chain blocks")
		fmt.Println("peers     - known peer hints")
		fmt.Println("snapshot  - latest state snapshot summary")
		fmt.Println("journal [n] - newest n journal entries")
	default:
		fmt.Printf("unknown command %q\n", cmd)
	}
}

func showStatus() {
	var addr, pub string
	db.QueryRow("SELECT value FROM system_meta WHERE key='address'").Scan(&addr)
	db.QueryRow("SELECT value FROM system_meta WHERE key='public_key'").Scan(&pub)
	fmt.Printf("address:    %s\n", addr)
	fmt.Printf("public key: %s\n", pub)

	rows, err := db.Query("SELECT player_id, COUNT(*) FROM chain_blocks GROUP BY player_id")
	if err == nil {
		defer rows.Close()
		for rows.Next() {
			var pid string
			var n int
			rows.Scan(&pid, &n)
			fmt.Printf("chain %s: %d blocks\n", pid, n)
		}
	}
	var tick int64
	if db.QueryRow("SELECT MAX(tick) FROM state_snapshots").Scan(&tick) == nil {
		fmt.Printf("latest snapshot tick: %d\n", tick)
	}
}

func showChain(n int) {
	rows, err := db.Query(
		"SELECT block_index, player_id, command_type, command_tick, substr(hash,1,12) FROM chain_blocks ORDER BY timestamp DESC LIMIT ?", n)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer rows.Close()
	for rows.Next() {
		var idx int
		var pid, cmd, hash string
		var tick int64
		rows.Scan(&idx, &pid, &cmd, &tick, &hash)
		fmt.Printf("#%-4d %-16s %-20s tick=%-6d %s…\n", idx, pid, cmd, tick, hash)
	}
}

func showPeers() {
	rows, err := db.Query(
		"SELECT multiaddr, player_name, last_seen, success_count FROM known_peers ORDER BY last_seen DESC")
	if err != nil {
		fmt.Println(err)
		return
	}
	defer rows.Close()
	for rows.Next() {
		var addr, name string
		var lastSeen int64
		var successes int
		rows.Scan(&addr, &name, &lastSeen, &successes)
		age := time.Since(time.UnixMilli(lastSeen)).Round(time.Second)
		fmt.Printf("%-50s %-12s seen %v ago (%d ok)\n", addr, name, age, successes)
	}
}

func showSnapshot() {
	var stateJSON, hash string
	var tick int64
	err := db.QueryRow(
		"SELECT state_json, state_hash, tick FROM state_snapshots ORDER BY tick DESC LIMIT 1").
		Scan(&stateJSON, &hash, &tick)
	if err != nil {
		fmt.Println("no snapshots")
		return
	}
	var st struct {
		Name       string         `json:"name"`
		Era        int            `json:"era"`
		Tokens     float64        `json:"tokens"`
		Resources  map[string]int `json:"resources"`
		Population struct {
			Current   int `json:"current"`
			Max       int `json:"max"`
			Happiness int `json:"happiness"`
		} `json:"population"`
	}
	json.Unmarshal([]byte(stateJSON), &st)
	fmt.Printf("tick %d  hash %s…\n", tick, hash[:12])
	fmt.Printf("%s - era %d, %.2f tokens\n", st.Name, st.Era, st.Tokens)
	fmt.Printf("resources: %v\n", st.Resources)
	fmt.Printf("population: %d/%d happiness %d\n", st.Population.Current, st.Population.Max, st.Population.Happiness)
}

func showJournal(n int) {
	rows, err := db.Query(
		"SELECT tick, action_type, substr(digest,1,12) FROM journal ORDER BY id DESC LIMIT ?", n)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer rows.Close()
	for rows.Next() {
		var tick int64
		var action, digest string
		rows.Scan(&tick, &action, &digest)
		fmt.Printf("tick=%-6d %-24s %s…\n", tick, action, digest)
	}
}
