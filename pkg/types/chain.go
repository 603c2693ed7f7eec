package types

// --- Command Chain ---

// Command is the payload recorded in a chain block.
type Command struct {
	Type string         `json:"type"`
	Args map[string]any `json:"args"`
	Tick int64          `json:"tick"`
}

// Block is one entry of a per-player command chain. Hash covers the
// canonical encoding of every field except Hash and Signature; Signature
// is Ed25519 over the hash bytes under PublicKey. Both are lowercase hex.
type Block struct {
	PrevHash  string  `json:"prevHash"`
	Index     int     `json:"index"`
	PlayerID  string  `json:"playerId"`
	Command   Command `json:"command"`
	StateHash string  `json:"stateHash"`
	Timestamp int64   `json:"timestamp"`
	PublicKey string  `json:"publicKey"`
	Hash      string  `json:"hash"`
	Signature string  `json:"signature"`
}

// Command types carried in blocks. Genesis is special-cased everywhere.
const (
	CmdGenesis       = "genesis"
	CmdBuild         = "build"
	CmdUpgrade       = "upgrade"
	CmdDemolish      = "demolish"
	CmdRecruit       = "recruit"
	CmdSetStrategy   = "set-strategy"
	CmdStartResearch = "start-research"
	CmdExplore       = "explore"
	CmdClaim         = "claim"
	CmdAttack        = "attack"
	CmdCreateAlliance = "create-alliance"
	CmdJoinAlliance   = "join-alliance"
	CmdLeaveAlliance  = "leave-alliance"
	CmdSetDiplomacy   = "set-diplomacy"
	CmdSpy            = "spy"
	CmdCreateTrade    = "create-trade-offer"
	CmdAcceptTrade    = "accept-trade"
	CmdCancelTrade    = "cancel-trade-offer"
	CmdPvpAttack      = "pvp-attack"
	CmdAscend         = "ascend"
)

// ChainStatus summarises the local chain for queries and the console.
type ChainStatus struct {
	PlayerID   string `json:"playerId"`
	Length     int    `json:"length"`
	LatestHash string `json:"latestHash"`
	PublicKey  string `json:"publicKey"`
}

// ValidationResult is the outcome of the pure chain validator.
type ValidationResult struct {
	Valid         bool   `json:"valid"`
	FailedAtIndex int    `json:"failedAtIndex"`
	Error         string `json:"error,omitempty"`
}
