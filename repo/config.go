package repo

import (
	"time"
)

type Config struct {
	RepoRoot   string     `mapstructure:"-" toml:"-"`
	Ledger     Ledger     `mapstructure:"ledger" toml:"ledger"`
	Governance Governance `mapstructure:"governance" toml:"governance"`
	MultiSig   MultiSig   `mapstructure:"multisig" toml:"multisig"`
	Log        Log        `mapstructure:"log" toml:"log"`
}

type Log struct {
	Level        string        `mapstructure:"level" toml:"level"`
	Filename     string        `mapstructure:"filename" toml:"filename"`
	ReportCaller bool          `mapstructure:"report_caller" toml:"report_caller"`
	MaxAge       time.Duration `mapstructure:"max_age" toml:"max_age"`
	RotationTime time.Duration `mapstructure:"rotation_time" toml:"rotation_time"`
}

// Ledger selects and configures the token ledger the engine settles against.
type Ledger struct {
	// Mode is either "mem" for the built-in simulation ledger or "erc20"
	// for a chain-backed ERC-20 token.
	Mode string `mapstructure:"mode" toml:"mode"`
	// DialUrl, TokenAddress and CustodianKey are only read in erc20 mode.
	DialUrl      string `mapstructure:"dial_url" toml:"dial_url"`
	TokenAddress string `mapstructure:"token_address" toml:"token_address"`
	// CustodianKey is the hex private key of the DAO custody account, used
	// to sign outbound transfers (disbursements, refunds, withdrawals).
	CustodianKey string `mapstructure:"custodian_key" toml:"custodian_key"`
	// TotalSupply is the reference supply used for quorum in mem mode,
	// denominated in wei. Ignored in erc20 mode where the token contract
	// reports it.
	TotalSupply string `mapstructure:"total_supply" toml:"total_supply"`
}

// Governance holds the economic parameters the engine starts with. Amounts
// are decimal strings in token wei. They can be changed at runtime only
// through a multisig set-parameter action.
type Governance struct {
	MinTokensForProposal string        `mapstructure:"min_tokens_for_proposal" toml:"min_tokens_for_proposal"`
	MinVotingTokens      string        `mapstructure:"min_voting_tokens" toml:"min_voting_tokens"`
	MinQuorumPercent     uint64        `mapstructure:"min_quorum_percent" toml:"min_quorum_percent"`
	ProposalFee          string        `mapstructure:"proposal_fee" toml:"proposal_fee"`
	VotingDuration       time.Duration `mapstructure:"voting_duration" toml:"voting_duration"`
	// FinalizeInterval is how often the daemon scans for proposals past
	// their deadline and executes them. Zero disables the finalizer.
	FinalizeInterval time.Duration `mapstructure:"finalize_interval" toml:"finalize_interval"`
}

type MultiSig struct {
	// Owners are the hex addresses allowed to create and approve admin
	// actions. The set is fixed for the life of the deployment.
	Owners []string `mapstructure:"owners" toml:"owners"`
	// RequiredApprovals is the N in N-of-M approvals. Must be between 1
	// and len(Owners).
	RequiredApprovals uint64 `mapstructure:"required_approvals" toml:"required_approvals"`
}

func DefaultConfig(repoRoot string) *Config {
	return &Config{
		RepoRoot: repoRoot,
		Ledger: Ledger{
			Mode:         "mem",
			DialUrl:      "ws://localhost:8546",
			TokenAddress: "0x0000000000000000000000000000000000000000",
			TotalSupply:  "1000000000000000000000000",
		},
		Governance: Governance{
			// 100 tokens to propose, 10 to vote, 10 fee, matching the
			// mainnet deployment values.
			MinTokensForProposal: "100000000000000000000",
			MinVotingTokens:      "10000000000000000000",
			MinQuorumPercent:     50,
			ProposalFee:          "10000000000000000000",
			VotingDuration:       24 * time.Hour,
			FinalizeInterval:     time.Minute,
		},
		MultiSig: MultiSig{
			Owners:            []string{},
			RequiredApprovals: 1,
		},
		Log: Log{
			Level:        "info",
			Filename:     "govcore.log",
			ReportCaller: false,
			MaxAge:       30 * 24 * time.Hour,
			RotationTime: 24 * time.Hour,
		},
	}
}
