package nakama

const (
	// RpcOpenTable is the Nakama RPC id clients call to resume or create a score table match.
	RpcOpenTable = "open_table"
	// RpcShareToken issues a read-only share token for a table the caller owns.
	RpcShareToken = "share_token"
	// RpcExportHistory returns a table's history as CSV to any holder of a share token.
	RpcExportHistory = "export_history"

	// MatchNameScoreTable is the authoritative match handler name registered with Nakama.
	MatchNameScoreTable = "mjscore_table"

	// MatchLabelGame identifies this module's matches in label queries.
	MatchLabelGame = "mjscore"
)

// Runtime env keys.
const (
	EnvShareSecret       = "mjscore_share_secret"
	EnvShareIssuer       = "mjscore_share_issuer"
	EnvStorageCollection = "mjscore_storage_collection"

	defaultStorageCollection = "mjscore_tables"
	defaultShareIssuer       = "mjscore"
	tableConfigPath          = "data/table_config.json"
)

// Op codes for client messages and server events.
const (
	// Client -> Server
	OpDeclare           int64 = 1
	OpPreview           int64 = 2
	OpUndo              int64 = 3
	OpReset             int64 = 4
	OpSelectDealer      int64 = 5
	OpBumpStreak        int64 = 6
	OpSetPopOnNewWinner int64 = 7
	OpReseat            int64 = 8
	OpRename            int64 = 9

	// Server -> Client events
	OpState          int64 = 101
	OpResolved       int64 = 102
	OpResetNotice    int64 = 103 // send privately; the owner must resend with confirm_reset
	OpUndone         int64 = 104
	OpSessionReset   int64 = 105
	OpPreviewResult  int64 = 106 // send privately
	OpError          int64 = 107 // send privately
	OpDealerChanged  int64 = 108
	OpRulesChanged   int64 = 109
	OpSeatingChanged int64 = 110
	OpPlayerRenamed  int64 = 111
	OpTakeover       int64 = 112
)

// Error codes carried by OpError.
const (
	ErrCodeBadRequest  = 400
	ErrCodeNotOwner    = 403
	ErrCodeUnavailable = 503 // the stored table failed to load; changes are refused
)
