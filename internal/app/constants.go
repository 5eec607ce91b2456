package app

// MaxHistoryExport caps how many history rows a single export returns.
// Keep this centralized so the RPC and the CLI agree on the limit.
const MaxHistoryExport = 5000

// ShareTokenTTL is how long a read-only table share token stays valid, in hours.
const ShareTokenTTL = 1
