package config

const (
	defaultConfigPath            = "~/.config/tally/config.toml"
	defaultDataDir               = "~/.local/share/tally"
	defaultBlobDir               = "~/.local/share/tally/documents"
	defaultLogDir                = "~/.local/share/tally/logs"
	defaultGCSPrefix             = "receipts"
	defaultGmailCredentialsPath  = "~/.config/tally/gmail_client_secret.json"
	defaultGmailTokenPath        = "~/.config/tally/gmail_token.json"
	defaultGmailUser             = "me"
	defaultGmailPageSize         = 100
	defaultGmailConcurrency      = 4
	defaultPdftotextBinary       = "pdftotext"
	defaultExtractorTimeout      = 30
	defaultItemsTolerance        = 0.10
	defaultTotalsTolerance       = 0.02
	defaultLedgerKeyPrefix       = "rcpt:"
	defaultLedgerKeyMaxLength    = 36
	defaultLedgerCurrency        = "AED"
	defaultLedgerCategory        = "Grocery"
	defaultLedgerMatchWindowDays = 2
	defaultLedgerMatchFunction   = "finance.find_transaction_candidates"
	defaultLedgerTable           = "finance.transactions"
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 30
	defaultCarrefourLabel        = "Receipts/Carrefour"
	defaultCarrefourVendor       = "carrefour_uae"
	mediaTypePDF                 = "application/pdf"
	mediaTypeOctetStream         = "application/octet-stream"
)

// Storage backends.
const (
	StorageLocal = "local"
	StorageGCS   = "gcs"
)

// Ledger drivers.
const (
	LedgerSQLite   = "sqlite"
	LedgerPostgres = "postgres"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			BlobDir: defaultBlobDir,
			LogDir:  defaultLogDir,
		},
		Storage: Storage{
			Backend:   StorageLocal,
			GCSPrefix: defaultGCSPrefix,
		},
		Gmail: Gmail{
			CredentialsPath:     defaultGmailCredentialsPath,
			TokenPath:           defaultGmailTokenPath,
			User:                defaultGmailUser,
			PageSize:            defaultGmailPageSize,
			DownloadConcurrency: defaultGmailConcurrency,
		},
		Sources: defaultSources(),
		Extractor: Extractor{
			PdftotextBinary: defaultPdftotextBinary,
			TimeoutSeconds:  defaultExtractorTimeout,
		},
		Reconcile: Reconcile{
			ItemsTolerance:  defaultItemsTolerance,
			TotalsTolerance: defaultTotalsTolerance,
		},
		Ledger: Ledger{
			Driver:          LedgerSQLite,
			KeyPrefix:       defaultLedgerKeyPrefix,
			KeyMaxLength:    defaultLedgerKeyMaxLength,
			Currency:        defaultLedgerCurrency,
			Category:        defaultLedgerCategory,
			MatchWindowDays: defaultLedgerMatchWindowDays,
			MatchFunction:   defaultLedgerMatchFunction,
			Table:           defaultLedgerTable,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}

func defaultSources() []Source {
	return []Source{{
		Label:      defaultCarrefourLabel,
		Vendor:     defaultCarrefourVendor,
		MediaTypes: []string{mediaTypePDF, mediaTypeOctetStream},
	}}
}
