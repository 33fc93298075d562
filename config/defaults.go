package config

import "time"

// Default runtime limits and analysis parameters for the funnel analysis server.
// They are referenced by internal/runtime, internal/dataset and internal/funnel,
// and can be overridden by the YAML config file or environment.

const (
	// Concurrency
	DefaultMaxConcurrentRequests = 10
	DefaultMaxOpenWorkbooks      = 4

	// Input bounds
	DefaultMaxRowsPerTable = 1_000_000
	DefaultMaxPayloadBytes = 512 * 1024
)

const (
	// Timeouts
	DefaultOperationTimeout      = 60 * time.Second
	DefaultAcquireRequestTimeout = 2 * time.Second

	// Workbook handle cache
	DefaultWorkbookIdleTTL       = 5 * time.Minute
	DefaultWorkbookCleanupPeriod = time.Minute
)

const (
	// Users whose signup falls within this many days of the latest signup are "new".
	DefaultRecencyDays = 7

	// New-user conversion below this fraction of existing-user conversion
	// triggers onboarding recommendations.
	DefaultOnboardingRatio = 0.8

	DefaultHTTPAddr = ":8080"
	DefaultLogLevel = "info"
)

// Default input file names inside a CSV data directory.
const (
	DefaultHomeFile         = "home_page_table.csv"
	DefaultSearchFile       = "search_page_table.csv"
	DefaultPaymentFile      = "payment_page_table.csv"
	DefaultConfirmationFile = "payment_confirmation_table.csv"
	DefaultUserFile         = "user_table.csv"
)

// Default sheet names inside an .xlsx data workbook.
const (
	DefaultHomeSheet         = "home_page"
	DefaultSearchSheet       = "search_page"
	DefaultPaymentSheet      = "payment_page"
	DefaultConfirmationSheet = "payment_confirmation"
	DefaultUserSheet         = "user"
)

// Default column names.
const (
	DefaultUserIDColumn = "user_id"
	DefaultDeviceColumn = "device"
	DefaultGenderColumn = "sex"
	DefaultSignupColumn = "date"
)
