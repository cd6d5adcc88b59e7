package models

const (
	RoleCustomer = "customer"
	RoleMitra    = "mitra"
)

const (
	// TherapistTerm is replaced with DriverTerm in Gaspol progress texts.
	TherapistTerm = "Terapis"
	DriverTerm    = "Driver"

	// ProgressServiceStarted is the progress text a mitra posts when the service window opens.
	ProgressServiceStarted = "Layanan dimulai"
)

const (
	MinRating = 1
	MaxRating = 5
)

const (
	// DefaultPollInterval is the booking-detail poll cadence (seconds).
	DefaultPollInterval = 10

	// DefaultSearchAnimation is the decorative search progress duration (seconds).
	DefaultSearchAnimation = 8

	// DefaultReportInterval is the background location report cadence (seconds).
	DefaultReportInterval = 30

	// DefaultLatitude and DefaultLongitude are used when no location fix is available (Jakarta).
	DefaultLatitude  = -6.200000
	DefaultLongitude = 106.816666
)
