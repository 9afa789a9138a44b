package availability

type DayStatus string

const (
	StatusAvailable DayStatus = "available"
	StatusBooked    DayStatus = "booked"
	StatusBlocked   DayStatus = "blocked"
	StatusReserved  DayStatus = "reserved"
)

// AvailabilityEditable reports whether block/unblock may target a day with this status.
// Booked days belong to guests and reserved days are locked by the platform.
func (s DayStatus) AvailabilityEditable() bool {
	return s == StatusAvailable || s == StatusBlocked
}
