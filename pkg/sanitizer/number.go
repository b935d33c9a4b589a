package sanitizer

// ClampCapacity keeps a capacity ceiling at or above both zero and the
// number of bookings already confirmed.
func ClampCapacity(requested, booked int) int {
	return max(requested, booked, 0)
}
