package model

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCheckInStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to CheckInStatus
		want     bool
	}{
		{CheckInStatusPending, CheckInStatusCheckedIn, true},
		{CheckInStatusPending, CheckInStatusNoShow, true},
		{CheckInStatusNoShow, CheckInStatusPending, true},
		{CheckInStatusNoShow, CheckInStatusCheckedIn, false},
		{CheckInStatusCheckedIn, CheckInStatusNoShow, false},
		{CheckInStatusCheckedIn, CheckInStatusPending, false},
		{CheckInStatus("bogus"), CheckInStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestSummarizeAdmission(t *testing.T) {
	booking := &Booking{ID: uuid.New(), CheckInStatus: CheckInStatusPending}

	t.Run("Guests", func(t *testing.T) {
		guests := []*BookingGuest{
			{CheckInStatus: CheckInStatusCheckedIn},
			{CheckInStatus: CheckInStatusNoShow},
			{CheckInStatus: CheckInStatusPending},
		}
		summary := SummarizeAdmission(booking, guests)

		assert.Equal(t, 3, summary.Total)
		assert.Equal(t, 1, summary.CheckedIn)
		assert.Equal(t, 1, summary.NoShow)
		assert.Equal(t, 1, summary.Pending)
		assert.False(t, summary.FullyAdmitted)
	})

	t.Run("AllResolved", func(t *testing.T) {
		guests := []*BookingGuest{
			{CheckInStatus: CheckInStatusCheckedIn},
			{CheckInStatus: CheckInStatusNoShow},
		}
		assert.True(t, SummarizeAdmission(booking, guests).FullyAdmitted)
	})

	t.Run("UngroupedBooking", func(t *testing.T) {
		b := &Booking{ID: uuid.New(), CheckInStatus: CheckInStatusCheckedIn}
		summary := SummarizeAdmission(b, nil)

		assert.Equal(t, 1, summary.Total)
		assert.Equal(t, 1, summary.CheckedIn)
		assert.True(t, summary.FullyAdmitted)
	})
}

func TestBookingStatus_IsAdmittable(t *testing.T) {
	assert.True(t, BookingStatusPending.IsAdmittable())
	assert.True(t, BookingStatusConfirmed.IsAdmittable())
	assert.False(t, BookingStatusCancelled.IsAdmittable())
	assert.False(t, BookingStatusDeclined.IsAdmittable())
}

func TestScanCodes(t *testing.T) {
	code, err := GenerateScanCode(BookingGuestCodePrefix)
	assert.NoError(t, err)
	assert.True(t, IsBookingGuestCode(code))
	assert.False(t, IsPackageGuestCode(code))

	code, err = GenerateScanCode(PackageGuestCodePrefix)
	assert.NoError(t, err)
	assert.True(t, IsPackageGuestCode(code))

	assert.False(t, IsBookingGuestCode("BG-1234567"))
	assert.False(t, IsBookingGuestCode("BG-123456789"))
	assert.False(t, IsBookingGuestCode("BG-ABCD-EFG"))
	assert.False(t, IsBookingGuestCode("ABC12345"))
	assert.Equal(t, "abc123", NormalizeLiteralCode("  ABC123\n"))
}
