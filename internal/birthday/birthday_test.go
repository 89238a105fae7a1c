package birthday

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, time.October, 16, 12, 0, 0, 0, time.UTC)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		b       Birthday
		wantErr bool
	}{
		{"valid", Birthday{SubjectID: "u1", Month: time.March, Day: 5}, false},
		{"valid with year", Birthday{SubjectID: "u1", Month: time.March, Day: 5, Year: 1990}, false},
		{"feb 29 unknown year", Birthday{SubjectID: "u1", Month: time.February, Day: 29}, false},
		{"feb 29 leap year", Birthday{SubjectID: "u1", Month: time.February, Day: 29, Year: 2000}, false},
		{"feb 29 non-leap year", Birthday{SubjectID: "u1", Month: time.February, Day: 29, Year: 2001}, true},
		{"feb 30", Birthday{SubjectID: "u1", Month: time.February, Day: 30}, true},
		{"apr 31", Birthday{SubjectID: "u1", Month: time.April, Day: 31}, true},
		{"day zero", Birthday{SubjectID: "u1", Month: time.May, Day: 0}, true},
		{"month 13", Birthday{SubjectID: "u1", Month: 13, Day: 1}, true},
		{"year too old", Birthday{SubjectID: "u1", Month: time.May, Day: 1, Year: 1899}, true},
		{"year next year ok", Birthday{SubjectID: "u1", Month: time.May, Day: 1, Year: 2027}, false},
		{"year too far", Birthday{SubjectID: "u1", Month: time.May, Day: 1, Year: 2028}, true},
		{"empty subject", Birthday{Month: time.May, Day: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.b.Validate(now)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))
			var ve *ValidationError
			assert.True(t, errors.As(err, &ve))
		})
	}
}

func TestIsToday(t *testing.T) {
	b := Birthday{Month: time.October, Day: 16}
	assert.True(t, b.IsToday(now))
	assert.False(t, b.IsToday(now.AddDate(0, 0, 1)))
	assert.False(t, Birthday{Month: time.November, Day: 16}.IsToday(now))
}

func TestAgeOn(t *testing.T) {
	assert.Equal(t, 0, Birthday{Month: time.March, Day: 5}.AgeOn(now))
	assert.Equal(t, 36, Birthday{Month: time.March, Day: 5, Year: 1990}.AgeOn(now))
	assert.Equal(t, 35, Birthday{Month: time.December, Day: 5, Year: 1990}.AgeOn(now))
	assert.Equal(t, 30, Birthday{Month: time.October, Day: 16, Year: 1996}.AgeOn(now))
}

func TestNextAndDaysUntil(t *testing.T) {
	today := Birthday{Month: time.October, Day: 16}
	assert.Equal(t, 0, today.DaysUntil(now))

	tomorrow := Birthday{Month: time.October, Day: 17}
	assert.Equal(t, 1, tomorrow.DaysUntil(now))

	past := Birthday{Month: time.March, Day: 5}
	assert.Equal(t, time.Date(2027, time.March, 5, 0, 0, 0, 0, time.UTC), past.Next(now))

	leap := Birthday{Month: time.February, Day: 29}
	assert.Equal(t, time.Date(2028, time.February, 29, 0, 0, 0, 0, time.UTC), leap.Next(now))
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "Jan 02", Birthday{Month: time.January, Day: 2}.FormatDate())
	assert.Equal(t, "Feb 29", Birthday{Month: time.February, Day: 29}.FormatDate())
}

func TestDaysInFebruary(t *testing.T) {
	assert.Equal(t, 29, DaysIn(time.February, 2000))
	assert.Equal(t, 29, DaysIn(time.February, 2028))
	assert.Equal(t, 28, DaysIn(time.February, 1900))
	assert.Equal(t, 28, DaysIn(time.February, 2026))
	assert.Equal(t, 31, DaysIn(time.October, 2026))

	// Feb 29 with a known birth year needs that year to be a leap year
	assert.NoError(t, Birthday{SubjectID: "u", Month: time.February, Day: 29, Year: 2000}.Validate(now))
	assert.Error(t, Birthday{SubjectID: "u", Month: time.February, Day: 29, Year: 1900}.Validate(now))
	assert.NoError(t, Birthday{SubjectID: "u", Month: time.February, Day: 29}.Validate(now))
}
