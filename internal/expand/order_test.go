package expand

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"calexport/internal/civil"
	"calexport/internal/model"
)

func TestCompare_AllDayFirstOnSameDay(t *testing.T) {
	holiday := allDay("h", at(2020, time.May, 4, 0), 1)

	for _, hour := range []int{0, 1, 12, 23} {
		meeting := timed("m", at(2020, time.May, 4, hour), false)
		assert.True(t, Less(holiday, meeting), "hour %d", hour)
		assert.False(t, Less(meeting, holiday), "hour %d", hour)
	}
}

func TestCompare_AllDayStartingLaterInTheDay(t *testing.T) {
	// All-day rows stored as UTC midnight land at 09:00 in Asia/Tokyo.
	holiday := allDay("h", at(2020, time.May, 4, 9), 1)
	early := timed("m", at(2020, time.May, 4, 7), false)

	assert.True(t, Less(holiday, early))
}

func TestCompare_ByStartAcrossDays(t *testing.T) {
	mon := timed("a", at(2020, time.May, 4, 23), false)
	tue := timed("b", at(2020, time.May, 5, 1), false)
	tueAllDay := allDay("c", at(2020, time.May, 5, 0), 1)

	assert.True(t, Less(mon, tue))
	assert.False(t, Less(tue, mon))
	assert.True(t, Less(mon, tueAllDay))
	assert.Equal(t, 0, Compare(mon, mon))
}

func TestSort_TotalOrder(t *testing.T) {
	events := []model.Event{
		timed("e1", at(2020, time.May, 5, 9), false),
		allDay("e2", at(2020, time.May, 5, 0), 1),
		timed("e3", at(2020, time.May, 4, 18), false),
		allDay("e4", at(2020, time.May, 4, 0), 1),
		timed("e5", at(2020, time.May, 4, 8), false),
		timed("e6", at(2020, time.June, 1, 8), false),
	}
	want := []string{"e4", "e5", "e3", "e2", "e1", "e6"}

	rnd := rand.New(rand.NewSource(1))
	for n := 0; n < 20; n++ {
		shuffled := append([]model.Event(nil), events...)
		rnd.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		Sort(shuffled)

		got := make([]string, len(shuffled))
		for i, ev := range shuffled {
			got[i] = ev.ItemID
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("order mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestSort_StableForTies(t *testing.T) {
	start := at(2020, time.May, 4, 9)
	a := timed("first", start, false)
	b := timed("second", start, false)
	c := timed("third", civil.FromUnix(start.Unix, time.UTC), false)

	events := []model.Event{a, b, c}
	Sort(events)

	assert.Equal(t, "first", events[0].ItemID)
	assert.Equal(t, "second", events[1].ItemID)
	assert.Equal(t, "third", events[2].ItemID)
}
