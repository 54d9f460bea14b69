// Package days содержит календарные вычисления для жизненного цикла подписки.
package days

import (
	"math"
	"time"
)

// StartOfDay возвращает полночь дня t в часовом поясе loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// Window возвращает полуинтервал [начало дня, начало следующего дня)
// для дня, отстоящего от now на offset календарных дней.
func Window(now time.Time, offset int, loc *time.Location) (time.Time, time.Time) {
	from := StartOfDay(now, loc).AddDate(0, 0, offset)
	return from, from.AddDate(0, 0, 1)
}

// Between считает количество календарных дней от from до to.
// Отрицательно, если to раньше from.
func Between(from, to time.Time, loc *time.Location) int {
	a := StartOfDay(from, loc)
	b := StartOfDay(to, loc)
	// AddDate учитывает переходы на летнее время, поэтому округляем
	return int(math.Round(b.Sub(a).Hours() / 24))
}

// Remaining возвращает число оставшихся дней до end, округлённое вверх.
// Для прошедших дат возвращает 0.
func Remaining(now, end time.Time) int {
	d := end.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Hours() / 24))
}

// Later возвращает наиболее позднюю из дат; nil пропускаются.
func Later(base time.Time, candidates ...*time.Time) time.Time {
	res := base
	for _, c := range candidates {
		if c != nil && c.After(res) {
			res = *c
		}
	}
	return res
}
