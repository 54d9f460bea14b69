package models

import (
	"math"
	"time"
)

// StateKind вид состояния жизненного цикла аккаунта
type StateKind string

const (
	StateTrial    StateKind = "trial"
	StatePaid     StateKind = "paid"
	StateExpired  StateKind = "expired"
	StateDisabled StateKind = "disabled"
)

// Unbounded значение DaysRemaining для доступа без даты окончания.
const Unbounded = -1

// LifecycleState производное состояние аккаунта. Никогда не хранится,
// всегда вычисляется из полей Account функцией State.
type LifecycleState struct {
	Kind          StateKind  `json:"kind"`
	DaysRemaining int        `json:"daysRemaining"`
	EndsAt        *time.Time `json:"endsAt,omitempty"`
}

// Eligible сообщает, может ли аккаунт пользоваться сервисом.
func (s LifecycleState) Eligible() bool {
	return s.Kind == StateTrial || s.Kind == StatePaid
}

// State вычисляет состояние жизненного цикла на момент now.
//
// Администраторы всегда в состоянии Paid без срока. Неактивный аккаунт
// всегда Disabled. У активного аккаунта истёкший срок даёт Expired сразу,
// не дожидаясь деактивации фоновой задачей. Без даты окончания доступ
// бессрочен только у оплаченного аккаунта.
func (a *Account) State(now time.Time) LifecycleState {
	if !a.IsActive {
		return LifecycleState{Kind: StateDisabled, DaysRemaining: 0, EndsAt: a.EndDate()}
	}
	if a.IsAdmin() {
		return LifecycleState{Kind: StatePaid, DaysRemaining: Unbounded}
	}

	end := a.EndDate()
	if end == nil {
		if !a.IsPaid {
			return LifecycleState{Kind: StateExpired, DaysRemaining: 0}
		}
		return LifecycleState{Kind: StatePaid, DaysRemaining: Unbounded}
	}
	if !now.Before(*end) {
		return LifecycleState{Kind: StateExpired, DaysRemaining: 0, EndsAt: end}
	}

	kind := StateTrial
	if a.IsPaid {
		kind = StatePaid
	}
	remaining := int(math.Ceil(end.Sub(now).Hours() / 24))
	return LifecycleState{Kind: kind, DaysRemaining: remaining, EndsAt: end}
}
