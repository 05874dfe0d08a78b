package domain

import (
	"fmt"
	"time"
)

// WindowAnchor names the order milestone a return window is counted from
type WindowAnchor string

const (
	AnchorOrderDate            WindowAnchor = "order_date"
	AnchorFulfillmentDate      WindowAnchor = "fulfillment_date"
	AnchorDeliveryDate         WindowAnchor = "delivery_date"
	AnchorFirstDeliveryAttempt WindowAnchor = "first_delivery_attempt"
)

func (a WindowAnchor) IsValid() bool {
	switch a {
	case AnchorOrderDate, AnchorFulfillmentDate, AnchorDeliveryDate, AnchorFirstDeliveryAttempt:
		return true
	}
	return false
}

// WindowWarningDays is how close to expiry a return gets a non-blocking warning
const WindowWarningDays = 3

// ReturnWindow is the single implementation of return-window arithmetic,
// shared by the eligibility pipeline and the rules engine.
type ReturnWindow struct {
	Days      int
	Unlimited bool
	Anchor    WindowAnchor
}

// WindowStatus is the evaluated position of a return inside its window
type WindowStatus struct {
	Anchor        WindowAnchor
	AnchorDate    time.Time
	FellBack      bool
	DaysElapsed   int
	DaysRemaining int
	Expired       bool
	ClosingSoon   bool
	Unlimited     bool
}

// AnchorDate picks the milestone date for anchor, falling back to earlier
// milestones when the preferred one has not happened yet.
func AnchorDate(dates OrderDates, anchor WindowAnchor) (time.Time, bool) {
	chain := []*time.Time{}
	switch anchor {
	case AnchorFirstDeliveryAttempt:
		chain = append(chain, dates.FirstDeliveryAttemptAt, dates.DeliveredAt, dates.FulfilledAt)
	case AnchorDeliveryDate:
		chain = append(chain, dates.DeliveredAt, dates.FulfilledAt)
	case AnchorFulfillmentDate, "":
		chain = append(chain, dates.FulfilledAt)
	}
	for i, t := range chain {
		if t != nil && !t.IsZero() {
			return *t, i > 0
		}
	}
	return dates.OrderDate, anchor != AnchorOrderDate
}

// Evaluate positions now within the window
func (w ReturnWindow) Evaluate(dates OrderDates, now time.Time) WindowStatus {
	anchorDate, fellBack := AnchorDate(dates, w.Anchor)
	elapsed := daysBetween(anchorDate, now)
	status := WindowStatus{
		Anchor:      w.Anchor,
		AnchorDate:  anchorDate,
		FellBack:    fellBack,
		DaysElapsed: elapsed,
		Unlimited:   w.Unlimited,
	}
	if w.Unlimited {
		return status
	}
	status.DaysRemaining = w.Days - elapsed
	status.Expired = elapsed > w.Days
	status.ClosingSoon = !status.Expired && status.DaysRemaining <= WindowWarningDays
	if status.DaysRemaining < 0 {
		status.DaysRemaining = 0
	}
	return status
}

// DenialReason describes an expired window
func (s WindowStatus) DenialReason(windowDays int) string {
	return fmt.Sprintf("return window expired: %d days since %s exceeds the %d-day policy",
		s.DaysElapsed, anchorLabel(s.Anchor), windowDays)
}

// Warning describes a window that is about to close
func (s WindowStatus) Warning() string {
	switch s.DaysRemaining {
	case 0:
		return "return window expires today"
	case 1:
		return "return window expires in 1 day"
	default:
		return fmt.Sprintf("return window expires in %d days", s.DaysRemaining)
	}
}

func anchorLabel(a WindowAnchor) string {
	switch a {
	case AnchorOrderDate:
		return "order"
	case AnchorDeliveryDate:
		return "delivery"
	case AnchorFirstDeliveryAttempt:
		return "first delivery attempt"
	default:
		return "fulfillment"
	}
}

func daysBetween(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	return int(to.Sub(from).Hours() / 24)
}
