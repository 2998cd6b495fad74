package activity

// MET values follow the Compendium of Physical Activities, rounded to
// one decimal place. Unknown activity types fall back to metDefault.
var metByType = map[ActivityType]float64{
	TypeRunning:  9.8,
	TypeCycling:  7.5,
	TypeWalking:  3.5,
	TypeHiking:   6.0,
	TypeSwimming: 8.0,
	TypeRowing:   7.0,
	TypeHIIT:     8.0,
	TypeStrength: 5.0,
	TypeYoga:     2.5,
}

const metDefault = 4.0

func MET(t ActivityType) float64 {
	if met, ok := metByType[t]; ok {
		return met
	}
	return metDefault
}

// Calculator derives calorie burn from activity type, body weight and
// active duration. DefaultWeightKg fills in for users who never set a
// weight on their profile.
type Calculator struct {
	DefaultWeightKg float64
}

func NewCalculator(defaultWeightKg float64) *Calculator {
	if defaultWeightKg <= 0 {
		defaultWeightKg = 70
	}
	return &Calculator{DefaultWeightKg: defaultWeightKg}
}

// Calories applies the standard MET formula: MET x weight (kg) x active
// hours. Paused time must already be excluded from activeHours.
func (c *Calculator) Calories(t ActivityType, weightKg, activeHours float64) float64 {
	if weightKg <= 0 {
		weightKg = c.DefaultWeightKg
	}
	if activeHours <= 0 {
		return 0
	}
	return MET(t) * weightKg * activeHours
}

// SpeedKmh returns average speed, or ok=false when it is undefined
// (zero distance or zero active time).
func SpeedKmh(distanceKm, activeHours float64) (float64, bool) {
	if distanceKm <= 0 || activeHours <= 0 {
		return 0, false
	}
	return distanceKm / activeHours, true
}

// PaceMinPerKm returns minutes per kilometer, or ok=false when the
// session covered no distance.
func PaceMinPerKm(distanceKm, activeMinutes float64) (float64, bool) {
	if distanceKm <= 0 || activeMinutes <= 0 {
		return 0, false
	}
	return activeMinutes / distanceKm, true
}
