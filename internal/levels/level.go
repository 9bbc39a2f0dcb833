package levels

import "fmt"

// Kind 支撑/阻力位的来源类型
type Kind string

const (
	KindSwingHigh     Kind = "swing_high"
	KindSwingLow      Kind = "swing_low"
	KindPivot         Kind = "pivot_point"
	KindPivotR1       Kind = "pivot_r1"
	KindPivotR2       Kind = "pivot_r2"
	KindPivotR3       Kind = "pivot_r3"
	KindPivotS1       Kind = "pivot_s1"
	KindPivotS2       Kind = "pivot_s2"
	KindPivotS3       Kind = "pivot_s3"
	KindFibonacci     Kind = "fibonacci"
	KindRoundNumber   Kind = "round_number"
	KindWeeklyHigh    Kind = "weekly_high"
	KindWeeklyLow     Kind = "weekly_low"
	KindVolumeProfile Kind = "volume_profile"
)

// 强度分级
const (
	ClassWeak       = "weak"        // 0-30
	ClassModerate   = "moderate"    // 30-60
	ClassStrong     = "strong"      // 60-80
	ClassVeryStrong = "very_strong" // 80-100
)

// 时间上下文，决定级别加成
const (
	ContextHourly = "hourly"
	ContextDaily  = "daily"
	ContextWeekly = "weekly"
)

// Level 一条带元数据的支撑/阻力位
type Level struct {
	Price    float64
	Kind     Kind
	Support  bool
	Strength float64
	Class    string
	Touches  int

	FirstTouch int
	LastTouch  int
	Context    string

	PinBar       bool
	LegRejection bool
	ATRRatio     float64
	DistancePips float64

	Label string
}

func (l Level) String() string {
	side := "Resistance"
	if l.Support {
		side = "Support"
	}
	if l.Label != "" {
		return fmt.Sprintf("%s @ %.5f (%s)", l.Label, l.Price, l.Class)
	}
	return fmt.Sprintf("%s @ %.5f (%s, %d touches)", side, l.Price, l.Class, l.Touches)
}

// classify 按分数归类
func classify(score float64) string {
	switch {
	case score >= 80:
		return ClassVeryStrong
	case score >= 60:
		return ClassStrong
	case score >= 30:
		return ClassModerate
	}
	return ClassWeak
}

// mergePriority 合并同组时保留的类型优先级
var mergePriority = map[Kind]int{
	KindSwingHigh: 10, KindSwingLow: 10,
	KindWeeklyHigh: 9, KindWeeklyLow: 9,
	KindVolumeProfile: 8,
	KindPivot:         7,
	KindFibonacci:     6,
	KindPivotR1:       5, KindPivotS1: 5,
	KindPivotR2: 4, KindPivotS2: 4,
	KindPivotR3: 3, KindPivotS3: 3,
	KindRoundNumber: 2,
}

// kindBonus 强度评分里的类型加分
var kindBonus = map[Kind]float64{
	KindWeeklyHigh: 15, KindWeeklyLow: 15,
	KindSwingHigh: 10, KindSwingLow: 10,
	KindVolumeProfile: 9,
	KindPivot:         8,
	KindFibonacci:     7,
	KindPivotR1:       6, KindPivotS1: 6,
	KindRoundNumber: 5,
}

var contextPriority = map[string]int{
	ContextWeekly: 3,
	ContextDaily:  2,
	ContextHourly: 1,
}
